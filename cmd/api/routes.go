package main

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fetchquest/backend/internal/auth"
	"github.com/fetchquest/backend/internal/config"
	"github.com/fetchquest/backend/internal/dashboard"
	"github.com/fetchquest/backend/internal/execution"
	"github.com/fetchquest/backend/internal/handlers"
	"github.com/fetchquest/backend/internal/ledger"
	"github.com/fetchquest/backend/internal/middleware"
	"github.com/fetchquest/backend/internal/repository"
	"github.com/fetchquest/backend/internal/router"
	"github.com/fetchquest/backend/internal/services"
	"github.com/fetchquest/backend/internal/tasks"
)

// buildRouter wires the HTTP handlers and middleware.
// Chain: Auth -> (PriceCheck on POST /api/v1/quests, PriceCap on PATCH) -> handler.
func buildRouter(
	cfg *config.Config,
	pool *pgxpool.Pool,
	manager *tasks.Manager,
	ledgerSvc ledger.Service,
	taskRepo *repository.TaskRepo,
	enqueueReward execution.EnqueueRewardFunc,
	logger *slog.Logger,
) (http.Handler, error) {
	validator, err := services.NewValidator()
	if err != nil {
		return nil, err
	}

	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)

	questHandler := &handlers.QuestHandler{
		Quests:        manager,
		Ledger:        ledgerSvc,
		EnqueueReward: enqueueReward,
		Validator:     validator,
		Logger:        logger,
	}
	dashHandler := dashboard.NewHandler(ledgerSvc, validator, logger)

	requireAuth := middleware.Auth(authSvc)
	limits := middleware.Limits{
		MaxPrice:       cfg.MaxQuestPrice,
		MaxDailyQuests: cfg.MaxDailyQuests,
	}
	priceCheck := middleware.PriceCheck(taskRepo, limits)
	priceCap := middleware.PriceCap(limits)

	return router.New(authHandler, questHandler, dashHandler, requireAuth, priceCheck, priceCap), nil
}
