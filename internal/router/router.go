package router

import (
	"net/http"

	"github.com/fetchquest/backend/internal/auth"
	"github.com/fetchquest/backend/internal/dashboard"
	"github.com/fetchquest/backend/internal/handlers"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// New returns an http.Handler that serves the API under /api/v1.
// Chain: requireAuth -> (priceCheck on POST /quests, priceCap on PATCH) -> handler.
func New(authHandler *auth.Handler, quests *handlers.QuestHandler, dash *dashboard.Handler, requireAuth, priceCheck, priceCap Middleware) http.Handler {
	mux := http.NewServeMux()
	const base = "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)

	authed := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }

	mux.Handle("GET "+base+"/quests", authed(quests.ListQuests))
	mux.Handle("POST "+base+"/quests", requireAuth(priceCheck(http.HandlerFunc(quests.CreateQuest))))
	mux.Handle("GET "+base+"/quests/accepted", authed(quests.ListAccepted))
	mux.Handle("GET "+base+"/quests/pending", authed(quests.ListPending))
	mux.Handle("GET "+base+"/quests/completed", authed(quests.ListCompleted))
	mux.Handle("GET "+base+"/quests/{id}", authed(quests.GetQuest))
	mux.Handle("PATCH "+base+"/quests/{id}", requireAuth(priceCap(http.HandlerFunc(quests.UpdateQuest))))
	mux.Handle("DELETE "+base+"/quests/{id}", authed(quests.DeleteQuest))
	mux.Handle("GET "+base+"/quests/{id}/rarity", authed(quests.GetRarity))
	mux.Handle("POST "+base+"/quests/{id}/accept", authed(quests.AcceptQuest))
	mux.Handle("POST "+base+"/quests/{id}/submit", authed(quests.SubmitCompletion))
	mux.Handle("POST "+base+"/quests/{id}/verify", authed(quests.VerifyCompletion))
	mux.Handle("POST "+base+"/quests/{id}/cancel", authed(quests.CancelQuest))

	mux.Handle("GET "+base+"/me", authed(dash.GetMe))
	mux.Handle("GET "+base+"/me/history", authed(dash.ListHistory))
	mux.Handle("GET "+base+"/me/payment-methods", authed(dash.ListPaymentMethods))
	mux.Handle("POST "+base+"/me/payment-methods", authed(dash.AddPaymentMethod))
	mux.Handle("DELETE "+base+"/me/payment-methods/{id}", authed(dash.RemovePaymentMethod))
	mux.Handle("POST "+base+"/me/payment-methods/{id}/default", authed(dash.SetDefaultPaymentMethod))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
