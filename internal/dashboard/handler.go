// Package dashboard serves the signed-in user's reward profile: level and
// points, earnings, credit history and saved payment methods.
package dashboard

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fetchquest/backend/internal/ledger"
	"github.com/fetchquest/backend/internal/models"
	"github.com/fetchquest/backend/internal/rewards"
	"github.com/fetchquest/backend/internal/services"
	"github.com/fetchquest/backend/internal/session"
)

type Handler struct {
	ledger    ledger.Service
	validator *services.Validator
	log       *slog.Logger
}

func NewHandler(l ledger.Service, v *services.Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{ledger: l, validator: v, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) (*models.Profile, bool) {
	if _, ok := session.UserID(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	p, err := h.ledger.Profile(r.Context())
	if err != nil {
		if errors.Is(err, ledger.ErrProfileNotFound) {
			http.Error(w, "profile not found", http.StatusNotFound)
			return nil, false
		}
		h.log.Error("get profile failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return p, true
}

// GET /api/v1/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	p, ok := h.profile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                   p.ID,
		"email":                p.Email,
		"display_name":         p.DisplayName,
		"points":               p.Points,
		"level":                p.Level,
		"points_to_next_level": rewards.PointsToNextLevel(p.Points),
		"tasks_completed":      p.TasksCompleted,
		"tasks_requested":      p.TasksRequested,
		"earnings":             p.Earnings,
		"pending_earnings":     p.PendingEarnings,
		"rating":               p.Rating,
		"review_count":         p.ReviewCount,
		"payment_methods":      p.PaymentMethods,
		"created_at":           p.CreatedAt,
	})
}

// GET /api/v1/me/history
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := session.UserID(r.Context()); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	entries, err := h.ledger.History(r.Context())
	if err != nil {
		h.log.Error("list credit history failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.CreditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /api/v1/me/payment-methods
func (h *Handler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	p, ok := h.profile(w, r)
	if !ok {
		return
	}
	methods := p.PaymentMethods
	if methods == nil {
		methods = []models.PaymentMethod{}
	}
	writeJSON(w, http.StatusOK, methods)
}

// POST /api/v1/me/payment-methods
func (h *Handler) AddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.profile(w, r); !ok {
		return
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if h.validator != nil {
		if err := h.validator.Validate(services.SchemaPaymentMethod, raw); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
	}
	var method models.PaymentMethod
	if err := json.Unmarshal(raw, &method); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	added, err := h.ledger.AddPaymentMethod(r.Context(), method)
	if err != nil {
		h.log.Error("add payment method failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// DELETE /api/v1/me/payment-methods/{id}
func (h *Handler) RemovePaymentMethod(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.profile(w, r); !ok {
		return
	}
	if err := h.ledger.RemovePaymentMethod(r.Context(), r.PathValue("id")); err != nil {
		h.log.Error("remove payment method failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/me/payment-methods/{id}/default
func (h *Handler) SetDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.profile(w, r); !ok {
		return
	}
	if err := h.ledger.SetDefaultPaymentMethod(r.Context(), r.PathValue("id")); err != nil {
		h.log.Error("set default payment method failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	def, err := h.ledger.GetDefaultPaymentMethod(r.Context())
	if err != nil {
		h.log.Error("get default payment method failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"default": def})
}
