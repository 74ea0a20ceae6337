package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fetchquest/backend/internal/models"
	"github.com/fetchquest/backend/internal/session"
)

// QuestCounter counts the quests a requester created since a point in time.
type QuestCounter interface {
	CountCreatedSince(ctx context.Context, requesterID string, since time.Time) (int, error)
}

// Limits bounds what a single user may post. Zero values disable a limit.
type Limits struct {
	MaxPrice       models.Cents
	MaxDailyQuests int
}

type pricePeek struct {
	Price *models.Cents `json:"price"`
}

// PriceCheck validates the price of a new quest against the per-quest cap
// and the requester's daily quest count. Reads the body to extract "price",
// then replaces r.Body so downstream handlers can re-read it.
func PriceCheck(counter QuestCounter, limits Limits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := session.UserID(r.Context())
			if !ok {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if !checkPrice(w, r, limits, true) {
				return
			}

			if limits.MaxDailyQuests > 0 && counter != nil {
				since := time.Now().UTC().Truncate(24 * time.Hour)
				n, err := counter.CountCreatedSince(r.Context(), userID, since)
				if err != nil {
					http.Error(w, `{"error":"failed to check daily quests"}`, http.StatusInternalServerError)
					return
				}
				if n >= limits.MaxDailyQuests {
					http.Error(w, fmt.Sprintf(`{"error":"daily quest limit %d reached"}`, limits.MaxDailyQuests), http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PriceCap applies the per-quest price cap to a quest patch. A patch without
// "price" passes through.
func PriceCap(limits Limits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !checkPrice(w, r, limits, false) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkPrice peeks "price" from the body, restores the body and enforces
// price >= 0 and the cap. It writes the error response and returns false on
// rejection.
func checkPrice(w http.ResponseWriter, r *http.Request, limits Limits, required bool) bool {
	bodyBytes, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
		return false
	}
	// Restore body for the handler.
	r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var peek pricePeek
	if err := json.Unmarshal(bodyBytes, &peek); err != nil {
		if errors.Is(err, models.ErrAmountOutOfRange) {
			http.Error(w, `{"error":"price out of range"}`, http.StatusBadRequest)
			return false
		}
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return false
	}
	if peek.Price == nil {
		if required {
			http.Error(w, `{"error":"price must be >= 0"}`, http.StatusBadRequest)
			return false
		}
		return true
	}
	if *peek.Price < 0 {
		http.Error(w, `{"error":"price must be >= 0"}`, http.StatusBadRequest)
		return false
	}
	if limits.MaxPrice > 0 && *peek.Price > limits.MaxPrice {
		http.Error(w, fmt.Sprintf(`{"error":"price %s exceeds per-quest limit %s"}`, peek.Price, limits.MaxPrice), http.StatusForbidden)
		return false
	}
	return true
}
