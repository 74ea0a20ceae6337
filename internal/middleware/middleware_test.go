package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fetchquest/backend/internal/session"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubTokens struct {
	userID string
	err    error
}

func (s *stubTokens) ValidateToken(_ context.Context, _ string) (string, error) {
	return s.userID, s.err
}

type stubCounter struct {
	n      int
	err    error
	called bool
}

func (s *stubCounter) CountCreatedSince(_ context.Context, _ string, _ time.Time) (int, error) {
	s.called = true
	return s.n, s.err
}

// okHandler writes the session user id (for assertions).
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if id, ok := session.UserID(r.Context()); ok {
		w.Write([]byte(id))
	}
})

func withUser(id string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(session.WithUserID(r.Context(), id)))
	})
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

func TestAuth_ValidToken(t *testing.T) {
	mw := Auth(&stubTokens{userID: "U1"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "U1" {
		t.Errorf("expected session user U1, got %q", rec.Body.String())
	}
}

func TestAuth_MissingHeader(t *testing.T) {
	mw := Auth(&stubTokens{userID: "U1"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	mw := Auth(&stubTokens{err: errors.New("expired")})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// PriceCheck
// ---------------------------------------------------------------------------

func TestPriceCheck_WithinLimits(t *testing.T) {
	counter := &stubCounter{n: 2}
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
	})
	h := withUser("U1", PriceCheck(counter, Limits{MaxPrice: 10000, MaxDailyQuests: 5})(next))

	body := `{"title":"Walk dog","price":25.00}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !counter.called {
		t.Error("expected daily count to be checked")
	}
	if seen != body {
		t.Errorf("body not restored for handler: %q", seen)
	}
}

func TestPriceCheck_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		counter *stubCounter
		want    int
	}{
		{"missing price", `{"title":"x"}`, &stubCounter{}, http.StatusBadRequest},
		{"negative price", `{"price":-1}`, &stubCounter{}, http.StatusBadRequest},
		{"invalid json", `{`, &stubCounter{}, http.StatusBadRequest},
		{"over cap", `{"price":100.01}`, &stubCounter{}, http.StatusForbidden},
		{"daily limit", `{"price":10}`, &stubCounter{n: 5}, http.StatusForbidden},
		{"count failure", `{"price":10}`, &stubCounter{err: errors.New("db down")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := withUser("U1", PriceCheck(tc.counter, Limits{MaxPrice: 10000, MaxDailyQuests: 5})(okHandler))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)))
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPriceCheck_FreeQuestAllowed(t *testing.T) {
	h := withUser("U1", PriceCheck(nil, Limits{})(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"price":0}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPriceCheck_Unauthenticated(t *testing.T) {
	h := PriceCheck(&stubCounter{}, Limits{})(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"price":1}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPriceCheck_OutOfRangePrice(t *testing.T) {
	h := withUser("U1", PriceCheck(nil, Limits{})(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"price":1e300}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// PriceCap
// ---------------------------------------------------------------------------

func TestPriceCap(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
	}{
		{"no price", `{"title":"Walk the cat"}`, http.StatusOK},
		{"within cap", `{"price":999.99}`, http.StatusOK},
		{"over cap", `{"price":5000000}`, http.StatusForbidden},
		{"negative", `{"price":-1}`, http.StatusBadRequest},
		{"overflowing", `{"price":1e300}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := PriceCap(Limits{MaxPrice: 100000})(okHandler)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(tc.body)))
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}
