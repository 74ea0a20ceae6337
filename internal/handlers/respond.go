package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/fetchquest/backend/internal/services"
	"github.com/fetchquest/backend/internal/session"
	"github.com/fetchquest/backend/internal/tasks"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTaskError maps quest lifecycle errors to HTTP statuses.
func writeTaskError(w http.ResponseWriter, log *slog.Logger, err error) {
	var ise *tasks.InvalidStateError
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		writeError(w, http.StatusNotFound, "quest not found")
	case errors.As(err, &ise):
		writeError(w, http.StatusConflict, ise.Reason)
	case errors.Is(err, tasks.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "quest already exists")
	case errors.Is(err, tasks.ErrConflict):
		writeError(w, http.StatusConflict, "quest was modified, retry")
	default:
		log.Error("quest operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// readValidated reads the request body and checks it against the named schema.
// It writes the error response itself and returns ok=false on failure.
func readValidated(w http.ResponseWriter, r *http.Request, v *services.Validator, schema string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	if v != nil {
		if err := v.Validate(schema, body); err != nil {
			if errors.Is(err, services.ErrValidation) {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return nil, false
			}
			writeError(w, http.StatusInternalServerError, "validation unavailable")
			return nil, false
		}
	}
	return body, true
}

func userFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := session.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return id, ok
}
