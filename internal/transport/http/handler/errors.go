package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goaltrack-api/internal/domain"
)

// httpError maps a service error onto a status code. Server-side failures
// are logged with the request ID and answered with a generic message.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := chimiddleware.GetReqID(r.Context())
	env := MessageEnvelope{Error: err.Error()}

	var (
		mismatch *domain.CodeMismatchError
		cooldown *domain.CooldownError
		status   int
	)
	switch {
	case errors.As(err, &mismatch):
		status = http.StatusBadRequest
		left := mismatch.AttemptsLeft
		env.AttemptsLeft = &left
	case errors.As(err, &cooldown):
		status = http.StatusTooManyRequests
		env.RetryAfter = cooldown.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(env.RetryAfter))
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrInvalidCode):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUpstream):
		status = http.StatusInternalServerError
		slog.Error("upstream failure", "request_id", reqID, "path", r.URL.Path, "err", err)
		env.Error = "upstream service unavailable"
		env.RequestID = reqID
	default:
		status = http.StatusInternalServerError
		slog.Error("request failed", "request_id", reqID, "path", r.URL.Path, "err", err)
		env.Error = "internal server error"
		env.RequestID = reqID
	}
	writeJSON(w, status, env)
}
