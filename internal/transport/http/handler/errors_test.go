package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goaltrack-api/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestHTTPError_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrBadRequest), http.StatusBadRequest},
		{fmt.Errorf("x: %w", domain.ErrInvalidCode), http.StatusBadRequest},
		{fmt.Errorf("x: %w", domain.ErrUnauthorized), http.StatusUnauthorized},
		{fmt.Errorf("x: %w", domain.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", domain.ErrConflict), http.StatusConflict},
		{fmt.Errorf("x: %w", domain.ErrRateLimited), http.StatusTooManyRequests},
		{fmt.Errorf("x: %w", domain.ErrUpstream), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		httpError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		assert.Equal(t, tc.want, rr.Code, tc.err.Error())
	}
}

func TestHTTPError_ServerErrorsCarryRequestID(t *testing.T) {
	h := chimiddleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, r, errors.New("dynamodb: throttled"))
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	env := decodeEnvelope(t, rr)
	assert.Equal(t, "internal server error", env.Error)
	assert.NotEmpty(t, env.RequestID)
	assert.NotContains(t, env.Error, "throttled")
}
