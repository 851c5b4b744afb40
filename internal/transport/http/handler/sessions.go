package handler

import (
	"net/http"

	"github.com/goaltrack-api/internal/application/session"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// SessionHandler handles session endpoints. Sessions are opened by OTP
// verification; these routes only rotate and close them.
type SessionHandler struct {
	svc session.Service
}

func NewSessionHandler(svc session.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	bearer, newToken, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{Success: true, Bearer: bearer, RefreshToken: newToken})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}
	if err := h.svc.Logout(r.Context(), claims.SessionID); err != nil {
		httpError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "logged out")
}
