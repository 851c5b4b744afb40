package handler

import (
	"net/http"

	"github.com/goaltrack-api/internal/application/notification"
	"github.com/goaltrack-api/internal/domain"
)

type pushSubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
}

type pushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
}

// PushHandler registers Web Push endpoints for the signed-in user.
type PushHandler struct {
	svc notification.Service
}

func NewPushHandler(svc notification.Service) *PushHandler { return &PushHandler{svc: svc} }

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req pushSubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	err := h.svc.Subscribe(r.Context(), domain.PushSubscription{
		UserID:   claims.UserID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	})
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "subscribed")
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req pushUnsubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	if err := h.svc.Unsubscribe(r.Context(), claims.UserID, req.Endpoint); err != nil {
		httpError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "unsubscribed")
}
