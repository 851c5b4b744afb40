package handler

import (
	"net/http"

	"github.com/goaltrack-api/internal/application/entitlement"
	"github.com/goaltrack-api/internal/domain"
)

type subscribeRequest struct {
	MonthlyTokens int64 `json:"monthlyTokens" validate:"required,gt=0"`
}

type cancelRequest struct{}

type changeRequest struct {
	NewPriceID string `json:"newPriceId" validate:"required"`
	Proration  string `json:"proration"`
}

type subscriptionResponse struct {
	Message      string               `json:"message,omitempty"`
	URL          string               `json:"url,omitempty"`
	Subscription *domain.Subscription `json:"subscription,omitempty"`
}

type entitlementsResponse struct {
	Balance      *domain.TokenBalance `json:"balance"`
	Subscription *domain.Subscription `json:"subscription"`
}

// SubscriptionHandler serves the subscription management and entitlement routes.
type SubscriptionHandler struct {
	lifecycle    entitlement.Lifecycle
	entitlements entitlement.Service
}

func NewSubscriptionHandler(lifecycle entitlement.Lifecycle, entitlements entitlement.Service) *SubscriptionHandler {
	return &SubscriptionHandler{lifecycle: lifecycle, entitlements: entitlements}
}

// Manage serves POST /manage-subscription {action: subscribe|cancel}.
func (h *SubscriptionHandler) Manage(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		httpError(w, r, err)
		return
	}
	action, err := actionOf(body)
	if err != nil {
		httpError(w, r, err)
		return
	}
	switch action {
	case "subscribe":
		var req subscribeRequest
		if err := decodeVariant(body, &req); err != nil {
			httpError(w, r, err)
			return
		}
		url, err := h.lifecycle.Subscribe(r.Context(), claims.UserID, req.MonthlyTokens)
		if err != nil {
			httpError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, subscriptionResponse{URL: url})
	case "cancel":
		var req cancelRequest
		if err := decodeVariant(body, &req); err != nil {
			httpError(w, r, err)
			return
		}
		sub, err := h.lifecycle.Cancel(r.Context(), claims.UserID)
		if err != nil {
			httpError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, subscriptionResponse{Message: "subscription will cancel at period end", Subscription: sub})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

// ManageAdvanced serves POST /manage-subscription-advanced.
func (h *SubscriptionHandler) ManageAdvanced(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		httpError(w, r, err)
		return
	}
	action, err := actionOf(body)
	if err != nil {
		httpError(w, r, err)
		return
	}

	req := entitlement.ChangeRequest{Action: entitlement.Action(action)}
	switch req.Action {
	case entitlement.ActionUpgrade, entitlement.ActionDowngrade:
		var change changeRequest
		if err := decodeVariant(body, &change); err != nil {
			httpError(w, r, err)
			return
		}
		req.NewPriceID, req.Proration = change.NewPriceID, change.Proration
	case entitlement.ActionReinstate, entitlement.ActionCancelImmediate, entitlement.ActionCancelEndOfPeriod:
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	sub, err := h.lifecycle.Change(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{Message: "subscription updated", Subscription: sub})
}

// Get serves GET /entitlements.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}
	ent, err := h.entitlements.Get(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entitlementsResponse{Balance: ent.Balance, Subscription: ent.Subscription})
}
