package handler

import (
	"net/http"
	"time"

	"github.com/goaltrack-api/internal/application/receipt"
	"github.com/goaltrack-api/internal/domain"
)

type validateReceiptRequest struct {
	Platform           string `json:"platform" validate:"required,oneof=ios android"`
	ProductID          string `json:"productId" validate:"required"`
	TransactionReceipt string `json:"transactionReceipt"`
	TransactionID      string `json:"transactionId"`
	PurchaseToken      string `json:"purchaseToken"`
}

type validateReceiptResponse struct {
	Success          bool                 `json:"success"`
	Error            string               `json:"error,omitempty"`
	Valid            bool                 `json:"valid"`
	Environment      string               `json:"environment,omitempty"`
	Expiry           *time.Time           `json:"expiry,omitempty"`
	PurchaseTime     *time.Time           `json:"purchaseTime,omitempty"`
	AlreadyProcessed bool                 `json:"alreadyProcessed"`
	TokensGranted    int64                `json:"tokensGranted"`
	Balance          *domain.TokenBalance `json:"balance,omitempty"`
	Message          string               `json:"message,omitempty"`
}

// ReceiptHandler serves POST /validate-receipt.
type ReceiptHandler struct {
	svc receipt.Service
}

func NewReceiptHandler(svc receipt.Service) *ReceiptHandler { return &ReceiptHandler{svc: svc} }

func (h *ReceiptHandler) Validate(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}
	var req validateReceiptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, r, err)
		return
	}
	platform, err := receipt.ParsePlatform(req.Platform)
	if err != nil {
		httpError(w, r, err)
		return
	}
	res, err := h.svc.Submit(r.Context(), receipt.SubmitRequest{
		UserID:        claims.UserID,
		Platform:      platform,
		ProductID:     req.ProductID,
		Receipt:       req.TransactionReceipt,
		TransactionID: req.TransactionID,
		PurchaseToken: req.PurchaseToken,
	})
	if err != nil {
		httpError(w, r, err)
		return
	}

	out := validateReceiptResponse{
		Valid:        res.Valid,
		Environment:  res.Environment,
		Expiry:       res.Expiry,
		PurchaseTime: res.PurchaseTime,
	}
	if !res.Valid {
		out.Error = "receipt could not be verified"
		writeJSON(w, http.StatusBadRequest, out)
		return
	}
	out.Success = true
	out.AlreadyProcessed = res.Outcome.AlreadyProcessed
	out.TokensGranted = res.Outcome.TokensGranted
	out.Balance = res.Outcome.Balance
	if out.AlreadyProcessed {
		out.Message = "already processed"
	}
	writeJSON(w, http.StatusOK, out)
}
