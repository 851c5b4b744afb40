package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goaltrack-api/internal/application/entitlement"
	"github.com/goaltrack-api/internal/application/receipt"
	"github.com/goaltrack-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReceiptSvc struct{ mock.Mock }

func (m *mockReceiptSvc) Submit(ctx context.Context, req receipt.SubmitRequest) (*receipt.Result, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*receipt.Result); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func postReceipt(h *ReceiptHandler, body string) *httptest.ResponseRecorder {
	r := authedReq(http.MethodPost, "/v1/validate-receipt", "u1", body)
	rr := httptest.NewRecorder()
	h.Validate(rr, r)
	return rr
}

func TestValidateReceipt_RequiresClaims(t *testing.T) {
	h := NewReceiptHandler(&mockReceiptSvc{})
	r := httptest.NewRequest(http.MethodPost, "/v1/validate-receipt", nil)
	rr := httptest.NewRecorder()
	h.Validate(rr, r)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestValidateReceipt_UnknownPlatform(t *testing.T) {
	svc := &mockReceiptSvc{}
	rr := postReceipt(NewReceiptHandler(svc), `{"platform":"windows","productId":"tokens_100"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestValidateReceipt_Granted(t *testing.T) {
	svc := &mockReceiptSvc{}
	bought := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.On("Submit", mock.Anything, receipt.SubmitRequest{
		UserID:        "u1",
		Platform:      receipt.PlatformIOS,
		ProductID:     "tokens_100",
		Receipt:       "base64receipt",
		TransactionID: "1000000001",
	}).Return(&receipt.Result{
		Validation: receipt.Validation{Valid: true, Environment: "Production", PurchaseTime: &bought},
		Outcome: &entitlement.Outcome{
			TokensGranted: 100,
			Balance:       &domain.TokenBalance{UserID: "u1", TokensRemaining: 150},
		},
	}, nil)

	rr := postReceipt(NewReceiptHandler(svc),
		`{"platform":"ios","productId":"tokens_100","transactionReceipt":"base64receipt","transactionId":"1000000001"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp validateReceiptResponse
	require.NoError(t, json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	assert.True(t, resp.Valid)
	assert.Equal(t, "Production", resp.Environment)
	assert.Equal(t, int64(100), resp.TokensGranted)
	assert.False(t, resp.AlreadyProcessed)
	require.NotNil(t, resp.Balance)
	assert.Equal(t, int64(150), resp.Balance.TokensRemaining)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &wire))
	assert.Equal(t, true, wire["success"])
	assert.Contains(t, wire, "tokensGranted")
	assert.Contains(t, wire, "purchaseTime")
	assert.NotContains(t, wire, "error")
	svc.AssertExpectations(t)
}

func TestValidateReceipt_Replay(t *testing.T) {
	svc := &mockReceiptSvc{}
	svc.On("Submit", mock.Anything, mock.Anything).Return(&receipt.Result{
		Validation: receipt.Validation{Valid: true, Environment: "Sandbox"},
		Outcome:    &entitlement.Outcome{AlreadyProcessed: true, Balance: &domain.TokenBalance{TokensRemaining: 150}},
	}, nil)

	rr := postReceipt(NewReceiptHandler(svc),
		`{"platform":"android","productId":"tokens_100","purchaseToken":"tok","transactionId":"GPA.1"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp validateReceiptResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.AlreadyProcessed)
	assert.Zero(t, resp.TokensGranted)
	assert.Equal(t, "already processed", resp.Message)
}

func TestValidateReceipt_InvalidIsBadRequest(t *testing.T) {
	svc := &mockReceiptSvc{}
	svc.On("Submit", mock.Anything, mock.Anything).Return(&receipt.Result{
		Validation: receipt.Validation{Valid: false, Environment: "Production"},
	}, nil)

	rr := postReceipt(NewReceiptHandler(svc),
		`{"platform":"ios","productId":"tokens_100","transactionReceipt":"x","transactionId":"1"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var resp validateReceiptResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "receipt could not be verified", resp.Error)
	assert.False(t, resp.Valid)
	assert.Nil(t, resp.Balance)
}

func TestValidateReceipt_UpstreamFailureHidesDetail(t *testing.T) {
	svc := &mockReceiptSvc{}
	svc.On("Submit", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("apple verifyReceipt: connection reset: %w", domain.ErrUpstream))

	rr := postReceipt(NewReceiptHandler(svc),
		`{"platform":"ios","productId":"tokens_100","transactionReceipt":"x","transactionId":"1"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection reset")
}
