package domain

import (
	"fmt"
	"time"
)

// PaymentKind distinguishes one-off token packs from subscription purchases.
type PaymentKind string

const (
	PaymentTokenPurchase PaymentKind = "token_purchase"
	PaymentSubscription  PaymentKind = "subscription"
)

// PaymentSource names where a financial event was observed.
type PaymentSource string

const (
	SourceAppStore  PaymentSource = "app_store"
	SourcePlayStore PaymentSource = "play_store"
	SourceStripe    PaymentSource = "stripe"
)

// ParsePaymentKind rejects unknown kinds.
func ParsePaymentKind(s string) (PaymentKind, error) {
	switch k := PaymentKind(s); k {
	case PaymentTokenPurchase, PaymentSubscription:
		return k, nil
	default:
		return "", fmt.Errorf("unknown payment kind %q: %w", s, ErrBadRequest)
	}
}

// Payment records one financial event. ExternalTransactionID is the
// idempotency key (PK); rows are written once with attribute_not_exists and
// never mutated afterwards.
type Payment struct {
	ExternalTransactionID string        `json:"external_transaction_id" dynamodbav:"external_transaction_id"`
	UserID                string        `json:"user_id" dynamodbav:"user_id"`
	Kind                  PaymentKind   `json:"kind" dynamodbav:"kind"`
	Source                PaymentSource `json:"source" dynamodbav:"source"`
	ProductID             string        `json:"product_id" dynamodbav:"product_id"`
	Amount                int64         `json:"amount" dynamodbav:"amount"` // minor units
	TokensGranted         int64         `json:"tokens_granted" dynamodbav:"tokens_granted"`
	Status                string        `json:"status" dynamodbav:"status"`
	CreatedAt             time.Time     `json:"created" dynamodbav:"created_at"`
}

const PaymentStatusCompleted = "completed"
