package domain

import (
	"fmt"
	"time"
)

// SubscriptionStatus is the local lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionNone            SubscriptionStatus = "none"
	SubscriptionActive          SubscriptionStatus = "active"
	SubscriptionCanceledPending SubscriptionStatus = "canceled_pending"
	SubscriptionCanceled        SubscriptionStatus = "canceled"
)

// Entitled reports whether the status still grants subscriber benefits.
// A subscription canceled at period end stays entitled until the period closes.
func (s SubscriptionStatus) Entitled() bool {
	switch s {
	case SubscriptionActive, SubscriptionCanceledPending:
		return true
	case SubscriptionNone, SubscriptionCanceled, "":
		return false
	default:
		panic(fmt.Sprintf("domain: unhandled subscription status %q", string(s)))
	}
}

// Subscription is the source of truth for subscription lifecycle, fed by
// client receipt validation and processor webhooks. PK: user_id.
type Subscription struct {
	UserID                 string             `json:"user_id" dynamodbav:"user_id"`
	ExternalSubscriptionID string             `json:"external_subscription_id,omitempty" dynamodbav:"external_subscription_id,omitempty"`
	Source                 PaymentSource      `json:"source" dynamodbav:"source"`
	PlanID                 string             `json:"plan_id" dynamodbav:"plan_id"`
	MonthlyTokenGrant      int64              `json:"monthly_token_grant" dynamodbav:"monthly_token_grant"`
	Status                 SubscriptionStatus `json:"status" dynamodbav:"status"`
	CurrentPeriodStart     time.Time          `json:"current_period_start" dynamodbav:"current_period_start"`
	CurrentPeriodEnd       time.Time          `json:"current_period_end" dynamodbav:"current_period_end"`
	CancelAtPeriodEnd      bool               `json:"cancel_at_period_end" dynamodbav:"cancel_at_period_end"`
	CreatedAt              time.Time          `json:"created" dynamodbav:"created_at"`
	UpdatedAt              time.Time          `json:"updated" dynamodbav:"updated_at"`
}

// ProcessorSubscription is the processor-side view of a subscription after a mutation.
type ProcessorSubscription struct {
	ID                string
	UserID            string // from metadata set at checkout; may be empty
	PriceID           string
	Status            string
	CancelAtPeriodEnd bool
	PeriodStart       time.Time
	PeriodEnd         time.Time
}

// LocalStatus maps the processor's status vocabulary onto the local lifecycle.
func (p ProcessorSubscription) LocalStatus() SubscriptionStatus {
	switch p.Status {
	case "active", "trialing", "past_due":
		if p.CancelAtPeriodEnd {
			return SubscriptionCanceledPending
		}
		return SubscriptionActive
	case "canceled", "unpaid", "incomplete_expired", "paused":
		return SubscriptionCanceled
	default:
		return SubscriptionNone
	}
}
