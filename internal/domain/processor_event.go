package domain

import "time"

// ProcessorEventType is a payment-processor webhook event type.
type ProcessorEventType string

const (
	EventCheckoutCompleted   ProcessorEventType = "checkout.session.completed"
	EventInvoicePaid         ProcessorEventType = "invoice.paid"
	EventSubscriptionUpdated ProcessorEventType = "customer.subscription.updated"
	EventSubscriptionDeleted ProcessorEventType = "customer.subscription.deleted"
)

// ProcessorEvent is a verified webhook event. Exactly one payload field is
// set for the handled types; other types carry none.
type ProcessorEvent struct {
	ID           string
	Type         ProcessorEventType
	Checkout     *CheckoutCompleted
	Invoice      *InvoicePaid
	Subscription *ProcessorSubscription
}

// CheckoutCompleted is a finished hosted checkout.
type CheckoutCompleted struct {
	SessionID      string
	UserID         string
	Mode           string // "subscription" or "payment"
	SubscriptionID string
	TransactionID  string
	PlanID         string
	Tokens         int64
	AmountTotal    int64
	Paid           bool
}

// InvoicePaid is a settled invoice tied to a subscription.
type InvoicePaid struct {
	InvoiceID      string
	SubscriptionID string
	BillingReason  string
	AmountPaid     int64
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// Renewal reports whether the invoice is a recurring charge rather than the
// first one created by checkout.
func (i *InvoicePaid) Renewal() bool {
	return i.BillingReason == "subscription_cycle"
}
