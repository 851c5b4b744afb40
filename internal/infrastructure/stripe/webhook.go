package stripeinfra

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/goaltrack-api/internal/domain"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ParseEvent verifies the Stripe-Signature header and decodes the handled
// event types. Nothing in payload is trusted before the signature checks out.
func (c *Client) ParseEvent(payload []byte, signature string) (*domain.ProcessorEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("verify webhook signature: %w", domain.ErrUnauthorized)
	}
	return decodeEvent(event)
}

func decodeEvent(event stripe.Event) (*domain.ProcessorEvent, error) {
	out := &domain.ProcessorEvent{ID: event.ID, Type: domain.ProcessorEventType(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case domain.EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", domain.ErrBadRequest)
		}
		out.Checkout = checkoutFromSession(&sess)
	case domain.EventInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", domain.ErrBadRequest)
		}
		out.Invoice = invoicePaid(&inv)
	case domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", domain.ErrBadRequest)
		}
		out.Subscription = Snapshot(&sub)
	}
	return out, nil
}

func checkoutFromSession(sess *stripe.CheckoutSession) *domain.CheckoutCompleted {
	userID := sess.ClientReferenceID
	if userID == "" {
		userID = sess.Metadata["user_id"]
	}
	txn := sess.Metadata["transaction_id"]
	if txn == "" {
		txn = sess.ID
	}
	cc := &domain.CheckoutCompleted{
		SessionID:     sess.ID,
		UserID:        userID,
		Mode:          string(sess.Mode),
		TransactionID: txn,
		PlanID:        sess.Metadata["plan_id"],
		Tokens:        metadataInt(sess.Metadata, "tokens"),
		AmountTotal:   sess.AmountTotal,
		Paid:          sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusUnpaid,
	}
	if sess.Subscription != nil {
		cc.SubscriptionID = sess.Subscription.ID
	}
	return cc
}

func invoicePaid(inv *stripe.Invoice) *domain.InvoicePaid {
	ip := &domain.InvoicePaid{
		InvoiceID:     inv.ID,
		BillingReason: string(inv.BillingReason),
		AmountPaid:    inv.AmountPaid,
		PeriodStart:   unix(inv.PeriodStart),
		PeriodEnd:     unix(inv.PeriodEnd),
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		ip.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
	}
	// Line periods describe the service window being paid for.
	if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil {
		ip.PeriodStart = unix(inv.Lines.Data[0].Period.Start)
		ip.PeriodEnd = unix(inv.Lines.Data[0].Period.End)
	}
	return ip
}

func unix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
