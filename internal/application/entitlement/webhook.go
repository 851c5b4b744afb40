package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goaltrack-api/internal/domain"
)

const (
	checkoutModeSubscription = "subscription"
	checkoutModePayment      = "payment"
)

// HandleEvent applies a verified processor event. Events that cannot be
// attributed to a user are logged and acknowledged so the processor stops
// retrying them; storage failures are returned so it retries.
func (s *service) HandleEvent(ctx context.Context, ev *domain.ProcessorEvent) error {
	switch ev.Type {
	case domain.EventCheckoutCompleted:
		return s.onCheckout(ctx, ev)
	case domain.EventInvoicePaid:
		return s.onInvoicePaid(ctx, ev)
	case domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		return s.onSubscriptionChange(ctx, ev)
	default:
		slog.Debug("ignoring processor event", "event_id", ev.ID, "type", ev.Type)
		return nil
	}
}

func (s *service) onCheckout(ctx context.Context, ev *domain.ProcessorEvent) error {
	cc := ev.Checkout
	if cc == nil || !cc.Paid {
		slog.Info("checkout not paid, skipping", "event_id", ev.ID)
		return nil
	}
	if cc.UserID == "" {
		slog.Warn("checkout without user reference", "event_id", ev.ID, "session_id", cc.SessionID)
		return nil
	}

	g := Grant{
		UserID:        cc.UserID,
		TransactionID: cc.TransactionID,
		Source:        domain.SourceStripe,
		Amount:        cc.AmountTotal,
	}
	switch cc.Mode {
	case checkoutModeSubscription:
		plan, err := s.catalog.Plan(cc.PlanID)
		if err != nil {
			slog.Warn("checkout for unknown plan", "event_id", ev.ID, "plan_id", cc.PlanID)
			return nil
		}
		g.Kind = domain.PaymentSubscription
		g.Plan = plan
		g.ProductID = plan.ID
		g.ExternalSubscriptionID = cc.SubscriptionID
		if cc.SubscriptionID != "" {
			ps, err := s.processor.GetSubscription(ctx, cc.SubscriptionID)
			if err != nil {
				return fmt.Errorf("fetch subscription %s: %w", cc.SubscriptionID, domain.ErrUpstream)
			}
			g.PeriodStart, g.PeriodEnd = ps.PeriodStart, ps.PeriodEnd
		}
	case checkoutModePayment:
		if cc.Tokens <= 0 {
			slog.Warn("token checkout without tokens", "event_id", ev.ID, "session_id", cc.SessionID)
			return nil
		}
		g.Kind = domain.PaymentTokenPurchase
		g.Tokens = cc.Tokens
	default:
		slog.Warn("unhandled checkout mode", "event_id", ev.ID, "mode", cc.Mode)
		return nil
	}

	out, err := s.Apply(ctx, g)
	if err != nil {
		return err
	}
	slog.Info("checkout reconciled", "user_id", g.UserID, "transaction_id", g.TransactionID,
		"already_processed", out.AlreadyProcessed, "tokens_granted", out.TokensGranted)
	return nil
}

// onInvoicePaid grants the monthly allotment for recurring charges. The
// first invoice is covered by the checkout event.
func (s *service) onInvoicePaid(ctx context.Context, ev *domain.ProcessorEvent) error {
	inv := ev.Invoice
	if inv == nil || !inv.Renewal() || inv.SubscriptionID == "" {
		return nil
	}
	sub, err := s.subscriptions.GetByExternalID(ctx, inv.SubscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Warn("renewal for unknown subscription", "event_id", ev.ID, "subscription_id", inv.SubscriptionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}
	plan, err := s.catalog.Plan(sub.PlanID)
	if err != nil {
		slog.Warn("renewal for unknown plan", "event_id", ev.ID, "plan_id", sub.PlanID)
		return nil
	}

	out, err := s.Apply(ctx, Grant{
		UserID:                 sub.UserID,
		TransactionID:          inv.InvoiceID,
		Source:                 domain.SourceStripe,
		ProductID:              plan.ID,
		Kind:                   domain.PaymentSubscription,
		Plan:                   plan,
		ExternalSubscriptionID: inv.SubscriptionID,
		PeriodStart:            inv.PeriodStart,
		PeriodEnd:              inv.PeriodEnd,
		Amount:                 inv.AmountPaid,
		Renewal:                true,
	})
	if err != nil {
		return err
	}
	slog.Info("renewal reconciled", "user_id", sub.UserID, "invoice_id", inv.InvoiceID,
		"already_processed", out.AlreadyProcessed, "tokens_granted", out.TokensGranted)
	return nil
}

// onSubscriptionChange mirrors processor state onto the row linked by
// checkout. Events for subscriptions not linked yet are acknowledged without
// writing: the checkout event creates the row and grants the first period,
// and an earlier mirror would make that grant look redundant. Deletion ends
// the subscription without taking back tokens already granted.
func (s *service) onSubscriptionChange(ctx context.Context, ev *domain.ProcessorEvent) error {
	ps := ev.Subscription
	if ps == nil {
		return nil
	}
	sub, err := s.subscriptions.GetByExternalID(ctx, ps.ID)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Info("subscription event before checkout, skipping", "event_id", ev.ID,
			"subscription_id", ps.ID, "user_id", ps.UserID, "type", ev.Type)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}

	mirror(sub, ps, s.catalog, s.now().UTC())
	if ev.Type == domain.EventSubscriptionDeleted {
		sub.Status = domain.SubscriptionCanceled
	}
	if err := s.subscriptions.Put(ctx, sub); err != nil {
		return fmt.Errorf("store subscription: %w", err)
	}
	if _, _, err := s.SelfHeal(ctx, sub.UserID); err != nil {
		return err
	}
	return nil
}
