// Package entitlement reconciles token balances and subscriptions from store
// receipts, processor webhooks and the persisted balance.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goaltrack-api/internal/domain"
)

// Grant is one verified purchase to be credited. TransactionID is the
// idempotency key: a second Apply with the same ID grants nothing.
type Grant struct {
	UserID                 string
	TransactionID          string
	Source                 domain.PaymentSource
	ProductID              string
	Kind                   domain.PaymentKind
	Tokens                 int64       // token packs
	Plan                   domain.Plan // subscriptions
	ExternalSubscriptionID string
	PeriodStart            time.Time
	PeriodEnd              time.Time
	Amount                 int64
	// Renewal grants the monthly allotment even when the subscription is
	// already active.
	Renewal bool
}

type Outcome struct {
	AlreadyProcessed bool
	TokensGranted    int64
	Healed           bool
	Balance          *domain.TokenBalance
	Subscription     *domain.Subscription
}

// Entitlements is the user's current view for GET /entitlements.
type Entitlements struct {
	Balance      *domain.TokenBalance
	Subscription *domain.Subscription
}

type Service interface {
	Apply(ctx context.Context, g Grant) (*Outcome, error)
	SelfHeal(ctx context.Context, userID string) (*domain.TokenBalance, bool, error)
	Get(ctx context.Context, userID string) (*Entitlements, error)
	HandleEvent(ctx context.Context, ev *domain.ProcessorEvent) error
}

type paymentStore interface {
	Create(ctx context.Context, p *domain.Payment) (bool, error)
	Delete(ctx context.Context, transactionID string) error
}

type subscriptionStore interface {
	Put(ctx context.Context, s *domain.Subscription) error
	Get(ctx context.Context, userID string) (*domain.Subscription, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error)
}

type balanceStore interface {
	Get(ctx context.Context, userID string) (*domain.TokenBalance, error)
	Apply(ctx context.Context, userID string, change domain.BalanceChange) (*domain.TokenBalance, error)
}

type planCatalog interface {
	Plan(planID string) (domain.Plan, error)
	PlanByPrice(priceID string) (domain.Plan, error)
}

type subscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*domain.ProcessorSubscription, error)
}

type service struct {
	payments      paymentStore
	subscriptions subscriptionStore
	balances      balanceStore
	catalog       planCatalog
	processor     subscriptionFetcher
	now           func() time.Time
}

type ServiceDeps struct {
	PaymentRepo      paymentStore
	SubscriptionRepo subscriptionStore
	BalanceRepo      balanceStore
	Catalog          planCatalog
	Processor        subscriptionFetcher
}

func NewService(deps ServiceDeps) Service {
	return &service{
		payments:      deps.PaymentRepo,
		subscriptions: deps.SubscriptionRepo,
		balances:      deps.BalanceRepo,
		catalog:       deps.Catalog,
		processor:     deps.Processor,
		now:           time.Now,
	}
}

// Apply credits g once. The Payment insert is the gate: whoever creates the
// row grants, everyone else only self-heals.
func (s *service) Apply(ctx context.Context, g Grant) (*Outcome, error) {
	if g.UserID == "" || g.TransactionID == "" {
		return nil, fmt.Errorf("grant needs user and transaction: %w", domain.ErrBadRequest)
	}

	var (
		existing *domain.Subscription
		grant    int64
		err      error
	)
	switch g.Kind {
	case domain.PaymentTokenPurchase:
		if g.Tokens <= 0 {
			return nil, fmt.Errorf("token purchase without tokens: %w", domain.ErrBadRequest)
		}
		grant = g.Tokens
	case domain.PaymentSubscription:
		existing, err = s.subscription(ctx, g.UserID)
		if err != nil {
			return nil, err
		}
		bal, err := s.balance(ctx, g.UserID)
		if err != nil {
			return nil, err
		}
		if g.Renewal || existing == nil || !existing.Status.Entitled() || !bal.IsSubscribed {
			grant = g.Plan.MonthlyTokens
		}
	default:
		return nil, fmt.Errorf("unknown payment kind %q: %w", g.Kind, domain.ErrBadRequest)
	}

	now := s.now().UTC()
	created, err := s.payments.Create(ctx, &domain.Payment{
		ExternalTransactionID: g.TransactionID,
		UserID:                g.UserID,
		Kind:                  g.Kind,
		Source:                g.Source,
		ProductID:             g.ProductID,
		Amount:                g.Amount,
		TokensGranted:         grant,
		Status:                domain.PaymentStatusCompleted,
		CreatedAt:             now,
	})
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	if !created {
		bal, healed, err := s.SelfHeal(ctx, g.UserID)
		if err != nil {
			return nil, err
		}
		return &Outcome{AlreadyProcessed: true, Healed: healed, Balance: bal, Subscription: existing}, nil
	}

	out := &Outcome{TokensGranted: grant}
	change := domain.BalanceChange{AddTokens: grant}
	if g.Kind == domain.PaymentSubscription {
		sub := s.upsertFromGrant(existing, g, now)
		if err := s.subscriptions.Put(ctx, sub); err != nil {
			s.rollback(ctx, g.TransactionID)
			return nil, fmt.Errorf("store subscription: %w", err)
		}
		subscribed := true
		monthly := g.Plan.MonthlyTokens
		change.Subscribed = &subscribed
		change.MonthlyTokens = &monthly
		out.Subscription = sub
	}

	bal, err := s.balances.Apply(ctx, g.UserID, change)
	if err != nil {
		s.rollback(ctx, g.TransactionID)
		return nil, err
	}
	out.Balance = bal

	healedBal, healed, err := s.SelfHeal(ctx, g.UserID)
	if err != nil {
		slog.Warn("self-heal after grant failed", "user_id", g.UserID, "err", err)
		return out, nil
	}
	out.Balance, out.Healed = healedBal, healed
	return out, nil
}

func (s *service) upsertFromGrant(existing *domain.Subscription, g Grant, now time.Time) *domain.Subscription {
	sub := existing
	if sub == nil {
		sub = &domain.Subscription{UserID: g.UserID, CreatedAt: now}
	}
	sub.Source = g.Source
	sub.PlanID = g.Plan.ID
	sub.MonthlyTokenGrant = g.Plan.MonthlyTokens
	sub.Status = domain.SubscriptionActive
	sub.CancelAtPeriodEnd = false
	if g.ExternalSubscriptionID != "" {
		sub.ExternalSubscriptionID = g.ExternalSubscriptionID
	}
	if !g.PeriodStart.IsZero() {
		sub.CurrentPeriodStart = g.PeriodStart
	}
	if !g.PeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = g.PeriodEnd
	}
	sub.UpdatedAt = now
	return sub
}

// rollback removes the idempotency row of a grant that did not land so a
// retry of the same transaction can grant again.
func (s *service) rollback(ctx context.Context, transactionID string) {
	if err := s.payments.Delete(ctx, transactionID); err != nil {
		slog.Error("failed to roll back payment", "transaction_id", transactionID, "err", err)
	}
}

// SelfHeal forces the balance's subscriber flag and monthly allotment to
// agree with the subscription row. A canceled_pending subscription whose
// period has ended is closed first. Reports whether anything was rewritten.
func (s *service) SelfHeal(ctx context.Context, userID string) (*domain.TokenBalance, bool, error) {
	sub, err := s.subscription(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	now := s.now().UTC()
	if sub != nil && sub.Status == domain.SubscriptionCanceledPending &&
		!sub.CurrentPeriodEnd.IsZero() && now.After(sub.CurrentPeriodEnd) {
		sub.Status = domain.SubscriptionCanceled
		sub.UpdatedAt = now
		if err := s.subscriptions.Put(ctx, sub); err != nil {
			return nil, false, fmt.Errorf("close lapsed subscription: %w", err)
		}
	}

	bal, err := s.balance(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	wantSubscribed := sub != nil && sub.Status.Entitled()
	var wantMonthly int64
	if wantSubscribed {
		wantMonthly = sub.MonthlyTokenGrant
	}
	if bal.IsSubscribed == wantSubscribed && bal.MonthlyTokens == wantMonthly {
		return bal, false, nil
	}

	slog.Info("healing entitlement drift", "user_id", userID,
		"is_subscribed", bal.IsSubscribed, "want_subscribed", wantSubscribed,
		"monthly_tokens", bal.MonthlyTokens, "want_monthly_tokens", wantMonthly)
	healed, err := s.balances.Apply(ctx, userID, domain.BalanceChange{
		Subscribed:    &wantSubscribed,
		MonthlyTokens: &wantMonthly,
	})
	if err != nil {
		return nil, false, fmt.Errorf("heal balance: %w", err)
	}
	return healed, true, nil
}

func (s *service) Get(ctx context.Context, userID string) (*Entitlements, error) {
	bal, _, err := s.SelfHeal(ctx, userID)
	if err != nil {
		return nil, err
	}
	sub, err := s.subscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Entitlements{Balance: bal, Subscription: sub}, nil
}

// subscription returns nil without error when the user never subscribed.
func (s *service) subscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.subscriptions.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return sub, nil
}

// balance returns an empty balance when none has been written yet.
func (s *service) balance(ctx context.Context, userID string) (*domain.TokenBalance, error) {
	bal, err := s.balances.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.TokenBalance{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	return bal, nil
}

// mirror copies the processor's view onto the local row. The plan is only
// replaced when the price maps to a known plan.
func mirror(sub *domain.Subscription, ps *domain.ProcessorSubscription, cat planCatalog, now time.Time) {
	if ps.ID != "" {
		sub.ExternalSubscriptionID = ps.ID
	}
	sub.Source = domain.SourceStripe
	sub.Status = ps.LocalStatus()
	sub.CancelAtPeriodEnd = ps.CancelAtPeriodEnd
	if !ps.PeriodStart.IsZero() {
		sub.CurrentPeriodStart = ps.PeriodStart
	}
	if !ps.PeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = ps.PeriodEnd
	}
	if ps.PriceID != "" {
		if plan, err := cat.PlanByPrice(ps.PriceID); err == nil {
			sub.PlanID = plan.ID
			sub.MonthlyTokenGrant = plan.MonthlyTokens
		} else {
			slog.Warn("processor price has no plan", "price_id", ps.PriceID, "subscription_id", ps.ID)
		}
	}
	sub.UpdatedAt = now
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
