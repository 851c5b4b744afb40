package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/goaltrack-api/internal/domain"
)

// Action is a subscription lifecycle operation requested by the user.
type Action string

const (
	ActionUpgrade           Action = "upgrade"
	ActionDowngrade         Action = "downgrade"
	ActionReinstate         Action = "reinstate"
	ActionCancelImmediate   Action = "cancel_immediate"
	ActionCancelEndOfPeriod Action = "cancel_end_of_period"
)

const defaultProrationBehavior = "create_prorations"

var prorations = map[string]bool{
	"create_prorations": true,
	"none":              true,
	"always_invoice":    true,
}

type ChangeRequest struct {
	Action     Action
	NewPriceID string
	Proration  string
}

type Lifecycle interface {
	Subscribe(ctx context.Context, userID string, monthlyTokens int64) (string, error)
	Cancel(ctx context.Context, userID string) (*domain.Subscription, error)
	Change(ctx context.Context, userID string, req ChangeRequest) (*domain.Subscription, error)
}

type processor interface {
	CreateSubscriptionCheckout(ctx context.Context, userID, planID, priceID string) (string, error)
	ChangePrice(ctx context.Context, id, priceID, proration string) (*domain.ProcessorSubscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*domain.ProcessorSubscription, error)
	Cancel(ctx context.Context, id string) (*domain.ProcessorSubscription, error)
}

type lifecycleCatalog interface {
	planCatalog
	PlanByMonthlyTokens(n int64) (domain.Plan, error)
	PriceForPlan(planID string) (string, error)
}

type healer interface {
	SelfHeal(ctx context.Context, userID string) (*domain.TokenBalance, bool, error)
}

type lifecycle struct {
	subscriptions subscriptionStore
	processor     processor
	catalog       lifecycleCatalog
	healer        healer
	now           func() time.Time
}

type LifecycleDeps struct {
	SubscriptionRepo subscriptionStore
	Processor        processor
	Catalog          lifecycleCatalog
	Reconciler       healer
}

func NewLifecycle(deps LifecycleDeps) Lifecycle {
	return &lifecycle{
		subscriptions: deps.SubscriptionRepo,
		processor:     deps.Processor,
		catalog:       deps.Catalog,
		healer:        deps.Reconciler,
		now:           time.Now,
	}
}

// Subscribe starts a hosted checkout for the plan granting monthlyTokens and
// returns the checkout URL. Entitlement is granted later by the webhook.
func (l *lifecycle) Subscribe(ctx context.Context, userID string, monthlyTokens int64) (string, error) {
	plan, err := l.catalog.PlanByMonthlyTokens(monthlyTokens)
	if err != nil {
		return "", err
	}
	sub, err := l.current(ctx, userID)
	if err != nil && !isNotFound(err) {
		return "", err
	}
	if sub != nil && sub.Status.Entitled() {
		return "", fmt.Errorf("already subscribed to %s: %w", sub.PlanID, domain.ErrConflict)
	}
	price, err := l.catalog.PriceForPlan(plan.ID)
	if err != nil {
		return "", err
	}
	url, err := l.processor.CreateSubscriptionCheckout(ctx, userID, plan.ID, price)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, domain.ErrUpstream)
	}
	return url, nil
}

// Cancel is cancel at period end.
func (l *lifecycle) Cancel(ctx context.Context, userID string) (*domain.Subscription, error) {
	return l.Change(ctx, userID, ChangeRequest{Action: ActionCancelEndOfPeriod})
}

func (l *lifecycle) Change(ctx context.Context, userID string, req ChangeRequest) (*domain.Subscription, error) {
	sub, err := l.current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.ExternalSubscriptionID == "" || sub.Source != domain.SourceStripe {
		return nil, fmt.Errorf("subscription is managed by the app store: %w", domain.ErrBadRequest)
	}

	var ps *domain.ProcessorSubscription
	switch req.Action {
	case ActionUpgrade, ActionDowngrade:
		ps, err = l.changePlan(ctx, sub, req)
	case ActionReinstate:
		if !sub.CancelAtPeriodEnd || sub.Status != domain.SubscriptionCanceledPending {
			return nil, fmt.Errorf("subscription is not pending cancellation: %w", domain.ErrConflict)
		}
		ps, err = upstream(l.processor.SetCancelAtPeriodEnd(ctx, sub.ExternalSubscriptionID, false))
	case ActionCancelEndOfPeriod:
		if !sub.Status.Entitled() {
			return nil, fmt.Errorf("subscription is not active: %w", domain.ErrConflict)
		}
		ps, err = upstream(l.processor.SetCancelAtPeriodEnd(ctx, sub.ExternalSubscriptionID, true))
	case ActionCancelImmediate:
		if sub.Status == domain.SubscriptionCanceled {
			return nil, fmt.Errorf("subscription already canceled: %w", domain.ErrConflict)
		}
		ps, err = upstream(l.processor.Cancel(ctx, sub.ExternalSubscriptionID))
	default:
		return nil, fmt.Errorf("unknown action %q: %w", req.Action, domain.ErrBadRequest)
	}
	if err != nil {
		return nil, err
	}

	mirror(sub, ps, l.catalog, l.now().UTC())
	if err := l.subscriptions.Put(ctx, sub); err != nil {
		return nil, fmt.Errorf("store subscription: %w", err)
	}
	if _, _, err := l.healer.SelfHeal(ctx, userID); err != nil {
		return nil, err
	}
	return sub, nil
}

func (l *lifecycle) changePlan(ctx context.Context, sub *domain.Subscription, req ChangeRequest) (*domain.ProcessorSubscription, error) {
	if req.NewPriceID == "" {
		return nil, fmt.Errorf("newPriceId is required: %w", domain.ErrBadRequest)
	}
	plan, err := l.catalog.PlanByPrice(req.NewPriceID)
	if err != nil {
		return nil, err
	}
	if plan.ID == sub.PlanID {
		return nil, fmt.Errorf("already on plan %s: %w", plan.ID, domain.ErrConflict)
	}
	if req.Action == ActionUpgrade && plan.MonthlyTokens <= sub.MonthlyTokenGrant {
		return nil, fmt.Errorf("plan %s is not an upgrade: %w", plan.ID, domain.ErrBadRequest)
	}
	if req.Action == ActionDowngrade && plan.MonthlyTokens >= sub.MonthlyTokenGrant {
		return nil, fmt.Errorf("plan %s is not a downgrade: %w", plan.ID, domain.ErrBadRequest)
	}
	proration := req.Proration
	if proration == "" {
		proration = defaultProrationBehavior
	}
	if !prorations[proration] {
		return nil, fmt.Errorf("unknown proration %q: %w", proration, domain.ErrBadRequest)
	}
	return upstream(l.processor.ChangePrice(ctx, sub.ExternalSubscriptionID, req.NewPriceID, proration))
}

// upstream tags processor failures so they surface as 5xx.
func upstream(ps *domain.ProcessorSubscription, err error) (*domain.ProcessorSubscription, error) {
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrUpstream)
	}
	return ps, nil
}

func (l *lifecycle) current(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := l.subscriptions.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("no subscription: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return sub, nil
}
