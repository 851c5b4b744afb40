package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/goaltrack-api/internal/domain"
	"github.com/goaltrack-api/internal/pkg/catalog"
	"github.com/stretchr/testify/mock"
)

type fakePayments struct {
	rows      map[string]domain.Payment
	createErr error
}

func (f *fakePayments) Create(_ context.Context, p *domain.Payment) (bool, error) {
	if f.createErr != nil {
		return false, f.createErr
	}
	if _, ok := f.rows[p.ExternalTransactionID]; ok {
		return false, nil
	}
	f.rows[p.ExternalTransactionID] = *p
	return true, nil
}

func (f *fakePayments) Delete(_ context.Context, id string) error {
	delete(f.rows, id)
	return nil
}

type fakeSubscriptions struct {
	rows map[string]domain.Subscription
}

func (f *fakeSubscriptions) Put(_ context.Context, s *domain.Subscription) error {
	f.rows[s.UserID] = *s
	return nil
}

func (f *fakeSubscriptions) Get(_ context.Context, userID string) (*domain.Subscription, error) {
	s, ok := f.rows[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSubscriptions) GetByExternalID(_ context.Context, id string) (*domain.Subscription, error) {
	for _, s := range f.rows {
		if s.ExternalSubscriptionID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// fakeBalances applies changes the way the ADD/SET update expression does.
type fakeBalances struct {
	rows     map[string]domain.TokenBalance
	applyErr error
	applies  int
}

func (f *fakeBalances) Get(_ context.Context, userID string) (*domain.TokenBalance, error) {
	b, ok := f.rows[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (f *fakeBalances) Apply(_ context.Context, userID string, c domain.BalanceChange) (*domain.TokenBalance, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.applies++
	b := f.rows[userID]
	b.UserID = userID
	b.TokensRemaining += c.AddTokens
	if c.Subscribed != nil {
		b.IsSubscribed = *c.Subscribed
	}
	if c.MonthlyTokens != nil {
		b.MonthlyTokens = *c.MonthlyTokens
	}
	f.rows[userID] = b
	return &b, nil
}

type mockProcessor struct{ mock.Mock }

func (m *mockProcessor) snapshot(args mock.Arguments) (*domain.ProcessorSubscription, error) {
	if ps, _ := args.Get(0).(*domain.ProcessorSubscription); ps != nil {
		return ps, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProcessor) GetSubscription(ctx context.Context, id string) (*domain.ProcessorSubscription, error) {
	return m.snapshot(m.Called(ctx, id))
}

func (m *mockProcessor) CreateSubscriptionCheckout(ctx context.Context, userID, planID, priceID string) (string, error) {
	args := m.Called(ctx, userID, planID, priceID)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) ChangePrice(ctx context.Context, id, priceID, proration string) (*domain.ProcessorSubscription, error) {
	return m.snapshot(m.Called(ctx, id, priceID, proration))
}

func (m *mockProcessor) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*domain.ProcessorSubscription, error) {
	return m.snapshot(m.Called(ctx, id, cancel))
}

func (m *mockProcessor) Cancel(ctx context.Context, id string) (*domain.ProcessorSubscription, error) {
	return m.snapshot(m.Called(ctx, id))
}

var errStore = errors.New("dynamo unavailable")

var testPrices = map[string]string{
	"starter":   "price_starter",
	"pro":       "price_pro",
	"unlimited": "price_unlimited",
}

type fixture struct {
	payments  *fakePayments
	subs      *fakeSubscriptions
	balances  *fakeBalances
	processor *mockProcessor
	catalog   *catalog.Catalog
	now       time.Time
	svc       *service
}

func newFixture() *fixture {
	f := &fixture{
		payments:  &fakePayments{rows: map[string]domain.Payment{}},
		subs:      &fakeSubscriptions{rows: map[string]domain.Subscription{}},
		balances:  &fakeBalances{rows: map[string]domain.TokenBalance{}},
		processor: &mockProcessor{},
		catalog:   catalog.New(testPrices),
		now:       time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(ServiceDeps{
		PaymentRepo:      f.payments,
		SubscriptionRepo: f.subs,
		BalanceRepo:      f.balances,
		Catalog:          f.catalog,
		Processor:        f.processor,
	}).(*service)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) lifecycle() *lifecycle {
	l := NewLifecycle(LifecycleDeps{
		SubscriptionRepo: f.subs,
		Processor:        f.processor,
		Catalog:          f.catalog,
		Reconciler:       f.svc,
	}).(*lifecycle)
	l.now = func() time.Time { return f.now }
	return l
}

func proPlan() domain.Plan { return domain.Plan{ID: "pro", MonthlyTokens: 1000} }
