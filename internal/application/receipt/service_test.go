package receipt

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/goaltrack-api/internal/application/entitlement"
	"github.com/goaltrack-api/internal/domain"
	"github.com/goaltrack-api/internal/infrastructure/appstore"
	"github.com/goaltrack-api/internal/infrastructure/playstore"
	"github.com/goaltrack-api/internal/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockApple struct{ mock.Mock }

func (m *mockApple) VerifyReceipt(ctx context.Context, data string) (*appstore.Response, error) {
	args := m.Called(ctx, data)
	if r, _ := args.Get(0).(*appstore.Response); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPlay struct{ mock.Mock }

func (m *mockPlay) ProductPurchase(ctx context.Context, productID, token string) (*playstore.Purchase, error) {
	args := m.Called(ctx, productID, token)
	if p, _ := args.Get(0).(*playstore.Purchase); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPlay) SubscriptionPurchase(ctx context.Context, token string) (*playstore.Purchase, error) {
	args := m.Called(ctx, token)
	if p, _ := args.Get(0).(*playstore.Purchase); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockReconciler struct{ mock.Mock }

func (m *mockReconciler) Apply(ctx context.Context, g entitlement.Grant) (*entitlement.Outcome, error) {
	args := m.Called(ctx, g)
	if o, _ := args.Get(0).(*entitlement.Outcome); o != nil {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockReconciler) SelfHeal(ctx context.Context, userID string) (*domain.TokenBalance, bool, error) {
	args := m.Called(ctx, userID)
	b, _ := args.Get(0).(*domain.TokenBalance)
	return b, args.Bool(1), args.Error(2)
}

type mockArchive struct{ mock.Mock }

func (m *mockArchive) Archive(ctx context.Context, platform, userID, txn string, payload []byte) (string, error) {
	args := m.Called(ctx, platform, userID, txn, payload)
	return args.String(0), args.Error(1)
}

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	apple      *mockApple
	play       *mockPlay
	reconciler *mockReconciler
	archive    *mockArchive
	svc        *service
}

func newFixture(withPlay bool) *fixture {
	f := &fixture{
		apple:      &mockApple{},
		play:       &mockPlay{},
		reconciler: &mockReconciler{},
		archive:    &mockArchive{},
	}
	deps := ServiceDeps{
		Apple:      f.apple,
		Catalog:    catalog.New(nil),
		Reconciler: f.reconciler,
		Archive:    f.archive,
	}
	if withPlay {
		deps.Play = f.play
	}
	f.svc = NewService(deps).(*service)
	f.svc.now = func() time.Time { return now }
	return f
}

func ms(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform("android")
	require.NoError(t, err)
	assert.Equal(t, PlatformAndroid, p)

	_, err = ParsePlatform("windows")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestSubmit_IOSTokenPack(t *testing.T) {
	f := newFixture(false)
	f.apple.On("VerifyReceipt", mock.Anything, "base64receipt").Return(&appstore.Response{
		Status:      0,
		Environment: "Sandbox",
		Receipt: appstore.Receipt{InApp: []appstore.Transaction{
			{ProductID: "goaltrack.tokens.250", TransactionID: "1000001", PurchaseDateMS: ms(now.Add(-time.Minute))},
		}},
		Raw: []byte(`{"status":0}`),
	}, nil)
	f.reconciler.On("Apply", mock.Anything, mock.MatchedBy(func(g entitlement.Grant) bool {
		return g.TransactionID == "1000001" && g.Tokens == 250 && g.Kind == domain.PaymentTokenPurchase &&
			g.Source == domain.SourceAppStore && g.UserID == "u1"
	})).Return(&entitlement.Outcome{TokensGranted: 250}, nil)
	f.archive.On("Archive", mock.Anything, "ios", "u1", "1000001", []byte(`{"status":0}`)).Return("key", nil)

	res, err := f.svc.Submit(context.Background(), SubmitRequest{
		UserID: "u1", Platform: PlatformIOS, ProductID: "goaltrack.tokens.250",
		Receipt: "base64receipt", TransactionID: "1000001",
	})

	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "Sandbox", res.Environment)
	require.NotNil(t, res.PurchaseTime)
	assert.Equal(t, now.Add(-time.Minute).UnixMilli(), res.PurchaseTime.UnixMilli())
	assert.Equal(t, int64(250), res.Outcome.TokensGranted)
	f.archive.AssertExpectations(t)
}

func TestSubmit_IOSSubscriptionCarriesPeriod(t *testing.T) {
	f := newFixture(false)
	expiry := now.Add(29 * 24 * time.Hour)
	f.apple.On("VerifyReceipt", mock.Anything, mock.Anything).Return(&appstore.Response{
		Environment: "Production",
		LatestReceiptInfo: []appstore.Transaction{{
			ProductID: "goaltrack.sub.pro.monthly", TransactionID: "2000002", OriginalTransactionID: "2000001",
			PurchaseDateMS: ms(now.Add(-24 * time.Hour)), ExpiresDateMS: ms(expiry),
		}},
	}, nil)
	f.reconciler.On("Apply", mock.Anything, mock.MatchedBy(func(g entitlement.Grant) bool {
		return g.Kind == domain.PaymentSubscription && g.Plan.ID == "pro" && g.PeriodEnd.Equal(time.UnixMilli(expiry.UnixMilli()))
	})).Return(&entitlement.Outcome{}, nil)

	res, err := f.svc.Submit(context.Background(), SubmitRequest{
		UserID: "u1", Platform: PlatformIOS, ProductID: "goaltrack.sub.pro.monthly",
		Receipt: "r", TransactionID: "2000002",
	})

	require.NoError(t, err)
	assert.True(t, res.Valid)
	require.NotNil(t, res.Expiry)
	f.reconciler.AssertExpectations(t)
}

func TestSubmit_IOSExpiredSubscriptionIsInvalid(t *testing.T) {
	f := newFixture(false)
	f.apple.On("VerifyReceipt", mock.Anything, mock.Anything).Return(&appstore.Response{
		LatestReceiptInfo: []appstore.Transaction{{
			ProductID: "goaltrack.sub.pro.monthly", TransactionID: "2000002", ExpiresDateMS: ms(now.Add(-time.Hour)),
		}},
	}, nil)
	f.reconciler.On("SelfHeal", mock.Anything, "u1").Return(&domain.TokenBalance{}, false, nil)

	res, err := f.svc.Submit(context.Background(), SubmitRequest{
		UserID: "u1", Platform: PlatformIOS, ProductID: "goaltrack.sub.pro.monthly", Receipt: "r", TransactionID: "2000002",
	})

	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Nil(t, res.Outcome)
	f.reconciler.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
	f.reconciler.AssertExpectations(t)
}

func TestSubmit_IOSRejectedStatusOrForeignTransaction(t *testing.T) {
	cases := map[string]*appstore.Response{
		"bad status": {Status: 21003},
		"unknown transaction": {Receipt: appstore.Receipt{InApp: []appstore.Transaction{
			{ProductID: "goaltrack.tokens.100", TransactionID: "other"},
		}}},
		"wrong product": {Receipt: appstore.Receipt{InApp: []appstore.Transaction{
			{ProductID: "goaltrack.tokens.1000", TransactionID: "1000001"},
		}}},
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(false)
			f.apple.On("VerifyReceipt", mock.Anything, mock.Anything).Return(resp, nil)
			f.reconciler.On("SelfHeal", mock.Anything, "u1").Return(&domain.TokenBalance{}, false, nil)

			res, err := f.svc.Submit(context.Background(), SubmitRequest{
				UserID: "u1", Platform: PlatformIOS, ProductID: "goaltrack.tokens.100", Receipt: "r", TransactionID: "1000001",
			})

			require.NoError(t, err)
			assert.False(t, res.Valid)
		})
	}
}

func TestSubmit_IOSWithoutReceiptAcceptsTransaction(t *testing.T) {
	f := newFixture(false)
	f.reconciler.On("Apply", mock.Anything, mock.MatchedBy(func(g entitlement.Grant) bool {
		return g.TransactionID == "1000009"
	})).Return(&entitlement.Outcome{TokensGranted: 100}, nil)

	res, err := f.svc.Submit(context.Background(), SubmitRequest{
		UserID: "u1", Platform: PlatformIOS, ProductID: "goaltrack.tokens.100", TransactionID: "1000009",
	})

	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "Unverified", res.Environment)
	f.apple.AssertNotCalled(t, "VerifyReceipt", mock.Anything, mock.Anything)
	f.archive.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_IOSKeysOnReceiptTransaction(t *testing.T) {
	f := newFixture(false)
	expiry := now.Add(29 * 24 * time.Hour)
	f.apple.On("VerifyReceipt", mock.Anything, "r").Return(&appstore.Response{
		Status: 0, Environment: "Production",
		LatestReceiptInfo: []appstore.Transaction{{
			ProductID: "goaltrack.sub.pro.monthly", TransactionID: "2000002", OriginalTransactionID: "2000001",
			PurchaseDateMS: ms(now), ExpiresDateMS: ms(expiry),
		}},
	}, nil)
	f.reconciler.On("Apply", mock.Anything, mock.MatchedBy(func(g entitlement.Grant) bool {
		return g.TransactionID == "2000002"
	})).Return(&entitlement.Outcome{TokensGranted: 1000}, nil)

	res, err := f.svc.Submit(context.Background(), SubmitRequest{
		UserID: "u1", Platform: PlatformIOS, ProductID: "goaltrack.sub.pro.monthly",
		Receipt: "r", TransactionID: "2000001",
	})

	require.NoError(t, err)
	assert.Equal(t, "2000002", res.TransactionID)
	f.reconciler.AssertExpectations(t)
}

func TestSubmit_IOSAppleDown(t *testing.T) {
	f := newFixture(false)
	f.apple.On("VerifyReceipt", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	_, err := f.svc.Submit(context.Background(), SubmitRequest{
		UserID: "u1", Platform: PlatformIOS, ProductID: "goaltrack.tokens.100", Receipt: "r", TransactionID: "1",
	})

	assert.True(t, errors.Is(err, domain.ErrUpstream))
}

func TestSubmit_UnknownProduct(t *testing.T) {
	f := newFixture(false)
	_, err := f.svc.Submit(context.Background(), SubmitRequest{UserID: "u1", Platform: PlatformIOS, ProductID: "nope", TransactionID: "1"})
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestSubmit_AndroidProductUsesOrderID(t *testing.T) {
	f := newFixture(true)
	f.play.On("ProductPurchase", mock.Anything, "goaltrack.tokens.100", "tok-1").
		Return(&playstore.Purchase{Valid: true, PurchaseTime: now, OrderID: "GPA.1", Test: true}, nil)
	f.reconciler.On("Apply", mock.Anything, mock.MatchedBy(func(g entitlement.Grant) bool {
		return g.TransactionID == "GPA.1" && g.Source == domain.SourcePlayStore
	})).Return(&entitlement.Outcome{TokensGranted: 100}, nil)
	f.archive.On("Archive", mock.Anything, "android", "u1", "GPA.1", mock.Anything).Return("", errors.New("s3 down"))

	res, err := f.svc.Submit(context.Background(), SubmitRequest{
		UserID: "u1", Platform: PlatformAndroid, ProductID: "goaltrack.tokens.100", PurchaseToken: "tok-1",
	})

	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "Sandbox", res.Environment)
}

func TestSubmit_AndroidReplayKeepsOrderIDWhateverTheClientSends(t *testing.T) {
	f := newFixture(true)
	f.play.On("ProductPurchase", mock.Anything, "goaltrack.tokens.100", "ptok").
		Return(&playstore.Purchase{Valid: true, PurchaseTime: now, OrderID: "GPA.1"}, nil)
	var keys []string
	f.reconciler.On("Apply", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { keys = append(keys, args.Get(1).(entitlement.Grant).TransactionID) }).
		Return(&entitlement.Outcome{}, nil)
	f.archive.On("Archive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("k", nil)

	for _, clientID := range []string{"a", "b", "c"} {
		_, err := f.svc.Submit(context.Background(), SubmitRequest{
			UserID: "u1", Platform: PlatformAndroid, ProductID: "goaltrack.tokens.100",
			PurchaseToken: "ptok", TransactionID: clientID,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"GPA.1", "GPA.1", "GPA.1"}, keys)
}

func TestSubmit_AndroidWithoutOrderIDKeysOnToken(t *testing.T) {
	f := newFixture(true)
	f.play.On("ProductPurchase", mock.Anything, "goaltrack.tokens.100", "ptok").
		Return(&playstore.Purchase{Valid: true, PurchaseTime: now}, nil)
	f.reconciler.On("Apply", mock.Anything, mock.MatchedBy(func(g entitlement.Grant) bool {
		return g.TransactionID == "ptok"
	})).Return(&entitlement.Outcome{}, nil)
	f.archive.On("Archive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("k", nil)

	_, err := f.svc.Submit(context.Background(), SubmitRequest{
		UserID: "u1", Platform: PlatformAndroid, ProductID: "goaltrack.tokens.100",
		PurchaseToken: "ptok", TransactionID: "client-chosen",
	})
	require.NoError(t, err)
	f.reconciler.AssertExpectations(t)
}

func TestSubmit_AndroidSubscription(t *testing.T) {
	f := newFixture(true)
	expiry := now.Add(30 * 24 * time.Hour)
	f.play.On("SubscriptionPurchase", mock.Anything, "tok-2").
		Return(&playstore.Purchase{Valid: true, PurchaseTime: now, Expiry: &expiry, OrderID: "GPA.2"}, nil)
	f.reconciler.On("Apply", mock.Anything, mock.MatchedBy(func(g entitlement.Grant) bool {
		return g.Plan.ID == "unlimited" && g.PeriodEnd.Equal(expiry) && g.PeriodStart.Equal(now)
	})).Return(&entitlement.Outcome{TokensGranted: 2500}, nil)
	f.archive.On("Archive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("k", nil)

	// The token may arrive in transactionReceipt.
	res, err := f.svc.Submit(context.Background(), SubmitRequest{
		UserID: "u1", Platform: PlatformAndroid, ProductID: "goaltrack.sub.unlimited.monthly", Receipt: "tok-2",
	})

	require.NoError(t, err)
	assert.Equal(t, "Production", res.Environment)
	assert.Equal(t, int64(2500), res.Outcome.TokensGranted)
}

func TestSubmit_AndroidUnknownToken(t *testing.T) {
	f := newFixture(true)
	f.play.On("ProductPurchase", mock.Anything, mock.Anything, mock.Anything).Return(nil, playstore.ErrNotFound)
	f.reconciler.On("SelfHeal", mock.Anything, "u1").Return(&domain.TokenBalance{}, false, nil)

	res, err := f.svc.Submit(context.Background(), SubmitRequest{
		UserID: "u1", Platform: PlatformAndroid, ProductID: "goaltrack.tokens.100", PurchaseToken: "bogus",
	})

	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestSubmit_AndroidNotConfigured(t *testing.T) {
	f := newFixture(false)

	_, err := f.svc.Submit(context.Background(), SubmitRequest{
		UserID: "u1", Platform: PlatformAndroid, ProductID: "goaltrack.tokens.100", PurchaseToken: "tok",
	})

	assert.True(t, errors.Is(err, domain.ErrUpstream))
}
