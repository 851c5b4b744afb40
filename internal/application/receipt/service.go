// Package receipt validates store purchase receipts and hands verified
// purchases to the entitlement reconciler.
package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goaltrack-api/internal/application/entitlement"
	"github.com/goaltrack-api/internal/domain"
	"github.com/goaltrack-api/internal/infrastructure/appstore"
	"github.com/goaltrack-api/internal/infrastructure/playstore"
)

// Platform is the store a receipt came from.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ParsePlatform rejects anything but the two supported stores.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(s); p {
	case PlatformIOS, PlatformAndroid:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q: %w", s, domain.ErrBadRequest)
	}
}

const (
	envProduction = "Production"
	envSandbox    = "Sandbox"
	envUnverified = "Unverified"
)

type SubmitRequest struct {
	UserID        string
	Platform      Platform
	ProductID     string
	Receipt       string
	TransactionID string
	PurchaseToken string
}

// Validation is the store's verdict normalized across platforms.
type Validation struct {
	Valid        bool
	Expiry       *time.Time
	PurchaseTime *time.Time
	Environment  string
	// TransactionID is the idempotency key the purchase is recorded under.
	TransactionID string
	raw           []byte
}

type Result struct {
	Validation
	Outcome *entitlement.Outcome // nil when the receipt is invalid
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Result, error)
}

type appleVerifier interface {
	VerifyReceipt(ctx context.Context, receiptData string) (*appstore.Response, error)
}

type playVerifier interface {
	ProductPurchase(ctx context.Context, productID, token string) (*playstore.Purchase, error)
	SubscriptionPurchase(ctx context.Context, token string) (*playstore.Purchase, error)
}

type productCatalog interface {
	Product(productID string) (domain.Product, error)
}

type reconciler interface {
	Apply(ctx context.Context, g entitlement.Grant) (*entitlement.Outcome, error)
	SelfHeal(ctx context.Context, userID string) (*domain.TokenBalance, bool, error)
}

type archiver interface {
	Archive(ctx context.Context, platform, userID, transactionID string, payload []byte) (string, error)
}

type service struct {
	apple      appleVerifier
	play       playVerifier
	catalog    productCatalog
	reconciler reconciler
	archive    archiver
	now        func() time.Time
}

// ServiceDeps wires the validators. Play may be nil when no service account
// is configured; Android receipts are then rejected as an upstream failure.
type ServiceDeps struct {
	Apple      appleVerifier
	Play       playVerifier
	Catalog    productCatalog
	Reconciler reconciler
	Archive    archiver
}

func NewService(deps ServiceDeps) Service {
	return &service{
		apple:      deps.Apple,
		play:       deps.Play,
		catalog:    deps.Catalog,
		reconciler: deps.Reconciler,
		archive:    deps.Archive,
		now:        time.Now,
	}
}

// Submit validates the receipt and, when the store accepts it, credits the
// purchase. Invalid receipts still trigger a self-heal of the balance.
func (s *service) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	product, err := s.catalog.Product(req.ProductID)
	if err != nil {
		return nil, err
	}

	var v *Validation
	switch req.Platform {
	case PlatformIOS:
		v, err = s.validateIOS(ctx, req, product)
	case PlatformAndroid:
		v, err = s.validateAndroid(ctx, req, product)
	default:
		return nil, fmt.Errorf("unknown platform %q: %w", req.Platform, domain.ErrBadRequest)
	}
	if err != nil {
		return nil, err
	}

	if !v.Valid {
		slog.Info("receipt rejected", "user_id", req.UserID, "platform", req.Platform,
			"product_id", req.ProductID, "environment", v.Environment)
		if _, _, err := s.reconciler.SelfHeal(ctx, req.UserID); err != nil {
			slog.Warn("self-heal after rejected receipt failed", "user_id", req.UserID, "err", err)
		}
		return &Result{Validation: *v}, nil
	}

	g := entitlement.Grant{
		UserID:        req.UserID,
		TransactionID: v.TransactionID,
		Source:        sourceFor(req.Platform),
		ProductID:     product.ID,
		Kind:          product.Kind,
		Tokens:        product.Tokens,
		Plan:          product.Plan,
	}
	if product.Kind == domain.PaymentSubscription {
		if v.PurchaseTime != nil {
			g.PeriodStart = *v.PurchaseTime
		}
		if v.Expiry != nil {
			g.PeriodEnd = *v.Expiry
		}
	}
	out, err := s.reconciler.Apply(ctx, g)
	if err != nil {
		return nil, err
	}

	if len(v.raw) > 0 && s.archive != nil {
		if _, err := s.archive.Archive(ctx, string(req.Platform), req.UserID, v.TransactionID, v.raw); err != nil {
			slog.Warn("receipt archive failed", "user_id", req.UserID, "transaction_id", v.TransactionID, "err", err)
		}
	}
	return &Result{Validation: *v, Outcome: out}, nil
}

func sourceFor(p Platform) domain.PaymentSource {
	if p == PlatformAndroid {
		return domain.SourcePlayStore
	}
	return domain.SourceAppStore
}

func (s *service) validateIOS(ctx context.Context, req SubmitRequest, product domain.Product) (*Validation, error) {
	if req.TransactionID == "" {
		return nil, fmt.Errorf("transactionId is required: %w", domain.ErrBadRequest)
	}
	if req.Receipt == "" {
		// StoreKit sometimes completes without an app receipt on device.
		// TODO: switch to the App Store Server API transaction lookup so this path can be verified.
		slog.Warn("accepting ios purchase without receipt", "user_id", req.UserID,
			"transaction_id", req.TransactionID, "product_id", req.ProductID)
		return &Validation{Valid: true, Environment: envUnverified, TransactionID: req.TransactionID}, nil
	}

	resp, err := s.apple.VerifyReceipt(ctx, req.Receipt)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrUpstream)
	}
	v := &Validation{Environment: resp.Environment, TransactionID: req.TransactionID, raw: resp.Raw}
	if resp.Status != appstore.StatusValid {
		return v, nil
	}
	txn, ok := resp.Find(req.TransactionID)
	if !ok || txn.ProductID != product.ID {
		return v, nil
	}
	// Record under the receipt's own ID; the client may have sent the
	// original transaction ID of a renewed subscription.
	v.TransactionID = txn.TransactionID
	if t, ok := txn.PurchaseTime(); ok {
		v.PurchaseTime = &t
	}
	if t, ok := txn.ExpiryTime(); ok {
		v.Expiry = &t
	}
	v.Valid = v.Expiry == nil || v.Expiry.After(s.now())
	return v, nil
}

func (s *service) validateAndroid(ctx context.Context, req SubmitRequest, product domain.Product) (*Validation, error) {
	if s.play == nil {
		return nil, fmt.Errorf("google play validation is not configured: %w", domain.ErrUpstream)
	}
	token := req.PurchaseToken
	if token == "" {
		token = req.Receipt
	}
	if token == "" {
		return nil, fmt.Errorf("purchaseToken is required: %w", domain.ErrBadRequest)
	}

	var (
		p   *playstore.Purchase
		err error
	)
	switch product.Kind {
	case domain.PaymentTokenPurchase:
		p, err = s.play.ProductPurchase(ctx, product.ID, token)
	case domain.PaymentSubscription:
		p, err = s.play.SubscriptionPurchase(ctx, token)
	default:
		return nil, fmt.Errorf("unknown product kind %q: %w", product.Kind, domain.ErrBadRequest)
	}
	if err != nil {
		if errors.Is(err, playstore.ErrNotFound) {
			return &Validation{Environment: envProduction}, nil
		}
		return nil, fmt.Errorf("%v: %w", err, domain.ErrUpstream)
	}

	v := &Validation{
		Valid:         p.Valid,
		Expiry:        p.Expiry,
		Environment:   envProduction,
		TransactionID: firstNonEmpty(p.OrderID, token),
	}
	if p.Test {
		v.Environment = envSandbox
	}
	if !p.PurchaseTime.IsZero() {
		t := p.PurchaseTime
		v.PurchaseTime = &t
	}
	if raw, err := json.Marshal(p); err == nil {
		v.raw = raw
	}
	return v, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
