// Package playstore checks purchase state with the Google Play Developer API.
package playstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrNotFound means Google has no purchase for the token.
var ErrNotFound = errors.New("purchase not found")

// Subscription states that still grant access.
const (
	stateActive      = "SUBSCRIPTION_STATE_ACTIVE"
	stateGracePeriod = "SUBSCRIPTION_STATE_IN_GRACE_PERIOD"
)

// Purchase is the normalized result of a Play purchase lookup.
type Purchase struct {
	Valid        bool
	PurchaseTime time.Time
	Expiry       *time.Time
	OrderID      string
	Test         bool
}

// Client wraps the androidpublisher service for one package.
type Client struct {
	svc         *androidpublisher.Service
	packageName string
}

// CredentialsOption builds the auth option from a service account key file.
func CredentialsOption(ctx context.Context, path string) (option.ClientOption, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, androidpublisher.AndroidpublisherScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	return option.WithTokenSource(creds.TokenSource), nil
}

func NewClient(ctx context.Context, packageName string, opts ...option.ClientOption) (*Client, error) {
	svc, err := androidpublisher.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("androidpublisher: %w", err)
	}
	return &Client{svc: svc, packageName: packageName}, nil
}

// ProductPurchase looks up a one-time product. purchaseState 0 means purchased.
func (c *Client) ProductPurchase(ctx context.Context, productID, token string) (*Purchase, error) {
	p, err := c.svc.Purchases.Products.Get(c.packageName, productID, token).Context(ctx).Do()
	if err != nil {
		return nil, wrap("get product purchase", err)
	}
	return &Purchase{
		Valid:        p.PurchaseState == 0,
		PurchaseTime: time.UnixMilli(p.PurchaseTimeMillis).UTC(),
		OrderID:      p.OrderId,
		Test:         p.PurchaseType != nil && *p.PurchaseType == 0,
	}, nil
}

// SubscriptionPurchase looks up a subscription via subscriptionsv2. Active
// and grace-period states are valid; the expiry is the latest line item's.
func (c *Client) SubscriptionPurchase(ctx context.Context, token string) (*Purchase, error) {
	s, err := c.svc.Purchases.Subscriptionsv2.Get(c.packageName, token).Context(ctx).Do()
	if err != nil {
		return nil, wrap("get subscription purchase", err)
	}
	out := &Purchase{
		Valid:   s.SubscriptionState == stateActive || s.SubscriptionState == stateGracePeriod,
		OrderID: s.LatestOrderId,
		Test:    s.TestPurchase != nil,
	}
	if t, err := time.Parse(time.RFC3339, s.StartTime); err == nil {
		out.PurchaseTime = t.UTC()
	}
	for _, li := range s.LineItems {
		t, err := time.Parse(time.RFC3339, li.ExpiryTime)
		if err != nil {
			continue
		}
		if out.Expiry == nil || t.After(*out.Expiry) {
			t = t.UTC()
			out.Expiry = &t
		}
	}
	return out, nil
}

func wrap(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
