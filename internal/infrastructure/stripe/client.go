package stripeinfra

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goaltrack-api/internal/config"
	"github.com/goaltrack-api/internal/domain"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// Proration behaviors accepted on plan changes.
const (
	ProrationCreate = "create_prorations"
	ProrationNone   = "none"
	ProrationAlways = "always_invoice"
)

// Client wraps the Stripe API for checkout and subscription mutation.
type Client struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewClient(cfg config.Stripe) *Client {
	return &Client{
		api:           client.New(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}
}

// CreateSubscriptionCheckout starts a hosted checkout for planID and returns
// its URL. The user and plan travel as metadata so the webhook can attribute
// the purchase.
func (c *Client) CreateSubscriptionCheckout(ctx context.Context, userID, planID, priceID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(userID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": userID, "plan_id": planID},
		},
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	params.AddMetadata("plan_id", planID)

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*domain.ProcessorSubscription, error) {
	sub, err := c.getSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	return Snapshot(sub), nil
}

// ChangePrice swaps the subscription's single item to priceID.
func (c *Client) ChangePrice(ctx context.Context, id, priceID, proration string) (*domain.ProcessorSubscription, error) {
	sub, err := c.getSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, fmt.Errorf("subscription %s has no items: %w", id, domain.ErrUpstream)
	}
	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String(proration),
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	params.Context = ctx
	updated, err := c.api.Subscriptions.Update(id, params)
	if err != nil {
		return nil, fmt.Errorf("update subscription price: %w", err)
	}
	return Snapshot(updated), nil
}

func (c *Client) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*domain.ProcessorSubscription, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	params.Context = ctx
	updated, err := c.api.Subscriptions.Update(id, params)
	if err != nil {
		return nil, fmt.Errorf("update subscription cancel flag: %w", err)
	}
	return Snapshot(updated), nil
}

// Cancel ends the subscription now.
func (c *Client) Cancel(ctx context.Context, id string) (*domain.ProcessorSubscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	canceled, err := c.api.Subscriptions.Cancel(id, params)
	if err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}
	return Snapshot(canceled), nil
}

func (c *Client) getSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// Snapshot converts a Stripe subscription into the local view. The billing
// period lives on the first subscription item.
func Snapshot(s *stripe.Subscription) *domain.ProcessorSubscription {
	ps := &domain.ProcessorSubscription{
		ID:                s.ID,
		UserID:            s.Metadata["user_id"],
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Price != nil {
			ps.PriceID = item.Price.ID
		}
		ps.PeriodStart = unix(item.CurrentPeriodStart)
		ps.PeriodEnd = unix(item.CurrentPeriodEnd)
	}
	return ps
}

func metadataInt(md map[string]string, key string) int64 {
	n, err := strconv.ParseInt(md[key], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
