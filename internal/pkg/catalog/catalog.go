// Package catalog is the static table of store products, subscription plans
// and their token entitlements.
package catalog

import (
	"fmt"

	"github.com/goaltrack-api/internal/domain"
)

var plans = []domain.Plan{
	{ID: "starter", MonthlyTokens: 500},
	{ID: "pro", MonthlyTokens: 1000},
	{ID: "unlimited", MonthlyTokens: 2500},
}

// Store SKUs shared by the App Store and Google Play listings.
var products = map[string]domain.Product{
	"goaltrack.tokens.100":            {ID: "goaltrack.tokens.100", Kind: domain.PaymentTokenPurchase, Tokens: 100},
	"goaltrack.tokens.250":            {ID: "goaltrack.tokens.250", Kind: domain.PaymentTokenPurchase, Tokens: 250},
	"goaltrack.tokens.1000":           {ID: "goaltrack.tokens.1000", Kind: domain.PaymentTokenPurchase, Tokens: 1000},
	"goaltrack.sub.starter.monthly":   {ID: "goaltrack.sub.starter.monthly", Kind: domain.PaymentSubscription, Plan: plans[0]},
	"goaltrack.sub.pro.monthly":       {ID: "goaltrack.sub.pro.monthly", Kind: domain.PaymentSubscription, Plan: plans[1]},
	"goaltrack.sub.unlimited.monthly": {ID: "goaltrack.sub.unlimited.monthly", Kind: domain.PaymentSubscription, Plan: plans[2]},
}

// Catalog resolves products and plans, including the processor price IDs
// configured per environment.
type Catalog struct {
	priceByPlan map[string]string
	planByPrice map[string]domain.Plan
}

// New builds a Catalog. prices maps plan ID to processor price ID; empty
// price IDs are ignored.
func New(prices map[string]string) *Catalog {
	c := &Catalog{
		priceByPlan: make(map[string]string),
		planByPrice: make(map[string]domain.Plan),
	}
	for _, p := range plans {
		price := prices[p.ID]
		if price == "" {
			continue
		}
		c.priceByPlan[p.ID] = price
		c.planByPrice[price] = p
	}
	return c
}

// Product looks up a store SKU.
func (c *Catalog) Product(productID string) (domain.Product, error) {
	p, ok := products[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("unknown product %q: %w", productID, domain.ErrBadRequest)
	}
	return p, nil
}

// Plan looks up a plan by ID.
func (c *Catalog) Plan(planID string) (domain.Plan, error) {
	for _, p := range plans {
		if p.ID == planID {
			return p, nil
		}
	}
	return domain.Plan{}, fmt.Errorf("unknown plan %q: %w", planID, domain.ErrBadRequest)
}

// PlanByMonthlyTokens finds the plan granting exactly n tokens a month.
func (c *Catalog) PlanByMonthlyTokens(n int64) (domain.Plan, error) {
	for _, p := range plans {
		if p.MonthlyTokens == n {
			return p, nil
		}
	}
	return domain.Plan{}, fmt.Errorf("no plan grants %d tokens: %w", n, domain.ErrBadRequest)
}

// PlanByPrice maps a processor price ID back to its plan.
func (c *Catalog) PlanByPrice(priceID string) (domain.Plan, error) {
	p, ok := c.planByPrice[priceID]
	if !ok {
		return domain.Plan{}, fmt.Errorf("unknown price %q: %w", priceID, domain.ErrBadRequest)
	}
	return p, nil
}

// PriceForPlan returns the processor price ID configured for a plan.
func (c *Catalog) PriceForPlan(planID string) (string, error) {
	price, ok := c.priceByPlan[planID]
	if !ok {
		return "", fmt.Errorf("plan %q has no processor price: %w", planID, domain.ErrBadRequest)
	}
	return price, nil
}
