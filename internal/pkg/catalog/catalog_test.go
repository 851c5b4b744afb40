package catalog

import (
	"errors"
	"testing"

	"github.com/goaltrack-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	return New(map[string]string{"starter": "price_s", "pro": "price_p", "unlimited": ""})
}

func TestProduct_TokenPack(t *testing.T) {
	p, err := testCatalog().Product("goaltrack.tokens.250")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentTokenPurchase, p.Kind)
	assert.Equal(t, int64(250), p.Tokens)
}

func TestProduct_Subscription(t *testing.T) {
	p, err := testCatalog().Product("goaltrack.sub.pro.monthly")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSubscription, p.Kind)
	assert.Equal(t, int64(1000), p.Plan.MonthlyTokens)
}

func TestProduct_Unknown(t *testing.T) {
	_, err := testCatalog().Product("nope")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestPriceMapping_RoundTrip(t *testing.T) {
	c := testCatalog()
	plan, err := c.PlanByPrice("price_p")
	require.NoError(t, err)
	assert.Equal(t, "pro", plan.ID)

	price, err := c.PriceForPlan("starter")
	require.NoError(t, err)
	assert.Equal(t, "price_s", price)

	_, err = c.PriceForPlan("unlimited")
	assert.Error(t, err, "plans without a configured price are not purchasable through the processor")
}

func TestPlanByMonthlyTokens(t *testing.T) {
	p, err := testCatalog().PlanByMonthlyTokens(2500)
	require.NoError(t, err)
	assert.Equal(t, "unlimited", p.ID)

	_, err = testCatalog().PlanByMonthlyTokens(3)
	assert.Error(t, err)
}
