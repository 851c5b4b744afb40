package dynamo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goaltrack-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"phone": "+15551234567"})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", ue.Expr)
	assert.Equal(t, map[string]string{"#f0": "phone"}, ue.Names)
	_, ok := ue.Values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_MultipleFields_Deterministic(t *testing.T) {
	updates := map[string]interface{}{
		"status":               "active",
		"cancel_at_period_end": false,
		"monthly_token_grant":  int64(1000),
	}
	ue1, err := buildUpdateExpr(updates)
	require.NoError(t, err)
	ue2, err := buildUpdateExpr(updates)
	require.NoError(t, err)

	assert.Equal(t, ue1.Expr, ue2.Expr)
	assert.Equal(t, "cancel_at_period_end", ue1.Names["#f0"])
	assert.Equal(t, "monthly_token_grant", ue1.Names["#f1"])
	assert.Equal(t, "status", ue1.Names["#f2"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", ue1.Expr)
}

func TestBuildUpdateExpr_ValuesMarshalledCorrectly(t *testing.T) {
	ue, err := buildUpdateExpr(map[string]interface{}{"phone_confirmed": true})
	require.NoError(t, err)
	av, ok := ue.Values[":v0"]
	require.True(t, ok)
	boolVal, isBool := av.(*types.AttributeValueMemberBOOL)
	require.True(t, isBool)
	assert.True(t, boolVal.Value)
}

func TestBuildUpdateExpr_EmptyMap_ReturnsError(t *testing.T) {
	_, err := buildUpdateExpr(map[string]interface{}{})
	assert.ErrorContains(t, err, "no fields to update")
}

func TestIsConditionFailed(t *testing.T) {
	wrapped := fmt.Errorf("put payment: %w", &types.ConditionalCheckFailedException{})
	assert.True(t, isConditionFailed(wrapped))
	assert.False(t, isConditionFailed(errors.New("throttled")))
}

func TestBalanceUpdate_AddOnly(t *testing.T) {
	r := &BalanceRepo{tableName: "token_balances"}
	in := r.updateInput("u1", domain.BalanceChange{AddTokens: 250}, "2026-01-01T00:00:00Z")
	assert.Equal(t, "ADD #tr :add SET #ua = :ua", *in.UpdateExpression)
	assert.Equal(t, "tokens_remaining", in.ExpressionAttributeNames["#tr"])
	n, ok := in.ExpressionAttributeValues[":add"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "250", n.Value)
}

func TestBalanceUpdate_SubscriptionFlags(t *testing.T) {
	subscribed := true
	monthly := int64(1000)
	r := &BalanceRepo{tableName: "token_balances"}
	in := r.updateInput("u1", domain.BalanceChange{Subscribed: &subscribed, MonthlyTokens: &monthly}, "2026-01-01T00:00:00Z")
	assert.Equal(t, "ADD #tr :add SET #ua = :ua, #sub = :sub, #mt = :mt", *in.UpdateExpression)
	b, ok := in.ExpressionAttributeValues[":sub"].(*types.AttributeValueMemberBOOL)
	require.True(t, ok)
	assert.True(t, b.Value)
}
