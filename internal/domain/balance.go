package domain

import "time"

// TokenBalance is a derived view of a user's entitlement. PK: user_id.
// Subscription is authoritative for IsSubscribed and MonthlyTokens.
type TokenBalance struct {
	UserID          string    `json:"user_id" dynamodbav:"user_id"`
	TokensRemaining int64     `json:"tokens_remaining" dynamodbav:"tokens_remaining"`
	TokensUsed      int64     `json:"tokens_used" dynamodbav:"tokens_used"`
	MonthlyTokens   int64     `json:"monthly_tokens" dynamodbav:"monthly_tokens"`
	IsSubscribed    bool      `json:"is_subscribed" dynamodbav:"is_subscribed"`
	UpdatedAt       time.Time `json:"updated" dynamodbav:"updated_at"`
}

// BalanceChange is applied to a TokenBalance in a single atomic update.
// AddTokens is an increment; nil pointers leave the attribute untouched.
type BalanceChange struct {
	AddTokens     int64
	Subscribed    *bool
	MonthlyTokens *int64
}

// Empty reports whether applying the change would be a no-op.
func (c BalanceChange) Empty() bool {
	return c.AddTokens == 0 && c.Subscribed == nil && c.MonthlyTokens == nil
}
