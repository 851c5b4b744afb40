package dynamo

// DynamoDB attribute names used in update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldEnable           = "enable"
	fieldUpdatedAt        = "updated_at"
	fieldRefreshToken     = "refresh_token"
	fieldRefreshExpiresAt = "refresh_expires_at"
	fieldVerified         = "verified"
	fieldAttempts         = "attempts"
	fieldOTPAttempts      = "otp_attempts"
	fieldResetToken       = "reset_token"
	fieldTokensRemaining  = "tokens_remaining"
	fieldIsSubscribed     = "is_subscribed"
	fieldMonthlyTokens    = "monthly_tokens"
)
