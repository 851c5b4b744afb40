package domain

import "time"

// PasswordResetState tracks one user's password reset cycle, separate from
// login and registration codes. One row per user (PK user_id).
// GSI reset_token-index resolves the capability token in the final phase.
type PasswordResetState struct {
	UserID              string  `dynamodbav:"user_id"`
	PhoneNumber         string  `dynamodbav:"phone_number"`
	OTPCode             *string `dynamodbav:"otp_code,omitempty"`
	OTPExpiresAt        *int64  `dynamodbav:"otp_expires_at,omitempty"`
	OTPAttempts         int     `dynamodbav:"otp_attempts"`
	LastOTPSentAt       int64   `dynamodbav:"last_otp_sent_at"`
	ResetToken          *string `dynamodbav:"reset_token,omitempty"`
	ResetTokenExpiresAt *int64  `dynamodbav:"reset_token_expires_at,omitempty"`
}

// OTPPending reports whether an unexpired code is waiting for verification.
func (s *PasswordResetState) OTPPending(now time.Time) bool {
	return s.OTPCode != nil && s.OTPExpiresAt != nil && now.Unix() < *s.OTPExpiresAt
}

// TokenValid reports whether the issued reset token is still usable.
func (s *PasswordResetState) TokenValid(now time.Time) bool {
	return s.ResetToken != nil && s.ResetTokenExpiresAt != nil && now.Unix() < *s.ResetTokenExpiresAt
}
