package domain

import (
	"fmt"
	"time"
)

// OTPType identifies which flow a one-time code belongs to.
type OTPType string

const (
	OTPTypeRegistration  OTPType = "registration"
	OTPTypeLogin         OTPType = "login"
	OTPTypePasswordReset OTPType = "password_reset"
)

// MaxOTPAttempts is the number of wrong codes after which a record is destroyed.
const MaxOTPAttempts = 5

// ParseOTPType rejects anything outside the three known flows.
func ParseOTPType(s string) (OTPType, error) {
	switch t := OTPType(s); t {
	case OTPTypeRegistration, OTPTypeLogin, OTPTypePasswordReset:
		return t, nil
	default:
		return "", fmt.Errorf("unknown otp type %q: %w", s, ErrBadRequest)
	}
}

// TTL is the lifetime of a freshly issued code for the flow.
func (t OTPType) TTL() time.Duration {
	switch t {
	case OTPTypeRegistration:
		return 30 * time.Minute
	case OTPTypeLogin:
		return 10 * time.Minute
	case OTPTypePasswordReset:
		return 15 * time.Minute
	default:
		panic(fmt.Sprintf("domain: unhandled otp type %q", string(t)))
	}
}

// VerificationCode is a one-time code sent by SMS.
// PK: user_id, SK: type. GSI phone_number-created_at-index serves verification by phone.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type VerificationCode struct {
	UserID      string  `json:"user_id" dynamodbav:"user_id"`
	Type        OTPType `json:"type" dynamodbav:"type"`
	PhoneNumber string  `json:"phone_number" dynamodbav:"phone_number"`
	Code        string  `json:"-" dynamodbav:"code"`
	ExpiresAt   int64   `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
	Verified    bool    `json:"verified" dynamodbav:"verified"`
	Attempts    int     `json:"attempts" dynamodbav:"attempts"`
	CreatedAt   int64   `json:"created_at" dynamodbav:"created_at"` // Unix milliseconds
}

// Pending reports whether the code can still be verified.
func (v *VerificationCode) Pending(now time.Time) bool {
	return !v.Verified && now.Unix() < v.ExpiresAt
}

// Remaining is the time left before the code expires, never negative.
func (v *VerificationCode) Remaining(now time.Time) time.Duration {
	d := time.Unix(v.ExpiresAt, 0).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
