package passwordreset

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goaltrack-api/internal/domain"
	"github.com/goaltrack-api/internal/pkg/phone"
	pkgtoken "github.com/goaltrack-api/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

const (
	otpTTL           = 10 * time.Minute
	tokenTTL         = 15 * time.Minute
	resendCooldown   = 60 * time.Second
	minPasswordLen   = 8
	maxPasswordBytes = 72 // bcrypt input limit

	fieldPasswordHash = "password_hash"
)

// GenericSent is returned for every send request so callers cannot discover
// which phone numbers have accounts.
const GenericSent = "If an account exists for this number, a reset code has been sent."

var errInvalidToken = fmt.Errorf("invalid or expired reset token: %w", domain.ErrUnauthorized)

type Service interface {
	SendOTP(ctx context.Context, rawPhone string) (string, error)
	VerifyOTP(ctx context.Context, email, code string) (string, error)
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
}

type stateStore interface {
	Put(ctx context.Context, s *domain.PasswordResetState) error
	Get(ctx context.Context, userID string) (*domain.PasswordResetState, error)
	GetByResetToken(ctx context.Context, token string) (*domain.PasswordResetState, error)
	IncrementOTPAttempts(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID string) error
	DeleteWithToken(ctx context.Context, userID, token string) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type sessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) error
}

type service struct {
	states   stateStore
	users    userStore
	sms      smsSender
	sessions sessionRevoker
	now      func() time.Time
	newCode  func() (string, error)
	newToken func() (string, error)
}

type ServiceDeps struct {
	StateRepo stateStore
	UserRepo  userStore
	SMSSender smsSender
	Sessions  sessionRevoker
}

func NewService(deps ServiceDeps) Service {
	return &service{
		states:   deps.StateRepo,
		users:    deps.UserRepo,
		sms:      deps.SMSSender,
		sessions: deps.Sessions,
		now:      time.Now,
		newCode:  func() (string, error) { return pkgtoken.NewNumericCode(6) },
		newToken: pkgtoken.NewResetToken,
	}
}

// SendOTP starts a new reset cycle for the account owning the phone. Unknown
// numbers and SMS failures still produce the generic message.
func (s *service) SendOTP(ctx context.Context, rawPhone string) (string, error) {
	if !phone.Valid(rawPhone) {
		return "", fmt.Errorf("invalid phone number: %w", domain.ErrBadRequest)
	}
	u, err := s.userByPhone(ctx, rawPhone)
	if errors.Is(err, domain.ErrNotFound) {
		return GenericSent, nil
	}
	if err != nil {
		return "", err
	}

	now := s.now()
	prev, err := s.states.Get(ctx, u.UserID)
	switch {
	case err == nil:
		if wait := time.Unix(prev.LastOTPSentAt, 0).Add(resendCooldown).Sub(now); wait > 0 {
			return "", &domain.CooldownError{Remaining: wait}
		}
	case !errors.Is(err, domain.ErrNotFound):
		return "", fmt.Errorf("load reset state: %w", err)
	}

	code, err := s.newCode()
	if err != nil {
		return "", err
	}
	expires := now.Add(otpTTL).Unix()
	to := phone.Canonical(*u.Phone)
	st := &domain.PasswordResetState{
		UserID:        u.UserID,
		PhoneNumber:   to,
		OTPCode:       &code,
		OTPExpiresAt:  &expires,
		LastOTPSentAt: now.Unix(),
	}
	if err := s.states.Put(ctx, st); err != nil {
		return "", fmt.Errorf("store reset state: %w", err)
	}

	msg := fmt.Sprintf("Your GoalTrack password reset code is %s. It expires in %d minutes.", code, int(otpTTL.Minutes()))
	if err := s.sms.SendSMS(ctx, to, msg); err != nil {
		slog.Error("password reset sms failed", "user_id", u.UserID, "err", err)
		if delErr := s.states.Delete(ctx, u.UserID); delErr != nil {
			slog.Warn("failed to delete undeliverable reset state", "user_id", u.UserID, "err", delErr)
		}
	}
	return GenericSent, nil
}

func (s *service) userByPhone(ctx context.Context, raw string) (*domain.User, error) {
	for _, variant := range phone.Variants(raw) {
		u, err := s.users.GetByPhone(ctx, variant)
		if err == nil {
			if u.Phone == nil {
				u.Phone = &variant
			}
			return u, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
}

// VerifyOTP exchanges a correct code for a single-use reset token.
func (s *service) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("no pending reset code: %w", domain.ErrNotFound)
		}
		return "", err
	}
	now := s.now()
	st, err := s.states.Get(ctx, u.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("no pending reset code: %w", domain.ErrNotFound)
		}
		return "", fmt.Errorf("load reset state: %w", err)
	}
	if !st.OTPPending(now) {
		return "", fmt.Errorf("no pending reset code: %w", domain.ErrNotFound)
	}

	if subtle.ConstantTimeCompare([]byte(*st.OTPCode), []byte(code)) != 1 {
		n, err := s.states.IncrementOTPAttempts(ctx, u.UserID)
		if err != nil {
			return "", fmt.Errorf("count reset attempt: %w", err)
		}
		left := domain.MaxOTPAttempts - n
		if left <= 0 {
			if err := s.states.Delete(ctx, u.UserID); err != nil {
				slog.Warn("failed to delete exhausted reset state", "user_id", u.UserID, "err", err)
			}
			return "", fmt.Errorf("too many attempts, request a new code: %w", domain.ErrRateLimited)
		}
		return "", &domain.CodeMismatchError{AttemptsLeft: left}
	}

	tok, err := s.newToken()
	if err != nil {
		return "", err
	}
	expires := now.Add(tokenTTL).Unix()
	st.OTPCode = nil
	st.OTPExpiresAt = nil
	st.OTPAttempts = 0
	st.ResetToken = &tok
	st.ResetTokenExpiresAt = &expires
	if err := s.states.Put(ctx, st); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}
	return tok, nil
}

// ResetPassword consumes the token, replaces the credential and signs the
// user out everywhere.
func (s *service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, domain.ErrBadRequest)
	}
	if len([]byte(newPassword)) > maxPasswordBytes {
		return fmt.Errorf("password must be at most %d bytes: %w", maxPasswordBytes, domain.ErrBadRequest)
	}
	if resetToken == "" {
		return errInvalidToken
	}
	st, err := s.states.GetByResetToken(ctx, resetToken)
	if errors.Is(err, domain.ErrNotFound) {
		return errInvalidToken
	}
	if err != nil {
		return fmt.Errorf("load reset token: %w", err)
	}
	if !st.TokenValid(s.now()) {
		if err := s.states.Delete(ctx, st.UserID); err != nil {
			slog.Warn("failed to delete expired reset state", "user_id", st.UserID, "err", err)
		}
		return errInvalidToken
	}
	// Hash before consuming so a rejected password leaves the token usable.
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %v: %w", err, domain.ErrBadRequest)
	}
	if err := s.states.DeleteWithToken(ctx, st.UserID, resetToken); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return errInvalidToken
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	if err := s.users.Update(ctx, st.UserID, map[string]interface{}{fieldPasswordHash: string(hash)}); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.sessions.RevokeAll(ctx, st.UserID); err != nil {
		slog.Warn("failed to revoke sessions after reset", "user_id", st.UserID, "err", err)
	}
	return nil
}
