package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goaltrack-api/internal/application/session"
	"github.com/goaltrack-api/internal/domain"
	"github.com/goaltrack-api/internal/infrastructure/webpush"
	"github.com/goaltrack-api/internal/pkg/phone"
	pkgtoken "github.com/goaltrack-api/internal/pkg/token"
)

const codeDigits = 6

type SendRequest struct {
	Email string
	Phone string
	Type  domain.OTPType // empty: derived from the account
}

type SendResult struct {
	Reused    bool
	ExpiresIn int // seconds
	Phone     string
	Type      domain.OTPType
}

type VerifyRequest struct {
	Email string
	Phone string
	Code  string
	Type  domain.OTPType // empty: any pending type
}

type VerifyResult struct {
	Type    domain.OTPType
	Phone   string
	Session *session.Result // nil for password_reset
}

type Service interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
}

type codeStore interface {
	Get(ctx context.Context, userID string, t domain.OTPType) (*domain.VerificationCode, error)
	Put(ctx context.Context, v *domain.VerificationCode) error
	Delete(ctx context.Context, userID string, t domain.OTPType) error
	LatestPendingByPhone(ctx context.Context, phone string, t domain.OTPType, now time.Time) (*domain.VerificationCode, error)
	IncrementAttempts(ctx context.Context, userID string, t domain.OTPType) (int, error)
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type sessionIssuer interface {
	Issue(ctx context.Context, u *domain.User) (*session.Result, error)
}

type notifier interface {
	Notify(ctx context.Context, userID string, p webpush.Payload) error
}

type service struct {
	codes    codeStore
	users    userStore
	sms      smsSender
	sessions sessionIssuer
	notifier notifier
	now      func() time.Time
	newCode  func() (string, error)
}

type ServiceDeps struct {
	CodeRepo  codeStore
	UserRepo  userStore
	SMSSender smsSender
	Sessions  sessionIssuer
	Notifier  notifier
}

func NewService(deps ServiceDeps) Service {
	return &service{
		codes:    deps.CodeRepo,
		users:    deps.UserRepo,
		sms:      deps.SMSSender,
		sessions: deps.Sessions,
		notifier: deps.Notifier,
		now:      time.Now,
		newCode:  func() (string, error) { return pkgtoken.NewNumericCode(codeDigits) },
	}
}

// Send issues a code for the flow, or reports the remaining lifetime of one
// that is still pending for the same phone. Concurrent sends for one user can
// both miss the pending code; the (user_id, type) key keeps a single row and
// the later write wins.
func (s *service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	t := req.Type
	if t == "" {
		t = domain.OTPTypeLogin
		if !u.PhoneConfirmed {
			t = domain.OTPTypeRegistration
		}
	}
	to := targetPhone(u, t, req.Phone)
	if to == "" {
		return nil, fmt.Errorf("phone number required: %w", domain.ErrBadRequest)
	}
	if !phone.Valid(to) {
		return nil, fmt.Errorf("invalid phone number: %w", domain.ErrBadRequest)
	}

	now := s.now()
	existing, err := s.codes.Get(ctx, u.UserID, t)
	switch {
	case err == nil && existing.Pending(now) && existing.PhoneNumber == to:
		return &SendResult{
			Reused:    true,
			ExpiresIn: int(existing.Remaining(now).Seconds()),
			Phone:     to,
			Type:      t,
		}, nil
	case err == nil:
		if delErr := s.codes.Delete(ctx, u.UserID, t); delErr != nil {
			slog.Warn("failed to delete stale otp", "user_id", u.UserID, "type", t, "err", delErr)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("load otp: %w", err)
	}

	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	ttl := t.TTL()
	v := &domain.VerificationCode{
		UserID:      u.UserID,
		Type:        t,
		PhoneNumber: to,
		Code:        code,
		ExpiresAt:   now.Add(ttl).Unix(),
		CreatedAt:   now.UnixMilli(),
	}
	if err := s.codes.Put(ctx, v); err != nil {
		return nil, fmt.Errorf("store otp: %w", err)
	}

	msg := fmt.Sprintf("Your GoalTrack code is %s. It expires in %d minutes.", code, int(ttl.Minutes()))
	if err := s.sms.SendSMS(ctx, to, msg); err != nil {
		slog.Error("otp sms failed", "user_id", u.UserID, "type", t, "err", err)
		if delErr := s.codes.Delete(ctx, u.UserID, t); delErr != nil {
			slog.Warn("failed to delete undeliverable otp", "user_id", u.UserID, "type", t, "err", delErr)
		}
		return nil, fmt.Errorf("send sms: %w", domain.ErrUpstream)
	}
	return &SendResult{ExpiresIn: int(ttl.Seconds()), Phone: to, Type: t}, nil
}

// targetPhone picks the number a code goes to. Registration confirms the
// number the client supplies; other flows only use the account's number.
func targetPhone(u *domain.User, t domain.OTPType, requested string) string {
	if t == domain.OTPTypeRegistration && requested != "" {
		return phone.Canonical(requested)
	}
	if u.Phone != nil {
		return phone.Canonical(*u.Phone)
	}
	return ""
}

func (s *service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	raw := req.Phone
	if raw == "" && u.Phone != nil {
		raw = *u.Phone
	}
	if raw == "" {
		return nil, fmt.Errorf("phone number required: %w", domain.ErrBadRequest)
	}

	now := s.now()
	v, err := s.findPending(ctx, raw, req.Type, now)
	if err != nil {
		return nil, err
	}
	if v.UserID != u.UserID {
		return nil, fmt.Errorf("no pending code: %w", domain.ErrNotFound)
	}

	if subtle.ConstantTimeCompare([]byte(v.Code), []byte(req.Code)) != 1 {
		return nil, s.recordMismatch(ctx, v)
	}

	if err := s.codes.Delete(ctx, v.UserID, v.Type); err != nil {
		return nil, fmt.Errorf("consume otp: %w", err)
	}
	canonical := phone.Canonical(v.PhoneNumber)
	if v.Type == domain.OTPTypeRegistration {
		if err := s.users.Update(ctx, u.UserID, map[string]interface{}{
			"phone_confirmed": true,
			"phone":           canonical,
		}); err != nil {
			return nil, fmt.Errorf("confirm phone: %w", err)
		}
		u.PhoneConfirmed = true
		u.Phone = &canonical
	}

	res := &VerifyResult{Type: v.Type, Phone: canonical}
	if v.Type == domain.OTPTypePasswordReset {
		return res, nil
	}
	res.Session, err = s.sessions.Issue(ctx, u)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.Notify(ctx, u.UserID, webpush.Payload{
		Title: "New sign-in",
		Body:  "Your GoalTrack account was just signed in on a new device.",
		Tag:   "sign-in",
	}); err != nil {
		slog.Warn("sign-in push failed", "user_id", u.UserID, "err", err)
	}
	return res, nil
}

// findPending tries each stored formatting of the number, newest code first.
func (s *service) findPending(ctx context.Context, raw string, t domain.OTPType, now time.Time) (*domain.VerificationCode, error) {
	for _, variant := range phone.Variants(raw) {
		v, err := s.codes.LatestPendingByPhone(ctx, variant, t, now)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("lookup otp: %w", err)
		}
	}
	return nil, fmt.Errorf("no pending code: %w", domain.ErrNotFound)
}

// recordMismatch counts a wrong guess; the last allowed guess destroys the
// code so further attempts report not found.
func (s *service) recordMismatch(ctx context.Context, v *domain.VerificationCode) error {
	n, err := s.codes.IncrementAttempts(ctx, v.UserID, v.Type)
	if err != nil {
		return fmt.Errorf("count otp attempt: %w", err)
	}
	left := domain.MaxOTPAttempts - n
	if left <= 0 {
		if err := s.codes.Delete(ctx, v.UserID, v.Type); err != nil {
			return fmt.Errorf("delete exhausted otp: %w", err)
		}
		left = 0
	}
	return &domain.CodeMismatchError{AttemptsLeft: left}
}
