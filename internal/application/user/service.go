package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goaltrack-api/internal/domain"
	"github.com/goaltrack-api/internal/pkg/id"
	"github.com/goaltrack-api/internal/pkg/phone"
	"golang.org/x/crypto/bcrypt"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldPasswordHash = "password_hash"
)

type Service interface {
	Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type sessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) error
}

type service struct {
	repo     userStore
	sessions sessionRevoker
}

type ServiceDeps struct {
	UserRepo userStore
	Sessions sessionRevoker
}

func NewService(deps ServiceDeps) Service {
	return &service{repo: deps.UserRepo, sessions: deps.Sessions}
}

// Register creates an account with an unconfirmed phone. The phone is
// confirmed later through the registration OTP flow.
func (s *service) Register(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var canonical *string
	if req.Phone != nil && *req.Phone != "" {
		c := phone.Canonical(*req.Phone)
		for _, variant := range phone.Variants(c) {
			if existing, err := s.repo.GetByPhone(ctx, variant); err == nil && existing.PhoneConfirmed {
				return nil, fmt.Errorf("phone already registered: %w", domain.ErrConflict)
			}
		}
		canonical = &c
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.NewAt(now),
		Email:        email,
		Phone:        canonical,
		PasswordHash: string(hash),
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

// ChangePassword requires the current password and signs out other sessions.
func (s *service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)); err != nil {
		return fmt.Errorf("current password is incorrect: %w", domain.ErrUnauthorized)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, userID, map[string]interface{}{fieldPasswordHash: string(hash)}); err != nil {
		return err
	}
	return s.sessions.RevokeAll(ctx, userID)
}
