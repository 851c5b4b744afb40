package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goaltrack-api/internal/domain"
	"github.com/goaltrack-api/internal/infrastructure/webpush"
)

// Service manages a user's push endpoints and fans notifications out to them.
type Service interface {
	Subscribe(ctx context.Context, sub domain.PushSubscription) error
	Unsubscribe(ctx context.Context, userID, endpoint string) error
	Notify(ctx context.Context, userID string, p webpush.Payload) error
}

type subscriptionStore interface {
	Put(ctx context.Context, s *domain.PushSubscription) error
	ListByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	Delete(ctx context.Context, userID, endpoint string) error
}

type pushSender interface {
	Enabled() bool
	Send(ctx context.Context, sub domain.PushSubscription, p webpush.Payload) error
}

type service struct {
	repo   subscriptionStore
	sender pushSender
}

type ServiceDeps struct {
	Repo   subscriptionStore
	Sender pushSender
}

func NewService(deps ServiceDeps) Service {
	return &service{repo: deps.Repo, sender: deps.Sender}
}

func (s *service) Subscribe(ctx context.Context, sub domain.PushSubscription) error {
	sub.CreatedAt = time.Now().UTC()
	return s.repo.Put(ctx, &sub)
}

func (s *service) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	return s.repo.Delete(ctx, userID, endpoint)
}

// Notify sends p to every endpoint of the user. Endpoints the push service
// reports as gone are removed. The first delivery error is returned after all
// endpoints were tried.
func (s *service) Notify(ctx context.Context, userID string, p webpush.Payload) error {
	if !s.sender.Enabled() {
		return nil
	}
	subs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}
	var firstErr error
	for _, sub := range subs {
		err := s.sender.Send(ctx, sub, p)
		switch {
		case err == nil:
		case errors.Is(err, webpush.ErrExpired):
			if delErr := s.repo.Delete(ctx, userID, sub.Endpoint); delErr != nil {
				slog.Warn("failed to delete expired push subscription", "user_id", userID, "err", delErr)
			}
		default:
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
