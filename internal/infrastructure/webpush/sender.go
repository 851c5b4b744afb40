// Package webpush delivers Web Push notifications signed with VAPID keys.
package webpush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/goaltrack-api/internal/config"
	"github.com/goaltrack-api/internal/domain"
)

// ErrExpired is returned when the push service reports the endpoint gone.
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON body shown by the client's service worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Sender sends one notification per call; there are no retries.
type Sender struct {
	opts   webpush.Options
	client *http.Client
}

func NewSender(cfg config.Push, client *http.Client) *Sender {
	return &Sender{
		opts: webpush.Options{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subscriber:      cfg.Subscriber,
			TTL:             3600,
			Urgency:         webpush.UrgencyHigh,
		},
		client: client,
	}
}

// Enabled reports whether VAPID keys are configured.
func (s *Sender) Enabled() bool {
	return s.opts.VAPIDPublicKey != "" && s.opts.VAPIDPrivateKey != ""
}

func (s *Sender) Send(ctx context.Context, sub domain.PushSubscription, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	opts := s.opts
	opts.HTTPClient = s.client

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &opts)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return ErrExpired
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}
