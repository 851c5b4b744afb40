package webpush

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goaltrack-api/internal/config"
	"github.com/goaltrack-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) (pub, priv string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	d := make([]byte, 32)
	key.D.FillBytes(d)
	return base64.RawURLEncoding.EncodeToString(pubBytes), base64.RawURLEncoding.EncodeToString(d)
}

// testSubscription builds a subscription with a valid client key pair so the
// payload can be encrypted.
func testSubscription(t *testing.T, endpoint string) domain.PushSubscription {
	t.Helper()
	pub, _ := testKeys(t)
	auth := make([]byte, 16)
	_, err := rand.Read(auth)
	require.NoError(t, err)
	return domain.PushSubscription{
		UserID:   "u1",
		Endpoint: endpoint,
		P256dh:   pub,
		Auth:     base64.RawURLEncoding.EncodeToString(auth),
	}
}

func newTestSender(t *testing.T, srv *httptest.Server) *Sender {
	pub, priv := testKeys(t)
	return NewSender(config.Push{VAPIDPublicKey: pub, VAPIDPrivateKey: priv, Subscriber: "ops@goaltrack.app"}, srv.Client())
}

func TestSend_Created(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := newTestSender(t, srv)
	assert.True(t, s.Enabled())
	err := s.Send(context.Background(), testSubscription(t, srv.URL), Payload{Title: "New sign-in", Body: "hello"})
	require.NoError(t, err)
}

func TestSend_Gone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	err := newTestSender(t, srv).Send(context.Background(), testSubscription(t, srv.URL), Payload{Title: "x"})
	assert.True(t, errors.Is(err, ErrExpired))
}

func TestSend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestSender(t, srv).Send(context.Background(), testSubscription(t, srv.URL), Payload{Title: "x"})
	assert.ErrorContains(t, err, "500")
}

func TestEnabled_NoKeys(t *testing.T) {
	assert.False(t, NewSender(config.Push{}, http.DefaultClient).Enabled())
}
