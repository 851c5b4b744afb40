package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/goaltrack-api/internal/application/session"
	"github.com/goaltrack-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper. Success is false on
// every error response.
type MessageEnvelope struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	AttemptsLeft *int   `json:"attempts_left,omitempty"`
	RetryAfter   int    `json:"retry_after,omitempty"`
}

// SafeUser is the account view returned to its owner.
type SafeUser struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Phone          *string   `json:"phone,omitempty"`
	PhoneConfirmed bool      `json:"phone_confirmed"`
	Created        time.Time `json:"created"`
}

// SafeSession omits the refresh token and its expiry.
type SafeSession struct {
	ID      string    `json:"id"`
	UserID  string    `json:"user_id"`
	Created time.Time `json:"created"`
}

// AuthEnvelope wraps responses that issue credentials.
type AuthEnvelope struct {
	Success      bool         `json:"success"`
	Bearer       string       `json:"Bearer,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	Session      *SafeSession `json:"session,omitempty"`
	User         *SafeUser    `json:"user,omitempty"`
	Message      string       `json:"message,omitempty"`
}

func toSafeUser(u *domain.User) *SafeUser {
	if u == nil {
		return nil
	}
	return &SafeUser{
		ID:             u.UserID,
		Email:          u.Email,
		Phone:          u.Phone,
		PhoneConfirmed: u.PhoneConfirmed,
		Created:        u.CreatedAt,
	}
}

func toSafeSession(s *domain.Session) *SafeSession {
	if s == nil {
		return nil
	}
	return &SafeSession{ID: s.SessionID, UserID: s.UserID, Created: s.CreatedAt}
}

func authEnvelope(res *session.Result) AuthEnvelope {
	env := AuthEnvelope{Success: true, Bearer: res.Bearer, RefreshToken: res.RefreshToken, Session: toSafeSession(res.Session)}
	if res.Session != nil {
		env.User = toSafeUser(res.Session.User)
	}
	return env
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Success: true, Message: msg})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}
