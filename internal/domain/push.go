package domain

import "time"

// PushSubscription is a Web Push endpoint registered by a client.
// PK: user_id, SK: endpoint.
type PushSubscription struct {
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	Endpoint  string    `json:"endpoint" dynamodbav:"endpoint" validate:"required,url"`
	P256dh    string    `json:"p256dh" dynamodbav:"p256dh" validate:"required"`
	Auth      string    `json:"auth" dynamodbav:"auth" validate:"required"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
}
