package http

import (
	"github.com/goaltrack-api/internal/config"
	"github.com/goaltrack-api/internal/infrastructure/appstore"
	"github.com/goaltrack-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/goaltrack-api/internal/infrastructure/jwt"
	"github.com/goaltrack-api/internal/infrastructure/playstore"
	s3infra "github.com/goaltrack-api/internal/infrastructure/s3"
	"github.com/goaltrack-api/internal/infrastructure/sns"
	stripeinfra "github.com/goaltrack-api/internal/infrastructure/stripe"
	"github.com/goaltrack-api/internal/infrastructure/webpush"
	"github.com/goaltrack-api/internal/pkg/catalog"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo             *dynamo.UserRepo
	SessionRepo          *dynamo.SessionRepo
	VerificationRepo     *dynamo.VerificationRepo
	PasswordResetRepo    *dynamo.PasswordResetRepo
	SubscriptionRepo     *dynamo.SubscriptionRepo
	PaymentRepo          *dynamo.PaymentRepo
	BalanceRepo          *dynamo.BalanceRepo
	PushSubscriptionRepo *dynamo.PushSubscriptionRepo

	SMSSender      sns.SMSSender
	ReceiptArchive *s3infra.ReceiptArchive
	JWTProvider    *jwtinfra.Provider
	AppStore       *appstore.Client
	PlayStore      *playstore.Client // nil when no service account is configured
	Stripe         *stripeinfra.Client
	PushSender     *webpush.Sender
	Catalog        *catalog.Catalog

	Config *config.Config
}
