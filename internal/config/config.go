package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	ReceiptBucket  string
	SNSRegion      string

	JWTPrivateKeyPath  string
	JWTPublicKeyPath   string
	JWTExpiry          time.Duration
	RefreshTokenExpiry time.Duration

	AllowedOrigins  []string // CORS allowed origins
	OutboundTimeout time.Duration

	Apple  Apple
	Google Google
	Stripe Stripe
	Push   Push
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users             string
	Sessions          string
	VerificationCodes string
	PasswordResets    string
	Subscriptions     string
	Payments          string
	TokenBalances     string
	PushSubscriptions string
}

// Apple configures App Store receipt verification.
type Apple struct {
	SharedSecret  string
	ProductionURL string
	SandboxURL    string
}

// Google configures Google Play purchase verification.
type Google struct {
	PackageName     string
	CredentialsFile string
}

// Stripe configures the payment processor. Price IDs map plan IDs to Stripe prices.
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	PriceIDs      map[string]string
}

// Push holds VAPID keys for Web Push delivery.
type Push struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:             getEnv("DYNAMO_TABLE_USERS", "users"),
			Sessions:          getEnv("DYNAMO_TABLE_SESSIONS", "sessions"),
			VerificationCodes: getEnv("DYNAMO_TABLE_VERIFICATION_CODES", "verification_codes"),
			PasswordResets:    getEnv("DYNAMO_TABLE_PASSWORD_RESETS", "password_resets"),
			Subscriptions:     getEnv("DYNAMO_TABLE_SUBSCRIPTIONS", "subscriptions"),
			Payments:          getEnv("DYNAMO_TABLE_PAYMENTS", "payments"),
			TokenBalances:     getEnv("DYNAMO_TABLE_TOKEN_BALANCES", "token_balances"),
			PushSubscriptions: getEnv("DYNAMO_TABLE_PUSH_SUBSCRIPTIONS", "push_subscriptions"),
		},
		ReceiptBucket:      getEnv("S3_RECEIPT_BUCKET", "goaltrack-receipts"),
		SNSRegion:          getEnv("SNS_REGION", "us-east-1"),
		JWTPrivateKeyPath:  getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:   getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:          time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,
		RefreshTokenExpiry: time.Duration(getEnvInt("REFRESH_TOKEN_EXPIRY_DAYS", 30)) * 24 * time.Hour,
		AllowedOrigins:     strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		OutboundTimeout:    getEnvDuration("OUTBOUND_TIMEOUT", 15*time.Second),
		Apple: Apple{
			SharedSecret:  getEnv("APPLE_SHARED_SECRET", ""),
			ProductionURL: getEnv("APPLE_VERIFY_URL", "https://buy.itunes.apple.com/verifyReceipt"),
			SandboxURL:    getEnv("APPLE_SANDBOX_VERIFY_URL", "https://sandbox.itunes.apple.com/verifyReceipt"),
		},
		Google: Google{
			PackageName:     getEnv("GOOGLE_PLAY_PACKAGE_NAME", ""),
			CredentialsFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		},
		Stripe: Stripe{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:    getEnv("STRIPE_SUCCESS_URL", "goaltrack://subscription/success"),
			CancelURL:     getEnv("STRIPE_CANCEL_URL", "goaltrack://subscription/cancel"),
			PriceIDs: map[string]string{
				"starter":   getEnv("STRIPE_PRICE_STARTER", ""),
				"pro":       getEnv("STRIPE_PRICE_PRO", ""),
				"unlimited": getEnv("STRIPE_PRICE_UNLIMITED", ""),
			},
		},
		Push: Push{
			VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
			Subscriber:      getEnv("VAPID_SUBSCRIBER", "mailto:noreply@goaltrack.app"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
