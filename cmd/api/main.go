package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goaltrack-api/internal/config"
	"github.com/goaltrack-api/internal/infrastructure/appstore"
	"github.com/goaltrack-api/internal/infrastructure/awscfg"
	"github.com/goaltrack-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/goaltrack-api/internal/infrastructure/jwt"
	"github.com/goaltrack-api/internal/infrastructure/playstore"
	s3infra "github.com/goaltrack-api/internal/infrastructure/s3"
	"github.com/goaltrack-api/internal/infrastructure/sns"
	stripeinfra "github.com/goaltrack-api/internal/infrastructure/stripe"
	"github.com/goaltrack-api/internal/infrastructure/webpush"
	"github.com/goaltrack-api/internal/pkg/catalog"
	"github.com/goaltrack-api/internal/pkg/logging"
	transporthttp "github.com/goaltrack-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.AppEnv)

	ctx := context.Background()
	awsCfg, err := awscfg.Load(ctx, cfg)
	if err != nil {
		fatal("aws config", err)
	}

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(awsCfg, cfg.AWSEndpointURL)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		fatal("jwt provider", err)
	}

	// Google Play is optional; Android receipts fail upstream without it.
	var playClient *playstore.Client
	if cfg.Google.CredentialsFile != "" {
		opt, err := playstore.CredentialsOption(ctx, cfg.Google.CredentialsFile)
		if err == nil {
			playClient, err = playstore.NewClient(ctx, cfg.Google.PackageName, opt)
		}
		if err != nil {
			slog.Warn("google play verification disabled", "err", err)
			playClient = nil
		}
	} else {
		slog.Warn("google play verification disabled", "reason", "GOOGLE_SERVICE_ACCOUNT_FILE not set")
	}

	outbound := &http.Client{Timeout: cfg.OutboundTimeout}
	t := cfg.DynamoTables
	deps := &transporthttp.Deps{
		UserRepo:             dynamo.NewUserRepo(dynamoClient, t.Users),
		SessionRepo:          dynamo.NewSessionRepo(dynamoClient, t.Sessions),
		VerificationRepo:     dynamo.NewVerificationRepo(dynamoClient, t.VerificationCodes),
		PasswordResetRepo:    dynamo.NewPasswordResetRepo(dynamoClient, t.PasswordResets),
		SubscriptionRepo:     dynamo.NewSubscriptionRepo(dynamoClient, t.Subscriptions),
		PaymentRepo:          dynamo.NewPaymentRepo(dynamoClient, t.Payments),
		BalanceRepo:          dynamo.NewBalanceRepo(dynamoClient, t.TokenBalances),
		PushSubscriptionRepo: dynamo.NewPushSubscriptionRepo(dynamoClient, t.PushSubscriptions),

		SMSSender:      sns.NewSender(awsCfg, cfg.SNSRegion, cfg.AWSEndpointURL),
		ReceiptArchive: s3infra.NewReceiptArchive(s3infra.NewClient(awsCfg, cfg.AWSEndpointURL), cfg.ReceiptBucket),
		JWTProvider:    jwtProvider,
		AppStore:       appstore.NewClient(cfg.Apple, cfg.OutboundTimeout),
		PlayStore:      playClient,
		Stripe:         stripeinfra.NewClient(cfg.Stripe),
		PushSender:     webpush.NewSender(cfg.Push, outbound),
		Catalog:        catalog.New(cfg.Stripe.PriceIDs),
		Config:         cfg,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fatal("forced shutdown", err)
	}
	slog.Info("server stopped")
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
