package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goaltrack-api/internal/application/entitlement"
	"github.com/goaltrack-api/internal/application/notification"
	"github.com/goaltrack-api/internal/application/otp"
	"github.com/goaltrack-api/internal/application/passwordreset"
	"github.com/goaltrack-api/internal/application/receipt"
	"github.com/goaltrack-api/internal/application/session"
	"github.com/goaltrack-api/internal/application/user"
	"github.com/goaltrack-api/internal/transport/http/handler"
	appmiddleware "github.com/goaltrack-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter wires the application services and returns the HTTP handler.
func NewRouter(deps *Deps) http.Handler {
	cfg := deps.Config

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider)

	// 5 requests/second, burst of 10 per IP on the code-sending endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	sessionSvc := session.NewService(session.ServiceDeps{
		SessionRepo:     deps.SessionRepo,
		UserRepo:        deps.UserRepo,
		JWTProvider:     deps.JWTProvider,
		RefreshTokenDur: cfg.RefreshTokenExpiry,
	})
	userSvc := user.NewService(user.ServiceDeps{UserRepo: deps.UserRepo, Sessions: sessionSvc})
	notifSvc := notification.NewService(notification.ServiceDeps{Repo: deps.PushSubscriptionRepo, Sender: deps.PushSender})
	otpSvc := otp.NewService(otp.ServiceDeps{
		CodeRepo:  deps.VerificationRepo,
		UserRepo:  deps.UserRepo,
		SMSSender: deps.SMSSender,
		Sessions:  sessionSvc,
		Notifier:  notifSvc,
	})
	resetSvc := passwordreset.NewService(passwordreset.ServiceDeps{
		StateRepo: deps.PasswordResetRepo,
		UserRepo:  deps.UserRepo,
		SMSSender: deps.SMSSender,
		Sessions:  sessionSvc,
	})
	entitlementSvc := entitlement.NewService(entitlement.ServiceDeps{
		PaymentRepo:      deps.PaymentRepo,
		SubscriptionRepo: deps.SubscriptionRepo,
		BalanceRepo:      deps.BalanceRepo,
		Catalog:          deps.Catalog,
		Processor:        deps.Stripe,
	})
	lifecycleSvc := entitlement.NewLifecycle(entitlement.LifecycleDeps{
		SubscriptionRepo: deps.SubscriptionRepo,
		Processor:        deps.Stripe,
		Catalog:          deps.Catalog,
		Reconciler:       entitlementSvc,
	})
	receiptDeps := receipt.ServiceDeps{
		Apple:      deps.AppStore,
		Catalog:    deps.Catalog,
		Reconciler: entitlementSvc,
		Archive:    deps.ReceiptArchive,
	}
	if deps.PlayStore != nil {
		receiptDeps.Play = deps.PlayStore
	}
	receiptSvc := receipt.NewService(receiptDeps)

	healthH := handler.NewHealthHandler()
	sessionH := handler.NewSessionHandler(sessionSvc)
	userH := handler.NewUserHandler(userSvc)
	otpH := handler.NewOTPHandler(otpSvc)
	resetH := handler.NewPasswordResetHandler(resetSvc)
	receiptH := handler.NewReceiptHandler(receiptSvc)
	subH := handler.NewSubscriptionHandler(lifecycleSvc, entitlementSvc)
	webhookH := handler.NewStripeWebhookHandler(deps.Stripe, entitlementSvc)
	pushH := handler.NewPushHandler(notifSvc)

	r.Route("/v1", func(r chi.Router) {
		// Public
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/users", userH.Register)
		r.With(sensitiveRL.Limit).Post("/otp", otpH.Action)
		r.With(sensitiveRL.Limit).Post("/password-reset", resetH.Action)
		r.Post("/sessions/refresh", sessionH.Refresh)
		r.Post("/stripe-webhook", webhookH.Handle)

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/users/me", userH.Me)
			r.Post("/users/me/password", userH.ChangePassword)
			r.Post("/sessions/logout", sessionH.Logout)

			r.Post("/validate-receipt", receiptH.Validate)
			r.Post("/manage-subscription", subH.Manage)
			r.Post("/manage-subscription-advanced", subH.ManageAdvanced)
			r.Get("/entitlements", subH.Get)

			r.Post("/push-subscriptions", pushH.Subscribe)
			r.Delete("/push-subscriptions", pushH.Unsubscribe)
		})
	})

	return r
}
