package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mgastelum/tubedigest-backend/api/controllers"
	webhookcontrollers "github.com/mgastelum/tubedigest-backend/api/controllers/webhooks"
	"github.com/mgastelum/tubedigest-backend/api/middleware"
	"github.com/mgastelum/tubedigest-backend/internal/billing"
	"github.com/mgastelum/tubedigest-backend/internal/channels"
	"github.com/mgastelum/tubedigest-backend/internal/notifications"
	"github.com/mgastelum/tubedigest-backend/internal/users"
	"github.com/mgastelum/tubedigest-backend/internal/videos"
	stripewebhook "github.com/mgastelum/tubedigest-backend/internal/webhooks/stripe"
	"github.com/mgastelum/tubedigest-backend/pkg/config"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
	"github.com/mgastelum/tubedigest-backend/pkg/redis"
	"github.com/mgastelum/tubedigest-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	usersService users.Service,
	channelsService channels.Service,
	notificationsService notifications.Service,
	billingService billing.Service,
	videosService videos.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var cachePinger controllers.Pinger
	if redisClient != nil {
		cachePinger = redisClient
	}

	codePolicy := middleware.NewAuthRateLimitPolicy(
		"whatsapp-code",
		cfg.RateLimit.CodeWindow,
		cfg.RateLimit.CodeIPLimit,
		cfg.RateLimit.CodeTargetLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, cachePinger, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, usersService, logg))

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", controllers.ListChannels(channelsService, logg))
			r.Post("/", controllers.SubscribeChannel(channelsService, logg))
			r.Get("/{channelId}", controllers.GetChannel(channelsService, logg))
			r.Delete("/{channelId}", controllers.UnsubscribeChannel(channelsService, logg))
		})

		r.Route("/me", func(r chi.Router) {
			r.Get("/", controllers.Me(usersService, logg))
			r.Patch("/", controllers.UpdateMe(usersService, logg))
			r.Delete("/", controllers.DeleteAccount(usersService, logg))
			r.Post("/onboarding", controllers.CompleteOnboarding(usersService, logg))
			r.Get("/quota", controllers.QuotaStatus(usersService, logg))
			r.Get("/export", controllers.ExportData(usersService, logg))
			r.Route("/whatsapp", func(r chi.Router) {
				r.With(middleware.AuthRateLimit(codePolicy, redisClient, logg)).
					Post("/request-code", controllers.RequestWhatsAppCode(usersService, logg))
				r.Post("/confirm", controllers.ConfirmWhatsAppCode(usersService, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/sent", controllers.MarkNotificationSent(notificationsService, logg))
			r.Delete("/{notificationId}", controllers.DeleteNotification(notificationsService, logg))
		})

		r.Route("/billing", func(r chi.Router) {
			r.Post("/checkout", controllers.CreateCheckoutSession(billingService, logg))
			r.Post("/portal", controllers.CreatePortalSession(billingService, logg))
			r.Get("/subscription", controllers.CurrentSubscription(billingService, logg))
		})
	})

	r.Route("/api/internal/v1", func(r chi.Router) {
		r.Use(middleware.SchedulerAuth(cfg.Scheduler, logg))

		r.Post("/videos/process", controllers.ProcessVideos(videosService, logg))
		r.Get("/notifications/pending", controllers.ListPendingNotifications(notificationsService, logg))
		r.Post("/notifications/send-pending", controllers.SendPendingNotifications(notificationsService, logg))
	})

	return r
}
