package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mgastelum/tubedigest-backend/api/routes"
	"github.com/mgastelum/tubedigest-backend/internal/billing"
	"github.com/mgastelum/tubedigest-backend/internal/channels"
	"github.com/mgastelum/tubedigest-backend/internal/notifications"
	"github.com/mgastelum/tubedigest-backend/internal/users"
	"github.com/mgastelum/tubedigest-backend/internal/videos"
	stripewebhook "github.com/mgastelum/tubedigest-backend/internal/webhooks/stripe"
	"github.com/mgastelum/tubedigest-backend/pkg/config"
	"github.com/mgastelum/tubedigest-backend/pkg/db"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
	"github.com/mgastelum/tubedigest-backend/pkg/metrics"
	"github.com/mgastelum/tubedigest-backend/pkg/migrate"
	"github.com/mgastelum/tubedigest-backend/pkg/redis"
	"github.com/mgastelum/tubedigest-backend/pkg/stripe"
	"github.com/mgastelum/tubedigest-backend/pkg/summarize"
	"github.com/mgastelum/tubedigest-backend/pkg/whatsapp"
	"github.com/mgastelum/tubedigest-backend/pkg/youtube"
)

const webhookIdempotencyTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	youtubeClient, err := youtube.NewClient(context.Background(), cfg.YouTube)
	if err != nil {
		logg.Error(context.Background(), "failed to create youtube client", err)
		os.Exit(1)
	}

	summarizer, err := summarize.NewOpenAISummarizer(cfg.OpenAI)
	if err != nil {
		logg.Error(context.Background(), "failed to create summarizer", err)
		os.Exit(1)
	}

	whatsappSender, err := whatsapp.NewSender(cfg.WhatsApp, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create whatsapp sender", err)
		os.Exit(1)
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	usersService, err := users.NewService(users.ServiceParams{
		Repo:   users.NewRepository(dbClient.DB()),
		Sender: whatsappSender,
		Codes:  cfg.Codes,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create users service", err)
		os.Exit(1)
	}

	channelsService, err := channels.NewService(channels.ServiceParams{
		Repo:     channels.NewRepository(dbClient.DB()),
		Resolver: youtubeClient,
		Users:    usersService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create channels service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.ServiceParams{
		Repo:    notifications.NewRepository(dbClient.DB()),
		Sender:  whatsappSender,
		Logger:  logg,
		Metrics: pipelineMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	videosService, err := videos.NewService(videos.ServiceParams{
		Repo:       videos.NewRepository(dbClient.DB()),
		Channels:   channels.NewRepository(dbClient.DB()),
		Lister:     youtubeClient,
		Summarizer: summarizer,
		Quota:      usersService,
		Logger:     logg,
		Metrics:    pipelineMetrics,
		Pipeline:   cfg.Pipeline,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pipeline service", err)
		os.Exit(1)
	}

	billingStripeClient := billing.NewStripeClient(stripeClient)
	billingService, err := billing.NewService(billing.ServiceParams{
		Repo:   billing.NewRepository(dbClient.DB()),
		Users:  users.NewRepository(dbClient.DB()),
		Stripe: billingStripeClient,
		Config: cfg.Stripe,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		BillingRepo:       billing.NewRepository(dbClient.DB()),
		UserRepo:          users.NewRepository(dbClient.DB()),
		StripeClient:      billingStripeClient,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	stripeWebhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			usersService,
			channelsService,
			notificationsService,
			billingService,
			videosService,
			stripeClient,
			stripeWebhookService,
			stripeWebhookGuard,
		),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "error draining api server", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
