package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mgastelum/tubedigest-backend/internal/channels"
	"github.com/mgastelum/tubedigest-backend/internal/cron"
	"github.com/mgastelum/tubedigest-backend/internal/notifications"
	"github.com/mgastelum/tubedigest-backend/internal/users"
	"github.com/mgastelum/tubedigest-backend/internal/videos"
	"github.com/mgastelum/tubedigest-backend/pkg/config"
	"github.com/mgastelum/tubedigest-backend/pkg/db"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
	"github.com/mgastelum/tubedigest-backend/pkg/metrics"
	"github.com/mgastelum/tubedigest-backend/pkg/migrate"
	"github.com/mgastelum/tubedigest-backend/pkg/redis"
	"github.com/mgastelum/tubedigest-backend/pkg/summarize"
	"github.com/mgastelum/tubedigest-backend/pkg/whatsapp"
	"github.com/mgastelum/tubedigest-backend/pkg/youtube"
)

const lockKeyFormat = "td:pipeline-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "pipeline-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "pipeline-worker"

	logg = logger.New(logger.Options{
		ServiceName: "pipeline-worker",
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

	discoveryJob, err := cron.NewVideoDiscoveryJob(cron.VideoDiscoveryJobParams{
		Logger:   logg,
		Pipeline: videosService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create video discovery job", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewDeliverySweepJob(cron.DeliverySweepJobParams{
		Logger:        logg,
		Notifications: notificationsService,
		BatchSize:     cfg.Pipeline.SweepBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery sweep job", err)
		os.Exit(1)
	}

	quotaJob, err := cron.NewQuotaResetJob(cron.QuotaResetJobParams{
		Logger: logg,
		Users:  usersService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create quota reset job", err)
		os.Exit(1)
	}

	cleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:        logg,
		Notifications: notificationsService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification cleanup job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(discoveryJob, sweepJob, quotaJob, cleanupJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Pipeline.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting pipeline worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "pipeline worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "pipeline worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
