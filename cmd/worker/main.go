package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/port"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/archive"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/config"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/email"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-keyframe-service/internal/infra/minio"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/opencv"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/postgres"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/tracing"
	"github.com/fiapx/fiapx-keyframe-service/internal/usecase"
	"github.com/fiapx/fiapx-keyframe-service/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting "+tracing.ServiceName, zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, version)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		log.Warn("migration warning", zap.Error(err))
	}

	// MinIO
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		VideoBucket:   cfg.MinIOVideoBucket,
		ArchiveBucket: cfg.MinIOArchiveBucket,
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	// RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	defer pub.Close()

	// Infra adapters
	defaults, err := cfg.SelectionParams()
	fatalOnErr(err, "selection defaults")

	encoder, err := opencv.NewEncoder(cfg.ExportFormat)
	fatalOnErr(err, "create frame encoder")

	var prober port.DurationProber
	if p := ffmpeg.NewProber(log); p.Available() {
		prober = p
	} else {
		log.Info("ffprobe not found, video duration will be estimated from frame rate")
	}

	uc := usecase.NewSelectFramesUseCase(usecase.SelectFramesDeps{
		Repo:      postgres.NewJobRepository(pool),
		Storage:   storage,
		Decoder:   opencv.NewDecoder(log),
		Prober:    prober,
		Builder:   opencv.NewMapBuilder(),
		Encoder:   encoder,
		Zipper:    archive.NewZipCreator(),
		Publisher: rabbitmq.NewStatusPublisher(pub),
		DLQ:       rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ),
		Notifier:  email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log),
	}, log, usecase.SelectFramesConfig{
		TempDir:    cfg.TempDir,
		MaxRetries: cfg.MaxRetries,
		Defaults:   defaults,
	})

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitMQURL,
		Queue:       cfg.RabbitMQSelectionQueue,
		Exchange:    cfg.RabbitMQExchange,
		DLQ:         cfg.RabbitMQDLQ,
		StatusQueue: cfg.RabbitMQStatusQueue,
		Prefetch:    cfg.RabbitMQPrefetch,
		WorkerCount: cfg.WorkerCount,
		BaseDelayMs: cfg.RetryBaseDelayMs,
	}, uc.Execute, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("worker started, consuming messages",
		zap.String("queue", cfg.RabbitMQSelectionQueue),
		zap.Int("workers", cfg.WorkerCount),
		zap.Float64("edge_threshold", defaults.EdgeThreshold),
		zap.Int("frame_threshold", defaults.FrameThreshold),
		zap.String("baseline_policy", string(defaults.BaselinePolicy)),
	)

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	// Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info(tracing.ServiceName + " stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
