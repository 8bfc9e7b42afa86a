package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/intradaybook/internal/archive"
	s3blob "github.com/alanyoungcy/intradaybook/internal/blob/s3"
	"github.com/alanyoungcy/intradaybook/internal/cache/redis"
	"github.com/alanyoungcy/intradaybook/internal/config"
	"github.com/alanyoungcy/intradaybook/internal/domain"
	"github.com/alanyoungcy/intradaybook/internal/export"
	"github.com/alanyoungcy/intradaybook/internal/notify"
	"github.com/alanyoungcy/intradaybook/internal/store/postgres"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function. Optional collaborators stay
// nil when their backend is not configured.
type Dependencies struct {
	// Raw archive
	Archive archive.Store

	// Day table sinks, in configuration order
	Sinks []export.Sink

	// Stores
	OrderStore domain.OrderStore
	AuditStore domain.AuditStore

	// Coordination
	LockManager domain.LockManager
	Progress    domain.ProgressCache
	Publisher   domain.DayPublisher

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- S3 blob storage (raw archive source and/or table sink) ---
	var (
		blobReader domain.BlobReader
		blobWriter domain.BlobWriter
	)
	if cfg.NeedsS3() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		blobReader = s3blob.NewReader(s3Client)
		blobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Raw archive ---
	switch strings.ToLower(cfg.Source.Kind) {
	case config.KindS3:
		deps.Archive = archive.NewBlobStore(blobReader, cfg.Source.Prefix)
	default:
		deps.Archive = archive.NewDirStore(cfg.Source.Root)
	}

	// --- PostgreSQL (canonical tables and audit log) ---
	if cfg.NeedsPostgres() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Sinks ---
	for _, kind := range cfg.Sink.Kinds {
		switch strings.ToLower(kind) {
		case config.KindFS:
			sink, err := export.NewDirSink(cfg.Sink.Dir)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: fs sink: %w", err)
			}
			deps.Sinks = append(deps.Sinks, sink)
		case config.KindS3:
			deps.Sinks = append(deps.Sinks, export.NewBlobSink(blobWriter, cfg.Sink.Prefix))
		case config.KindPostgres:
			deps.Sinks = append(deps.Sinks, export.NewStoreSink(deps.OrderStore))
		default:
			cleanup()
			return nil, nil, fmt.Errorf("wire: unknown sink %q", kind)
		}
	}

	// --- Redis (locks, progress, day stream) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient, logger)
		deps.Progress = redis.NewProgressCache(redisClient, cfg.Redis.ProgressKey)
		deps.Publisher = redis.NewDayStream(redisClient, cfg.Redis.Stream)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Tag, logger)

	return deps, cleanup, nil
}
