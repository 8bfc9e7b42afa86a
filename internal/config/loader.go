package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BOOKPARSE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BOOKPARSE_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Parse ──
	setStr(&cfg.Parse.StartDate, "BOOKPARSE_PARSE_START_DATE")
	setStr(&cfg.Parse.EndDate, "BOOKPARSE_PARSE_END_DATE")
	setInt(&cfg.Parse.Workers, "BOOKPARSE_PARSE_WORKERS")
	setInt(&cfg.Parse.MaxIterations, "BOOKPARSE_PARSE_MAX_ITERATIONS")
	setBool(&cfg.Parse.SkipCompleted, "BOOKPARSE_PARSE_SKIP_COMPLETED")

	// ── Source ──
	setStr(&cfg.Source.Kind, "BOOKPARSE_SOURCE_KIND")
	setStr(&cfg.Source.Root, "BOOKPARSE_SOURCE_ROOT")
	setStr(&cfg.Source.Prefix, "BOOKPARSE_SOURCE_PREFIX")

	// ── Sink ──
	setStringSlice(&cfg.Sink.Kinds, "BOOKPARSE_SINK_KINDS")
	setStr(&cfg.Sink.Dir, "BOOKPARSE_SINK_DIR")
	setStr(&cfg.Sink.Prefix, "BOOKPARSE_SINK_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BOOKPARSE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BOOKPARSE_S3_REGION")
	setStr(&cfg.S3.Bucket, "BOOKPARSE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BOOKPARSE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BOOKPARSE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BOOKPARSE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BOOKPARSE_S3_FORCE_PATH_STYLE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BOOKPARSE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "BOOKPARSE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BOOKPARSE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BOOKPARSE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BOOKPARSE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BOOKPARSE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BOOKPARSE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BOOKPARSE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BOOKPARSE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BOOKPARSE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BOOKPARSE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BOOKPARSE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BOOKPARSE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BOOKPARSE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BOOKPARSE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BOOKPARSE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BOOKPARSE_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "BOOKPARSE_REDIS_LOCK_TTL")
	setStr(&cfg.Redis.ProgressKey, "BOOKPARSE_REDIS_PROGRESS_KEY")
	setStr(&cfg.Redis.Stream, "BOOKPARSE_REDIS_STREAM")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BOOKPARSE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BOOKPARSE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BOOKPARSE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BOOKPARSE_NOTIFY_EVENTS")
	setStr(&cfg.Notify.Tag, "BOOKPARSE_NOTIFY_TAG")

	// ── Top-level ──
	setStr(&cfg.Mode, "BOOKPARSE_MODE")
	setStr(&cfg.LogLevel, "BOOKPARSE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
