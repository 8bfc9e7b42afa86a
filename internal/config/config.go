// Package config defines the top-level configuration for bookparse and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BOOKPARSE_* environment variables.
type Config struct {
	Parse    ParseConfig    `toml:"parse"`
	Source   SourceConfig   `toml:"source"`
	Sink     SinkConfig     `toml:"sink"`
	S3       S3Config       `toml:"s3"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ParseConfig selects the days to resolve and how.
type ParseConfig struct {
	// StartDate and EndDate are inclusive YYYY-MM-DD UTC days.
	StartDate     string `toml:"start_date"`
	EndDate       string `toml:"end_date"`
	Workers       int    `toml:"workers"`
	MaxIterations int    `toml:"max_iterations"`
	SkipCompleted bool   `toml:"skip_completed"`
}

// SourceConfig locates the raw monthly archive.
type SourceConfig struct {
	Kind   string `toml:"kind"`
	Root   string `toml:"root"`
	Prefix string `toml:"prefix"`
}

// SinkConfig lists where day tables are written.
type SinkConfig struct {
	Kinds  []string `toml:"kinds"`
	Dir    string   `toml:"dir"`
	Prefix string   `toml:"prefix"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters and the key names used for
// coordination between runs.
type RedisConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	LockTTL     duration `toml:"lock_ttl"`
	ProgressKey string   `toml:"progress_key"`
	Stream      string   `toml:"stream"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "10m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Tag               string   `toml:"tag"`
}

// Source and sink kinds.
const (
	KindFS       = "fs"
	KindS3       = "s3"
	KindPostgres = "postgres"
)

// Modes.
const (
	ModeParse  = "parse"
	ModeDryRun = "dry_run"
	ModeVerify = "verify"
	ModeStatus = "status"
)

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Parse: ParseConfig{
			Workers: 1,
		},
		Source: SourceConfig{
			Kind: KindFS,
			Root: "data/raw",
		},
		Sink: SinkConfig{
			Kinds: []string{KindFS},
			Dir:   "data/tables",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "intradaybook",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:     false,
			Addr:        "localhost:6379",
			PoolSize:    10,
			MaxRetries:  3,
			LockTTL:     duration{10 * time.Minute},
			ProgressKey: "bookparse:progress",
			Stream:      "bookparse:days",
		},
		Notify: NotifyConfig{
			Events: []string{"run_completed", "run_failed"},
		},
		Mode:     ModeParse,
		LogLevel: "info",
	}
}

// ParseDay parses a YYYY-MM-DD date as midnight UTC.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: bad date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// Range returns the configured inclusive day range. An empty end date means
// the start date alone.
func (c *Config) Range() (time.Time, time.Time, error) {
	from, err := ParseDay(c.Parse.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if strings.TrimSpace(c.Parse.EndDate) == "" {
		return from, from, nil
	}
	to, err := ParseDay(c.Parse.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// UsesSink reports whether kind is one of the configured sinks.
func (c *Config) UsesSink(kind string) bool {
	for _, k := range c.Sink.Kinds {
		if strings.EqualFold(k, kind) {
			return true
		}
	}
	return false
}

// NeedsS3 reports whether any component reads or writes the bucket.
func (c *Config) NeedsS3() bool {
	return strings.EqualFold(c.Source.Kind, KindS3) || c.UsesSink(KindS3)
}

// NeedsPostgres reports whether the run needs a database connection. The
// audit log is written whenever postgres is a sink, and verify reads the
// stored tables back.
func (c *Config) NeedsPostgres() bool {
	return c.UsesSink(KindPostgres) || strings.EqualFold(c.Mode, ModeVerify)
}

var validModes = map[string]bool{
	ModeParse:  true,
	ModeDryRun: true,
	ModeVerify: true,
	ModeStatus: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSinks = map[string]bool{
	KindFS:       true,
	KindS3:       true,
	KindPostgres: true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: parse, dry_run, verify, status)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Parse
	if strings.TrimSpace(c.Parse.StartDate) == "" {
		errs = append(errs, "parse: start_date must be set")
	} else if from, to, err := c.Range(); err != nil {
		errs = append(errs, "parse: "+strings.TrimPrefix(err.Error(), "config: "))
	} else if from.After(to) {
		errs = append(errs, fmt.Sprintf("parse: start_date %s is after end_date %s", c.Parse.StartDate, c.Parse.EndDate))
	}
	if c.Parse.Workers < 1 {
		errs = append(errs, "parse: workers must be >= 1")
	}
	if c.Parse.MaxIterations < 0 {
		errs = append(errs, "parse: max_iterations must be >= 0")
	}

	// Source
	switch strings.ToLower(c.Source.Kind) {
	case KindFS:
		if c.Source.Root == "" {
			errs = append(errs, "source: root must not be empty for kind fs")
		}
	case KindS3:
	default:
		errs = append(errs, fmt.Sprintf("source: unknown kind %q (valid: fs, s3)", c.Source.Kind))
	}

	// Sink
	if len(c.Sink.Kinds) == 0 && strings.ToLower(c.Mode) == ModeParse {
		errs = append(errs, "sink: kinds must list at least one sink in parse mode")
	}
	for _, k := range c.Sink.Kinds {
		if !validSinks[strings.ToLower(k)] {
			errs = append(errs, fmt.Sprintf("sink: unknown kind %q (valid: fs, s3, postgres)", k))
		}
	}
	if c.UsesSink(KindFS) && c.Sink.Dir == "" {
		errs = append(errs, "sink: dir must not be empty for kind fs")
	}

	// S3
	if c.NeedsS3() {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Postgres
	if c.NeedsPostgres() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be > 0")
		}
		if c.Redis.ProgressKey == "" || c.Redis.Stream == "" {
			errs = append(errs, "redis: progress_key and stream must not be empty")
		}
	}
	if strings.EqualFold(c.Mode, ModeStatus) && !c.Redis.Enabled && !c.UsesSink(KindPostgres) {
		errs = append(errs, "status: needs redis.enabled or a postgres sink")
	}
	if c.Parse.SkipCompleted && !c.Redis.Enabled {
		errs = append(errs, "parse: skip_completed needs redis.enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
