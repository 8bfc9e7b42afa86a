package config

import (
	"net/url"
	"slices"
	"strings"
)

const redacted = "***"

// RedactedConfig copies cfg with every credential masked, for logging the
// active configuration. A postgres DSN keeps its host and database; only the
// password inside it is masked.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	out.Sink.Kinds = slices.Clone(cfg.Sink.Kinds)
	out.Notify.Events = slices.Clone(cfg.Notify.Events)

	for _, s := range []*string{
		&out.S3.AccessKey,
		&out.S3.SecretKey,
		&out.Postgres.Password,
		&out.Redis.Password,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	} {
		if *s != "" {
			*s = redacted
		}
	}
	out.Postgres.DSN = redactDSN(cfg.Postgres.DSN)
	return out
}

// redactDSN masks the password of a URL-form DSN. Anything it cannot parse
// as a URL is masked whole. The mask is spliced in after encoding so it
// stays readable instead of being percent-escaped.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return redacted
	}
	if _, ok := u.User.Password(); !ok {
		return u.String()
	}
	user := url.User(u.User.Username()).String()
	u.User = nil
	return strings.Replace(u.String(), "://", "://"+user+":"+redacted+"@", 1)
}
