package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/internal/server"
	"github.com/ogulcanaydogan/pitchwatch/pkg/alerts"
	"github.com/spf13/viper"
)

// Config holds all pitchwatch configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Lock      LockConfig      `mapstructure:"lock"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig selects and locates the database.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig defines the HTTP API listener.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`

	// TrustedProxies are IPs or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// EvaluatorConfig tunes scheduled passes.
type EvaluatorConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	PassTimeout time.Duration `mapstructure:"pass_timeout"`
}

// ChannelsConfig holds delivery destinations. An empty URL leaves the
// channel unconfigured.
type ChannelsConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
	Slack   SlackConfig   `mapstructure:"slack"`
	Discord DiscordConfig `mapstructure:"discord"`
	Email   EmailConfig   `mapstructure:"email"`
}

type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

type SlackConfig struct {
	URL     string `mapstructure:"url"`
	Channel string `mapstructure:"channel"`
}

type DiscordConfig struct {
	URL string `mapstructure:"url"`
}

// EmailConfig defines SMTP delivery settings.
type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// NotifyConfig applies to every outbound notification.
type NotifyConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// LockConfig selects the pass lock backend. Without a Redis address the
// lock is process-local.
type LockConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv maps channel URL keys to the environment variables older
// deployments set directly.
var legacyEnv = map[string]string{
	"channels.webhook.url": "WEBHOOK_WEBHOOK_URL",
	"channels.slack.url":   "SLACK_WEBHOOK_URL",
	"channels.discord.url": "DISCORD_WEBHOOK_URL",
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".pitchwatch"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", filepath.Join(home, ".pitchwatch", "pitchwatch.db"))
	v.SetDefault("storage.dsn", "")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "2m30s")
	v.SetDefault("server.rate_limit", 1.0)
	v.SetDefault("server.rate_burst", 5)
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("evaluator.interval", "5m")
	v.SetDefault("evaluator.concurrency", 1)
	v.SetDefault("evaluator.pass_timeout", "2m")
	v.SetDefault("channels.webhook.url", "")
	v.SetDefault("channels.webhook.secret", "")
	v.SetDefault("channels.slack.url", "")
	v.SetDefault("channels.slack.channel", "")
	v.SetDefault("channels.discord.url", "")
	v.SetDefault("channels.email.host", "")
	v.SetDefault("channels.email.port", 587)
	v.SetDefault("channels.email.username", "")
	v.SetDefault("channels.email.password", "")
	v.SetDefault("channels.email.from", "")
	v.SetDefault("channels.email.to", []string{})
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.ttl", "0s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("PW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "PW_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration before anything is started.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver))
	}

	urls := map[string]string{
		"channels.webhook.url": c.Channels.Webhook.URL,
		"channels.slack.url":   c.Channels.Slack.URL,
		"channels.discord.url": c.Channels.Discord.URL,
	}
	for _, key := range []string{"channels.webhook.url", "channels.slack.url", "channels.discord.url"} {
		if raw := urls[key]; raw != "" {
			if err := alerts.ValidateURL(raw); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	if e := c.Channels.Email; e.Host != "" && (e.From == "" || len(e.To) == 0) {
		errs = append(errs, errors.New("channels.email requires from and to when host is set"))
	}

	if _, err := server.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("server.trusted_proxies: %w", err))
	}

	if c.Evaluator.Interval <= 0 {
		errs = append(errs, errors.New("evaluator.interval must be positive"))
	}
	if c.Evaluator.Concurrency < 1 {
		errs = append(errs, errors.New("evaluator.concurrency must be at least 1"))
	}
	if c.Notify.Timeout <= 0 {
		errs = append(errs, errors.New("notify.timeout must be positive"))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unsupported logging.format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// EmailSettings converts the SMTP section for the email notifier.
func (c *Config) EmailSettings() alerts.EmailConfig {
	e := c.Channels.Email
	return alerts.EmailConfig{
		Host:     e.Host,
		Port:     e.Port,
		Username: e.Username,
		Password: e.Password,
		From:     e.From,
		To:       e.To,
	}
}
