package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/internal/config"
	"github.com/ogulcanaydogan/pitchwatch/pkg/alerts"
	"github.com/ogulcanaydogan/pitchwatch/pkg/evaluator"
	"github.com/ogulcanaydogan/pitchwatch/pkg/lock"
	"github.com/ogulcanaydogan/pitchwatch/pkg/stats"
	"github.com/ogulcanaydogan/pitchwatch/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pitchwatch",
	Short: "pitchwatch - alert rules and notifications for the camping service",
	Long: `pitchwatch evaluates operator-defined alert rules against service analytics
(error rate, response times, cost, user growth) and notifies webhook, Slack,
Discord and email channels when a threshold is breached. Every notification
attempt is kept in an alert history.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.pitchwatch/config.yaml)")
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initStorage opens the configured database and returns the matching
// analytics dialect.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, stats.Dialect, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		store, err := storage.NewPostgres(cfg.Storage.DSN, logger)
		if err != nil {
			return nil, "", err
		}
		return store, stats.DialectPostgres, nil
	default:
		store, err := storage.NewSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, "", err
		}
		return store, stats.DialectSQLite, nil
	}
}

// initRegistry registers a notifier for every channel with a destination.
func initRegistry(cfg *config.Config) (*alerts.Registry, error) {
	registry := alerts.NewRegistry()
	timeout := cfg.Notify.Timeout
	ch := cfg.Channels

	var notifiers []alerts.Notifier
	if ch.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(ch.Webhook.URL, ch.Webhook.Secret, timeout))
	}
	if ch.Slack.URL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(ch.Slack.URL, ch.Slack.Channel, timeout))
	}
	if ch.Discord.URL != "" {
		notifiers = append(notifiers, alerts.NewDiscordNotifier(ch.Discord.URL, timeout))
	}
	if email := cfg.EmailSettings(); email.Configured() {
		notifiers = append(notifiers, alerts.NewEmailNotifier(email))
	}

	for _, n := range notifiers {
		if err := registry.Register(n); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// initLocker returns the pass lock and a function releasing its resources.
func initLocker(cfg *config.Config, logger *slog.Logger) (lock.Locker, func() error, error) {
	if cfg.Lock.RedisAddr == "" {
		return lock.NewLocal(), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Lock.RedisAddr,
		Password: cfg.Lock.RedisPassword,
		DB:       cfg.Lock.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Lock.RedisAddr, err)
	}
	logger.Info("using redis pass lock", "addr", cfg.Lock.RedisAddr)
	return lock.NewRedis(client, logger), client.Close, nil
}

// components is everything a pass or the daemon needs.
type components struct {
	logger    *slog.Logger
	store     storage.Storage
	provider  *stats.SQLProvider
	registry  *alerts.Registry
	metrics   *prometheus.Registry
	evaluator *evaluator.Evaluator
	closers   []func() error
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Warn("close component", "error", err)
		}
	}
}

// initComponents wires storage, metrics provider, channels, lock and
// evaluator from config.
func initComponents(cfg *config.Config) (*components, error) {
	logger := newLogger(cfg)
	c := &components{logger: logger}

	store, dialect, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.store = store
	c.closers = append(c.closers, store.Close)
	c.provider = stats.NewSQLProvider(store.DB(), dialect)

	c.registry, err = initRegistry(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	locker, closeLocker, err := initLocker(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.closers = append(c.closers, closeLocker)

	c.metrics = prometheus.NewRegistry()
	c.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := evaluator.NewMetrics(c.metrics)

	resolver := evaluator.NewResolver(c.provider, logger)
	dispatcher := evaluator.NewDispatcher(store, c.registry, metrics, logger)
	c.evaluator = evaluator.New(store, resolver, dispatcher, locker, metrics, logger, evaluator.Options{
		Concurrency: cfg.Evaluator.Concurrency,
		PassTimeout: cfg.Evaluator.PassTimeout,
		LockTTL:     cfg.Lock.TTL,
	})

	return c, nil
}

// openStore opens only the database, for commands that manage rules or
// read history.
func openStore() (storage.Storage, stats.Dialect, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	return initStorage(cfg, newLogger(cfg))
}

// requireArgs wraps cobra.ExactArgs with a friendlier message.
func requireArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("usage: %s %s", cmd.CommandPath(), usage)
		}
		return nil
	}
}
