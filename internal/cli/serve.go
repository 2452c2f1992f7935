package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/internal/server"
	"github.com/ogulcanaydogan/pitchwatch/pkg/evaluator"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and HTTP API",
	Long: `Start the pitchwatch daemon: an evaluation pass runs immediately and then
every evaluator.interval, while the HTTP API serves rule management,
alert history, on-demand checks and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
	serveCmd.Flags().Duration("interval", 0, "Evaluation interval (default from config)")
	serveCmd.Flags().Bool("no-scheduler", false, "Serve the API without periodic passes")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
		cfg.Evaluator.Interval = interval
	}
	noScheduler, _ := cmd.Flags().GetBool("no-scheduler")

	trusted, err := server.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	c, err := initComponents(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	logger := c.logger

	apiServer := server.NewServer(c.store, c.evaluator, logger, server.Options{
		CheckRate:      cfg.Server.RateLimit,
		CheckBurst:     cfg.Server.RateBurst,
		Gatherer:       c.metrics,
		TrustedProxies: trusted,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedDone := make(chan struct{})
	if noScheduler {
		close(schedDone)
	} else {
		scheduler := evaluator.NewScheduler(c.evaluator, cfg.Evaluator.Interval, logger)
		go func() {
			defer close(schedDone)
			if err := scheduler.Run(ctx); err != nil {
				logger.Error("scheduler stopped", "error", err)
			}
		}()
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api started", "listen", cfg.Server.Listen, "channels", c.registry.List())
		fmt.Fprintf(os.Stderr, "pitchwatch listening on %s\n", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		cancel()
		<-schedDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		<-schedDone
	}

	logger.Info("pitchwatch stopped")
	return nil
}
