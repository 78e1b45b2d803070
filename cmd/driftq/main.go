package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/usvsthem-notdev/driftq/internal/config"
	"github.com/usvsthem-notdev/driftq/internal/deadletter"
	"github.com/usvsthem-notdev/driftq/internal/handlers"
	"github.com/usvsthem-notdev/driftq/internal/queue"
	"github.com/usvsthem-notdev/driftq/internal/rest"
	"github.com/usvsthem-notdev/driftq/internal/shutdown"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "driftq",
		Short: "In-process job queue with bounded retries and a persistent dead letter queue",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue with its ops API",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.LoadOrDefault(cfgPath)
	setupLogging(cfg.Logging)

	var storeOpts []deadletter.Option
	if cfg.Alerts.WebhookURL != "" {
		storeOpts = append(storeOpts, deadletter.WithAlerter(deadletter.NewAlerter(cfg.Alerts.WebhookURL)))
	}

	store := deadletter.New(cfg.Storage.DeadLetterPath, storeOpts...)
	if err := store.Load(); err != nil {
		return fmt.Errorf("failed to load dead letter store: %w", err)
	}

	q := queue.New(store,
		queue.WithDefaultMaxRetries(cfg.Queue.MaxRetries),
		queue.WithDefaultRetryDelay(cfg.Queue.RetryDelayBase),
	)

	if err := q.Register("webhook", handlers.NewWebhook(nil)); err != nil {
		return fmt.Errorf("failed to register webhook handler: %w", err)
	}

	srv := rest.NewServer(q)
	httpSrv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("ops API listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ops API failed")
		}
	}()

	coordinator := shutdown.New(q,
		shutdown.WithDrainTimeout(cfg.Shutdown.DrainTimeout),
		shutdown.WithPollInterval(cfg.Shutdown.PollInterval),
	)
	coordinator.Watch()
	return nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
