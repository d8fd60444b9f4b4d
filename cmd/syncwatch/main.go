// Command syncwatch runs the booking sync engine headless against a dashboard
// API and logs the live view as it changes. It is the reference host for the
// engine: session probe, seeded store, realtime channel, graceful teardown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Molemo21/ConnectSA-k9-sub010/internal/realtime"
	"github.com/Molemo21/ConnectSA-k9-sub010/internal/restapi"
	"github.com/Molemo21/ConnectSA-k9-sub010/internal/snapshotstore"
	"github.com/Molemo21/ConnectSA-k9-sub010/pkg/syncengine"
)

const (
	flagAPIBaseURL         = "api-base-url"
	flagRealtimeURL        = "realtime-url"
	flagSessionCookieName  = "session-cookie-name"
	flagSessionCookieValue = "session-cookie-value"
	flagSnapshotDB         = "snapshot-db"
	flagPollInterval       = "poll-interval"
	flagBookingsCooldown   = "bookings-cooldown"
	envPrefix              = "SYNCWATCH"
)

type runtimeConfig struct {
	APIBaseURL         string
	RealtimeURL        string
	SessionCookieName  string
	SessionCookieValue string
	SnapshotDB         string
	Engine             syncengine.Config
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "syncwatch: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "syncwatch",
		Short:         "Headless booking sync watcher",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatcher(ctx, cfg)
		},
	}

	cmd.Flags().String(flagAPIBaseURL, "", "dashboard API origin (required)")
	cmd.Flags().String(flagRealtimeURL, "", "realtime websocket endpoint (omit for poll-only)")
	cmd.Flags().String(flagSessionCookieName, "connectsa_session", "session cookie name")
	cmd.Flags().String(flagSessionCookieValue, "", "session cookie value (omit to rely on an ambient session)")
	cmd.Flags().String(flagSnapshotDB, "", "sqlite path for snapshot persistence (omit to disable)")
	cmd.Flags().Duration(flagPollInterval, 0, "poll backstop interval (0 for default)")
	cmd.Flags().Duration(flagBookingsCooldown, 0, "bookings fetch cooldown (0 for default)")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{flagAPIBaseURL, flagRealtimeURL, flagSessionCookieName, flagSessionCookieValue, flagSnapshotDB, flagPollInterval, flagBookingsCooldown} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	if !v.IsSet(flagAPIBaseURL) || v.GetString(flagAPIBaseURL) == "" {
		return fmt.Errorf("%s is required", flagAPIBaseURL)
	}

	cfg.APIBaseURL = strings.TrimSpace(v.GetString(flagAPIBaseURL))
	cfg.RealtimeURL = strings.TrimSpace(v.GetString(flagRealtimeURL))
	cfg.SessionCookieName = strings.TrimSpace(v.GetString(flagSessionCookieName))
	cfg.SessionCookieValue = v.GetString(flagSessionCookieValue)
	cfg.SnapshotDB = strings.TrimSpace(v.GetString(flagSnapshotDB))

	cfg.Engine = syncengine.DefaultConfig()
	if interval := v.GetDuration(flagPollInterval); interval > 0 {
		cfg.Engine.PollInterval = interval
	}
	if cooldown := v.GetDuration(flagBookingsCooldown); cooldown > 0 {
		cfg.Engine.BookingsCooldown = cooldown
	}
	return nil
}

func runWatcher(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	clientOptions := []restapi.ClientOption{}
	if cfg.SessionCookieValue != "" {
		clientOptions = append(clientOptions, restapi.WithSessionCookie(cfg.SessionCookieName, cfg.SessionCookieValue))
	}
	apiClient, err := restapi.New(cfg.APIBaseURL, clientOptions...)
	if err != nil {
		return fmt.Errorf("api client init: %w", err)
	}

	engineOptions := []syncengine.EngineOption{
		syncengine.WithOperationLogger(syncengine.NewZapOperationLogger(logger)),
		syncengine.WithAuthFailureHandler(func() {
			logger.Warn("session terminally unauthenticated, re-login required")
		}),
		syncengine.WithMutationListener(func(result syncengine.MutationResult) {
			if result.Err != nil {
				logger.Warn("mutation failed",
					zap.String("booking_id", result.BookingID),
					zap.String("action", string(result.Action)),
					zap.Error(result.Err))
				return
			}
			logger.Info("mutation confirmed",
				zap.String("booking_id", result.BookingID),
				zap.String("action", string(result.Action)))
		}),
	}

	if cfg.RealtimeURL != "" {
		subscriberOptions := []realtime.SubscriberOption{realtime.WithLogger(logger)}
		if cfg.SessionCookieValue != "" {
			subscriberOptions = append(subscriberOptions, realtime.WithSessionCookie(cfg.SessionCookieName, cfg.SessionCookieValue))
		}
		subscriber, err := realtime.New(cfg.RealtimeURL, subscriberOptions...)
		if err != nil {
			return fmt.Errorf("realtime init: %w", err)
		}
		engineOptions = append(engineOptions, syncengine.WithPushTransport(subscriber))
	}

	if cfg.SnapshotDB != "" {
		seed, err := snapshotstore.Open(cfg.SnapshotDB)
		if err != nil {
			return fmt.Errorf("snapshot store init: %w", err)
		}
		engineOptions = append(engineOptions, syncengine.WithSeedSource(seed))
	}

	engine, err := syncengine.New(cfg.Engine, apiClient, engineOptions...)
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}
	defer engine.Dispose()

	logger.Info("watching bookings",
		zap.String("api", cfg.APIBaseURL),
		zap.String("provider_id", engine.ProviderID()))
	logView(logger, engine)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested")
			return nil
		case <-engine.Changes():
			logView(logger, engine)
		}
	}
}

func logView(logger *zap.Logger, engine *syncengine.Engine) {
	view := engine.View(syncengine.Filter{})
	logger.Info("bookings view",
		zap.Int("total", len(view.Bookings)),
		zap.Int("pending", view.Stats.Pending),
		zap.Int("confirmed", view.Stats.Confirmed),
		zap.Int("in_progress", view.Stats.InProgress),
		zap.Int("completed", view.Stats.Completed))
	for _, record := range view.Bookings {
		logger.Info("booking",
			zap.String("id", record.ID),
			zap.String("label", syncengine.StatusLabel(record)),
			zap.String("payment_method", string(record.PaymentMethod)),
			zap.Time("scheduled_at", record.ScheduledAt),
			zap.Time("updated_at", record.UpdatedAt))
	}
}
