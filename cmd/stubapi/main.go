package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Molemo21/ConnectSA-k9-sub010/internal/stubserver"
)

const (
	flagListenAddr        = "listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagSessionSigningKey = "session-signing-key"
	flagSessionCookieName = "session-cookie-name"
	flagSessionTTL        = "session-ttl"
	flagProviderID        = "provider-id"
	envPrefix             = "STUBAPI"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stubapi: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := stubserver.Config{}
	cmd := &cobra.Command{
		Use:           "stubapi",
		Short:         "In-memory stand-in for the provider dashboard backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return stubserver.Run(ctx, cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, ":8084", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "http://localhost:3000", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagSessionSigningKey, "", "session JWT signing key (required)")
	cmd.Flags().String(flagSessionCookieName, "connectsa_session", "session cookie name")
	cmd.Flags().Duration(flagSessionTTL, 12*time.Hour, "issued session lifetime")
	cmd.Flags().String(flagProviderID, "provider-demo", "provider id baked into the fixtures")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *stubserver.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range []string{flagListenAddr, flagAllowedOrigins, flagSessionSigningKey, flagSessionCookieName, flagSessionTTL, flagProviderID} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	if !v.IsSet(flagSessionSigningKey) || v.GetString(flagSessionSigningKey) == "" {
		return fmt.Errorf("%s is required", flagSessionSigningKey)
	}

	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.AllowedOrigins = splitOrigins(v.GetString(flagAllowedOrigins))
	cfg.SessionSigningKey = v.GetString(flagSessionSigningKey)
	cfg.SessionCookieName = strings.TrimSpace(v.GetString(flagSessionCookieName))
	cfg.SessionTTL = v.GetDuration(flagSessionTTL)
	cfg.ProviderID = strings.TrimSpace(v.GetString(flagProviderID))

	return cfg.Validate()
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
