// Package serve provides the command running the authgate HTTP service.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/matthisholleville/authgate/internal/cfg"
	"github.com/matthisholleville/authgate/internal/server"
	"github.com/matthisholleville/authgate/internal/telemetry"
	"github.com/matthisholleville/authgate/pkg/logger"
	"github.com/matthisholleville/authgate/pkg/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authgate server",
		Long:  "Run the authgate server.",
		RunE:  run,
		Args:  cobra.NoArgs,
	}

	defaultConfig := cfg.DefaultConfig()
	flags := cmd.Flags()

	flags.String("http-addr", defaultConfig.HTTP.Addr, "The address to listen on for HTTP requests")

	flags.String("http-admin-api-key", defaultConfig.HTTP.AdminAPIKey, "The admin API key for the HTTP server. Admin routes are disabled when empty.")

	flags.Bool("http-cors-enabled", defaultConfig.HTTP.CORS.Enabled, "Whether to enable CORS")

	flags.StringSlice("http-cors-allowed-origins", defaultConfig.HTTP.CORS.AllowedOrigins, "The origins allowed by CORS")

	flags.String("log-format", defaultConfig.Log.Format, "The format to use for logging (text|json)")

	flags.String("log-level", defaultConfig.Log.Level, "The level to use for logging")

	flags.String("log-timestamp-format", defaultConfig.Log.TimestampFormat, "The format to use for logging timestamps (ISO8601|Unix)")

	flags.String("auth-hook-config-file", defaultConfig.AuthHook.ConfigFile, "The JSON file configuring the auth hook")

	flags.String("metadata-path", defaultConfig.Metadata.Path, "The metadata document declaring commands and their permissions")

	flags.String("metadata-engine", defaultConfig.Metadata.Engine, "The engine storing the resolved permission table")

	flags.Int("metadata-resolve-concurrency", defaultConfig.Metadata.ResolveConcurrency, "The number of command permission blocks resolved in parallel")

	flags.Duration("server-shutdown-timeout", defaultConfig.Server.ShutdownTimeout, "The time allowed to drain in-flight requests on shutdown")

	cmd.PreRun = bindServeFlagsFunc(flags)

	return cmd
}

func ReadConfig() (*cfg.Config, error) {
	config := cfg.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to load server config: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server config: %w", err)
	}

	return config, nil
}

func run(cmd *cobra.Command, _ []string) error {
	config, err := ReadConfig()
	if err != nil {
		return err
	}
	if err := config.Verify(); err != nil {
		return err
	}

	log := logger.MustNewLogger(config.Log.Format, config.Log.Level, config.Log.TimestampFormat)
	telemetry.UsePropagators()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	srv, err := server.NewServer(ctx, log, config)
	if err != nil {
		return err
	}

	preStopSleep := signals.DefaultPreStopSleep
	if config.Log.Level == "debug" {
		preStopSleep = 0
	}
	shutdown, err := signals.NewShutdown(config.Server.ShutdownTimeout, preStopSleep, log)
	if err != nil {
		return err
	}

	stopCh := signals.SetupSignalHandler()
	reloadCh := signals.NotifyReload()
	go func() {
		for sig := range reloadCh {
			log.InfoWithContext(ctx, "Reloading metadata", zap.Stringer("signal", sig))
			if _, err := srv.Loader.Load(ctx); err != nil {
				log.ErrorWithContext(ctx, "Metadata reload failed, keeping the current permission table", zap.Error(err))
			}
		}
	}()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.ListenAndServe()
	}()

	live, ready := srv.GetHealthStatus()
	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-stopCh:
		shutdown.Graceful(stopCh, srv.GetRouter(), live, ready)
	}
	return nil
}
