package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omarluq/shopgate/internal/di"
	"github.com/omarluq/shopgate/internal/proxy"
	gwro "github.com/omarluq/shopgate/internal/ro"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the gateway: load and validate the configuration, build the service
registry, and serve until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath := resolveConfigPath()

	container, err := di.NewContainer(configPath)
	if err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("failed to create container")
		return err
	}

	if err := container.HealthCheck(); err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("failed to initialize gateway")
		if shutdownErr := container.Shutdown(); shutdownErr != nil {
			log.Warn().Err(shutdownErr).Msg("container shutdown after failed start")
		}
		return err
	}

	loggerSvc := di.MustInvoke[*di.LoggerService](container)
	log.Logger = *loggerSvc.Logger
	zerolog.DefaultContextLogger = loggerSvc.Logger

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	di.MustInvoke[*di.CheckerService](container).Start()
	di.MustInvoke[*di.ExtractorService](container).StartWatching(ctx)

	serverSvc := di.MustInvoke[*di.ServerService](container)
	regSvc := di.MustInvoke[*di.RegistryService](container)
	log.Info().
		Str("listen", serverSvc.Server.Addr()).
		Strs("services", regSvc.Registry.Names()).
		Msg("starting shopgate")

	return runWithGracefulShutdown(ctx, serverSvc.Server, container, cancel)
}

// runWithGracefulShutdown serves until a shutdown signal arrives, ctx is
// canceled, or the listener fails, then shuts the container down. cancel,
// when non-nil, stops background watchers first.
func runWithGracefulShutdown(
	ctx context.Context,
	server *proxy.Server,
	container *di.Container,
	cancel context.CancelFunc,
) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()

	signalCh := make(chan error, 1)
	go func() {
		sig, err := gwro.WaitForShutdown(waitCtx)
		if sig != nil {
			log.Info().Str("signal", sig.String()).Msg("shutting down...")
		}
		signalCh <- err
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("server error")
			runErr = fmt.Errorf("server error: %w", err)
		}
	case err := <-signalCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	}

	if cancel != nil {
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := container.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
		if runErr == nil {
			runErr = err
		}
	}

	log.Info().Msg("server stopped")
	return runErr
}
