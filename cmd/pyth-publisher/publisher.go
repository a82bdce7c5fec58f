package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/StrathCole/pyth-publisher/pkg/aggregator"
	"github.com/StrathCole/pyth-publisher/pkg/api"
	"github.com/StrathCole/pyth-publisher/pkg/config"
	"github.com/StrathCole/pyth-publisher/pkg/logging"
	"github.com/StrathCole/pyth-publisher/pkg/metrics"
	"github.com/StrathCole/pyth-publisher/pkg/publisher"
	"github.com/StrathCole/pyth-publisher/pkg/rpc"
	"github.com/StrathCole/pyth-publisher/pkg/sources"
	"github.com/StrathCole/pyth-publisher/pkg/version"
)

const shutdownTimeout = 10 * time.Second

type stopper interface {
	Stop()
}

type httpStopper interface {
	Stop(ctx context.Context) error
}

var publisherCmd = &cobra.Command{
	Use:   "publisher",
	Short: "Run the price publisher",
	RunE:  runPublisher,
}

func runPublisher(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnv(envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting pyth-publisher", "version", version.Version, "agent", cfg.Agent.URL, "symbols", len(cfg.Symbols))

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	srcs, err := createSources(cfg, logger)
	if err != nil {
		return err
	}

	readers := make(map[string]aggregator.PriceReader, len(srcs))
	for _, src := range srcs {
		readers[src.Name()] = src
	}
	mixer, err := aggregator.NewMixer(aggregator.MixerConfig{
		Sources:            readers,
		Weights:            cfg.Symbols,
		ConfidenceRatioBps: cfg.Publisher.ConfidenceRatioBps,
		Logger:             logger.With("component", "mixer"),
	})
	if err != nil {
		return fmt.Errorf("failed to create mixer: %w", err)
	}

	session := rpc.NewClient(rpc.Config{
		URL:            cfg.Agent.URL,
		ReconnectWait:  cfg.Agent.ReconnectWait.ToDuration(),
		RequestTimeout: cfg.Agent.RequestTimeout.ToDuration(),
		Logger:         logger.ZerologLogger(),
	})

	pub, err := publisher.New(session, mixer, srcs, publisher.Config{
		Status:           cfg.Publisher.Status,
		ResubscribeDelay: cfg.Publisher.ResubscribeDelay.ToDuration(),
		RetryAttempts:    cfg.Publisher.RetryAttempts,
		RetryDelay:       cfg.Publisher.RetryDelay.ToDuration(),
		Logger:           logger.ZerologLogger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	initCtx, initCancel := context.WithCancel(ctx)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal during startup", "signal", sig.String())
			initCancel()
		case <-initCtx.Done():
		}
	}()
	err = pub.Init(initCtx)
	initCancel()
	if err != nil {
		// releases chain clients opened by sources that did initialize
		pub.Stop()
		return fmt.Errorf("failed to initialize sources: %w", err)
	}

	if err := pub.Start(ctx); err != nil {
		pub.Stop()
		return fmt.Errorf("failed to start publisher: %w", err)
	}
	logger.Info("Publisher started", "sources", len(srcs))

	errChan := make(chan error, 1)
	var apiServer httpStopper
	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API.Addr, pub, mixer, srcs, logger)
		apiServer = srv
		go func() {
			errChan <- srv.Start()
		}()
	}

	// Wait for shutdown signal or error
	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		if err != nil {
			logger.Error("Component failed", "error", err)
			runErr = err
		}
	}

	shutdown(logger, apiServer, pub, cancel)
	return runErr
}

// shutdown stops the API server, then the publisher, and cancels the run
// context last. The publisher closes the agent session after its sources.
func shutdown(logger *logging.Logger, apiServer httpStopper, pub stopper, cancel context.CancelFunc) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	logger.Info("Shutting down gracefully...")
	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("HTTP server shutdown failed", "error", err)
		}
	}
	pub.Stop()
	cancel()
	logger.Info("Shutdown complete")
}

// createSources builds every enabled source from its registered factory.
func createSources(cfg *config.Config, logger *logging.Logger) ([]sources.Source, error) {
	enabled := cfg.EnabledSources()
	srcs := make([]sources.Source, 0, len(enabled))
	for _, sourceCfg := range enabled {
		logger.Info("Creating source", "type", sourceCfg.Type, "name", sourceCfg.Name)

		source, err := sources.Create(sourceCfg.Type, sourceCfg.Name, sourceCfg.Config, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create source %s.%s: %w", sourceCfg.Type, sourceCfg.Name, err)
		}
		srcs = append(srcs, source)
	}
	return srcs, nil
}
