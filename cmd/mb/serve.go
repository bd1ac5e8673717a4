package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/msgbus/internal/archive"
	"github.com/alfredjeanlab/msgbus/internal/bus"
	"github.com/alfredjeanlab/msgbus/internal/config"
	"github.com/alfredjeanlab/msgbus/internal/dispatch"
	"github.com/alfredjeanlab/msgbus/internal/endpoints"
	"github.com/alfredjeanlab/msgbus/internal/events"
	"github.com/alfredjeanlab/msgbus/internal/registry"
	"github.com/alfredjeanlab/msgbus/internal/server"
	"github.com/alfredjeanlab/msgbus/internal/store/sqlstore"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthCheckInterval = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Start the msgbus server",
		GroupID: "system",
		Args:    cobra.NoArgs,
		// Override PersistentPreRunE so we don't create an HTTP client.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, logger)
		},
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// runServer wires every component, serves until ctx is cancelled or a
// listener fails, then shuts down in reverse order of startup.
func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := sqlstore.Open(cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}
	}()
	logger.Info("store opened", "driver", st.Driver())

	var mirror events.Publisher = &events.NoopPublisher{}
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		mirror = pub
		logger.Info("event mirroring enabled", "nats_url", cfg.NATSURL, "prefix", cfg.SubjectPrefix)
	} else {
		logger.Info("event mirroring disabled (MSGBUS_NATS_URL not set)")
	}
	defer func() {
		if err := mirror.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
	}()

	tracker := endpoints.New(logger)
	tracker.StartReaper(&endpoints.ReaperConfig{
		IdleThreshold: cfg.EndpointIdle,
		OnEvict: func(endpoint string) {
			logger.Debug("endpoint evicted from health tracker", "endpoint", endpoint)
		},
	})
	defer tracker.Stop()

	dispatcher := dispatch.New(st, dispatch.Config{
		Timeout:      cfg.DeliveryTimeout,
		MaxInFlight:  cfg.MaxInFlight,
		DrainTimeout: cfg.DrainTimeout,
		Recorder:     tracker,
		Logger:       logger,
	})

	b := bus.New(st, registry.New(), dispatcher, bus.Config{
		Version:       version,
		Mirror:        mirror,
		SubjectPrefix: cfg.SubjectPrefix,
		Endpoints:     tracker,
		Logger:        logger,
	})
	if err := b.Start(ctx); err != nil {
		return err
	}

	busServer := server.NewBusServer(b, logger)

	// Request contexts derive from baseCtx so open SSE streams end when
	// shutdown begins instead of holding Shutdown until its timeout.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           busServer.NewHTTPHandler(cfg.AuthToken),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpLis.Addr().String())
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var grpcStop func()
	if cfg.GRPCAddr != "" {
		grpcServer, healthServer := server.NewGRPCServer(cfg.AuthToken)
		grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			_ = httpServer.Close()
			_ = g.Wait()
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcStop = grpcServer.GracefulStop

		g.Go(func() error {
			logger.Info("gRPC server listening", "addr", grpcLis.Addr().String())
			if err := grpcServer.Serve(grpcLis); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			busServer.WatchHealth(gctx, healthServer, healthCheckInterval)
			return nil
		})
	}

	var scheduler *archive.Scheduler
	if cfg.ArchiveEnabled() {
		if dests := archiveDestinations(ctx, cfg, logger); len(dests) > 0 {
			scheduler = archive.NewScheduler(st, dests, cfg.ArchiveInterval, logger)
			scheduler.Start()
			logger.Info("archive scheduler started", "interval", cfg.ArchiveInterval)
		}
	}

	logger.Info("msgbus server started",
		"version", version,
		"http_addr", cfg.HTTPAddr,
		"grpc_addr", cfg.GRPCAddr,
		"subscriptions", b.Health(ctx).ActiveSubscriptions,
	)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		cancelBase()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if grpcStop != nil {
			grpcStop()
			logger.Info("gRPC server stopped")
		}

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("archive scheduler stopped")
		}

		if err := dispatcher.Stop(shutdownCtx); err != nil {
			logger.Error("dispatcher stop error", "err", err)
		}
		logger.Info("dispatcher stopped")
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func archiveDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []archive.Destination {
	var dests []archive.Destination

	if cfg.ArchiveS3Bucket != "" {
		s3Dest, err := archive.NewS3Destination(ctx,
			cfg.ArchiveS3Bucket,
			cfg.ArchiveS3Key,
			cfg.ArchiveS3Region,
			cfg.ArchiveS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 archive destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("archive S3 destination enabled", "bucket", cfg.ArchiveS3Bucket, "key", cfg.ArchiveS3Key)
		}
	}

	if cfg.ArchiveFile != "" {
		fileDest, err := archive.NewFileDestination(cfg.ArchiveFile)
		if err != nil {
			logger.Error("failed to create file archive destination", "err", err)
		} else {
			dests = append(dests, fileDest)
			logger.Info("archive file destination enabled", "path", cfg.ArchiveFile)
		}
	}

	return dests
}
