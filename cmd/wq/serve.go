package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alfredjeanlab/workq/internal/authz"
	"github.com/alfredjeanlab/workq/internal/config"
	"github.com/alfredjeanlab/workq/internal/engine"
	"github.com/alfredjeanlab/workq/internal/events"
	"github.com/alfredjeanlab/workq/internal/export"
	"github.com/alfredjeanlab/workq/internal/query"
	"github.com/alfredjeanlab/workq/internal/server"
	"github.com/alfredjeanlab/workq/internal/store/postgres"
	"github.com/alfredjeanlab/workq/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the workq server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// serve does not talk to a remote server.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := cfg.Logger()
		slog.SetDefault(logger)
		ctx := cmd.Context()

		shutdownTracing, err := telemetry.Setup(ctx, "workq", version, cfg.OTELEndpoint)
		if err != nil {
			return err
		}
		if cfg.OTELEndpoint != "" {
			logger.Info("tracing enabled", "endpoint", cfg.OTELEndpoint)
		}

		// Connect to Postgres; migrations run on open.
		store, err := postgres.New(ctx, cfg.DatabaseURL, postgres.Pool{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err != nil {
			return err
		}

		resolver, err := authz.NewResolver(store, cfg.AllowAnonymous, logger)
		if err != nil {
			store.Close()
			return err
		}
		if err := resolver.LoadRoles(ctx); err != nil {
			store.Close()
			return err
		}

		executor := engine.New(store.DB(), engine.Options{
			Limits: query.Limits{
				DefaultPageSize: cfg.DefaultPageSize,
				MaxPageSize:     cfg.MaxPageSize,
			},
			Location: cfg.Location,
			Timeout:  cfg.QueryTimeout,
			Logger:   logger,
		})

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (WORKQ_NATS_URL not set)")
		}

		srv := server.New(store, executor, resolver, publisher, server.Options{
			JWTSecret: cfg.JWTSecret,
			Logger:    logger,
		})
		grpcServer, health := srv.NewGRPCServer()

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			store.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		scheduler := startExport(ctx, cfg, store, logger)

		logger.Info("workq server started",
			"version", version,
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"time_zone", cfg.Location.String(),
		)

		<-ctx.Done()
		logger.Info("received signal, shutting down")

		health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		health.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("export scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("error flushing traces", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

// startExport starts the saved query export when an interval and at least
// one destination are configured. It returns nil otherwise.
func startExport(ctx context.Context, cfg *config.Config, src export.Source, logger *slog.Logger) *export.Scheduler {
	if cfg.ExportInterval <= 0 {
		return nil
	}
	var dests []export.Destination

	if cfg.ExportS3Bucket != "" {
		s3Dest, err := export.NewS3Destination(ctx, cfg.ExportS3Bucket, cfg.ExportS3Key, cfg.ExportS3Region, cfg.ExportS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 export destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("export S3 destination enabled", "bucket", cfg.ExportS3Bucket, "key", cfg.ExportS3Key)
		}
	}

	if cfg.ExportGitRepo != "" {
		dests = append(dests, export.NewGitDestination(cfg.ExportGitRepo, cfg.ExportGitFile, cfg.ExportGitBranch))
		logger.Info("export git destination enabled", "repo", cfg.ExportGitRepo, "file", cfg.ExportGitFile)
	}

	if len(dests) == 0 {
		return nil
	}
	scheduler := export.NewScheduler(src, dests, cfg.ExportInterval, logger)
	scheduler.Start()
	logger.Info("export scheduler started", "interval", cfg.ExportInterval)
	return scheduler
}
