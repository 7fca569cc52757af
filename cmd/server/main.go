package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arencloud/bucketgw/internal/api"
	"github.com/arencloud/bucketgw/internal/config"
	"github.com/arencloud/bucketgw/internal/db"
	"github.com/arencloud/bucketgw/internal/gateway"
	"github.com/arencloud/bucketgw/internal/logging"
	"github.com/arencloud/bucketgw/internal/metrics"
	"github.com/arencloud/bucketgw/internal/middleware"
	"github.com/arencloud/bucketgw/internal/probe"
	"github.com/arencloud/bucketgw/internal/s3"
	"github.com/arencloud/bucketgw/internal/tasks"
	"github.com/arencloud/bucketgw/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 20 * time.Second

func main() {
	v := config.New()
	root := &cobra.Command{
		Use:           version.Name,
		Short:         "Multi-tenant REST gateway over an S3-compatible object store",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	flags := root.Flags()
	flags.String("port", "8080", "HTTP listen port")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("store-endpoint", "localhost:9000", "object store endpoint")
	flags.String("store-driver", "minio", "object store client (minio or aws)")
	bind(v, root, map[string]string{
		"HTTP_PORT":      "port",
		"LOG_LEVEL":      "log-level",
		"STORE_ENDPOINT": "store-endpoint",
		"STORE_DRIVER":   "store-driver",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// bind lets an explicitly set flag override the matching environment key.
func bind(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Env, cfg.LogLevel, cfg.LogJSON)
	defer func() { _ = logger.Zap().Sync() }()
	m := metrics.New()

	backend, err := s3.Open(s3.Options{
		Driver:    cfg.StoreDriver,
		Endpoint:  cfg.StoreEndpoint,
		AccessKey: cfg.StoreAccessKey,
		SecretKey: cfg.StoreSecretKey,
		Region:    cfg.StoreRegion,
		UseSSL:    cfg.StoreUseSSL,
	})
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}
	store := s3.Instrument(backend, cfg.StoreTimeout, m.ObserveStore)
	if _, err := store.ListBuckets(ctx); err != nil {
		return fmt.Errorf("object store %s unreachable: %w", cfg.StoreEndpoint, err)
	}

	opts := gateway.Options{
		TagKey:        cfg.OwnershipTagKey,
		UploadExpiry:  cfg.UploadExpiry,
		UploadTimeout: cfg.UploadTimeout,
		Logger:        logger,
	}
	if cfg.MirrorEnabled() {
		gdb, err := db.Open(cfg, logger)
		if err != nil {
			return fmt.Errorf("open bucket table: %w", err)
		}
		defer func() { _ = db.Close(gdb) }()
		opts.Mirror = db.NewBucketMirror(gdb)
	}

	runner := tasks.NewRunner(cfg.TaskWorkers, logger, tasks.WithObserver(m))
	deps := api.Deps{
		Service: gateway.New(store, opts),
		Runner:  runner,
		Metrics: m,
		Logger:  logger,
	}
	if cfg.RateLimitRPS > 0 {
		deps.Limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.RedisAddr != "" {
		client, err := probe.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect message broker: %w", err)
		}
		defer client.Close()
		deps.Probe = probe.NewProducer(client, cfg.ProbeQueue, logger)
		consumer := probe.NewConsumer(client, cfg.ProbeQueue, logger)
		consumer.OnMessage = func(string) { m.ProbeMessages.WithLabelValues("received").Inc() }
		g.Go(func() error { return consumer.Run(gctx) })
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HttpPort,
		Handler:           middleware.Recoverer(api.Router(cfg, deps), logger),
		ReadHeaderTimeout: 15 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g.Go(func() error {
		logger.Info("server starting", "addr", srv.Addr, "store", cfg.StoreDriver, "endpoint", cfg.StoreEndpoint, "version", version.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		herr := srv.Shutdown(sctx)
		return errors.Join(herr, runner.Close(sctx))
	})

	return g.Wait()
}
