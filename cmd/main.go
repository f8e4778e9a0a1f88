package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjod/go_cart/orders-service/internal/cache"
	"github.com/fjod/go_cart/orders-service/internal/config"
	ordershttp "github.com/fjod/go_cart/orders-service/internal/http"
	"github.com/fjod/go_cart/orders-service/internal/metrics"
	"github.com/fjod/go_cart/orders-service/internal/notifier"
	"github.com/fjod/go_cart/orders-service/internal/repository"
	"github.com/fjod/go_cart/orders-service/internal/service"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const serviceName = "orders-service"

func main() {
	app := &cli.App{
		Name:  serviceName,
		Usage: "order placement and order lifecycle service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run migrations and serve HTTP and gRPC health",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("orders-service failed")
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func migrate(_ *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	creds := cfg.Credentials()
	repo, err := repository.NewRepository(creds)
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}
	log.Info("Database migrations completed")
	return nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Info("orders-service starting...")

	creds := cfg.Credentials()
	repo, err := repository.NewRepository(creds)
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}
	log.Info("Database migrations completed")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var trackingCache cache.TrackingCache = cache.NoopCache{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(c.Context).Err(); err != nil {
			log.WithError(err).Warn("redis unavailable, tracking cache will miss until it recovers")
		}
		trackingCache = cache.NewRedisCache(rdb, cfg.TrackingCacheTTL)
	}

	var sink notifier.Notifier = notifier.LogNotifier{}
	if len(cfg.KafkaBrokers) > 0 {
		kn := notifier.NewKafkaNotifier(cfg.NotificationTopic, cfg.KafkaBrokers...)
		defer kn.Close()
		sink = kn
	}
	poller := notifier.NewOutboxPoller(repo, sink, m, notifier.PollerConfig{
		Interval:    cfg.OutboxPollInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
		SendTimeout: cfg.OutboxSendTimeout,
	})

	orders := service.NewAuditedOrders(
		service.NewOrderService(repo, poller, m),
		service.NewTrackingService(repo, poller, trackingCache, m),
		repo,
	)

	handler := ordershttp.NewOrdersHandler(orders, orders, cfg.RequestTimeout)
	router := ordershttp.NewRouter(handler, m, reg, func(r *http.Request) error {
		return repo.Ping(r.Context())
	}, cfg.RequestTimeout)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: otelhttp.NewHandler(router, serviceName),
	}

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on :%s", cfg.GRPCPort)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("HTTP server listening on :%s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	})

	g.Go(func() error {
		log.Infof("gRPC health listening on :%s", cfg.GRPCPort)
		healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
		if err := grpcServer.Serve(lis); err != nil {
			return errors.Wrap(err, "grpc server failed")
		}
		return nil
	})

	g.Go(func() error {
		log.Info("notification outbox poller started")
		poller.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down orders service...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http server didn't stop cleanly")
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Orders service stopped")
	return nil
}
