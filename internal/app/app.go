// Package app собирает сервис объявлений: HTTP API, фоновые воркеры,
// сервер метрик и gRPC health.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/marketplace/internal/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/config"
	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/marketplace"
	"github.com/vladislavdragonenkov/marketplace/internal/service/webhooks"
	"github.com/vladislavdragonenkov/marketplace/internal/tracing"
	"github.com/vladislavdragonenkov/marketplace/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

const (
	serviceName       = "marketplace"
	grpcStopTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
	// Без Kafka события не уходят, и через это время сервис отмечается degraded.
	outboxStaleAfter = 5 * time.Minute
)

// Run запускает сервис и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	logger := log.WithField("component", "app")

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		Environment:    cfg.Env,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
	}, logger.WithField("layer", "tracing"))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.WithError(err).Warn("failed to shutdown tracer")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	provider, parser, err := initPayments(cfg.Stripe, logger)
	if err != nil {
		return err
	}

	marketplaceMetrics := metrics.NewMarketplaceMetrics()
	svc, err := marketplace.NewService(deps.uow, cat, provider,
		marketplace.WithLogger(logger.WithField("layer", "marketplace")),
		marketplace.WithMetrics(marketplaceMetrics),
		marketplace.WithCheckoutURLs(cfg.Checkout.SuccessURL, cfg.Checkout.CancelURL),
	)
	if err != nil {
		return fmt.Errorf("init marketplace service: %w", err)
	}

	apiConfig := httpapi.Config{
		Listings: svc,
		Guard: idempotency.NewGuard(deps.idempotencyRepo,
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithGuardLogger(logger.WithField("layer", "idempotency")),
		),
		Logger: logger.WithField("layer", "http"),
	}
	if parser != nil {
		apiConfig.Webhooks = webhooks.NewDispatcher(parser, svc, logger.WithField("layer", "webhooks"), marketplaceMetrics)
	}
	api := httpapi.NewHandler(apiConfig)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}

	producer, _ := initKafkaProducer(cfg.Kafka, logger)
	defer closeKafkaProducer(producer, logger)
	if producer != nil {
		healthHandler.RegisterChecker("kafka", healthcheck.NewOptionalChecker("kafka", producer.Ping))
	}
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.outboxRepo, outboxStaleAfter))

	workersCtx, cancelWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		cancelWorkers()
		workers.Wait()
	}()

	if worker := newOutboxWorker(deps.outboxRepo, producer, cfg, logger); worker != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(workersCtx)
		}()
	}

	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.Idempotency.CleanupInterval),
		idempotency.WithBatchSize(cfg.Idempotency.CleanupBatch),
		idempotency.WithCleanupMetrics(metrics.NewCleanupMetrics(nil)),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanup.Run(workersCtx)
	}()

	metricsSrv := startMetricsServer(ctx, cfg.Metrics.Addr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	grpcServer, healthServer := newGRPCServer(logger)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	apiSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Router(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC health server listening on %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Infof("HTTP API listening on %s", cfg.HTTP.Addr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http api: %w", err)
		}
	}()

	stop := func() {
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		shutdownHTTPWithTimeout(apiSrv, cfg.HTTP.ShutdownTimeout, logger)
		stopGRPC(grpcServer, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping servers")
		stop()
		return ctx.Err()
	case err := <-errCh:
		stop()
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newGRPCServer создаёт gRPC-сервер со стандартным health-сервисом и метриками.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	return grpcServer, healthServer
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(grpcStopTimeout):
		logger.Warn("graceful stop timed out, forcing grpc server stop")
		server.Stop()
	}
}

// newOpsMux собирает служебные маршруты: метрики и пробы.
func newOpsMux(healthHandler *healthcheck.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /healthz", healthHandler)
	mux.HandleFunc("GET /livez", healthcheck.LivenessHandler)
	mux.HandleFunc("GET /readyz", healthHandler.ReadinessHandler)
	return mux
}

// startMetricsServer запускает HTTP-обработчики /metrics и health-проверок.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: newOpsMux(healthHandler), ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("metrics available at %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	shutdownHTTPWithTimeout(srv, 5*time.Second, logger)
}

func shutdownHTTPWithTimeout(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
