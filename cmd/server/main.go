// Command gatekeeper-server starts the gatekeeper gRPC server.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/gatekeeper/internal/config"
	"github.com/and161185/gatekeeper/internal/limiter"
	"github.com/and161185/gatekeeper/internal/migrate"
	"github.com/and161185/gatekeeper/internal/notify"
	"github.com/and161185/gatekeeper/internal/observe"
	"github.com/and161185/gatekeeper/internal/repository"
	"github.com/and161185/gatekeeper/internal/repository/memory"
	"github.com/and161185/gatekeeper/internal/repository/postgres"
	grpcserver "github.com/and161185/gatekeeper/internal/server/grpc"
	"github.com/and161185/gatekeeper/internal/service"
	"github.com/and161185/gatekeeper/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

// main loads configuration, prepares storage and serves gRPC and /metrics
// until SIGINT/SIGTERM.
func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		// logger is not configured yet
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.GRPCAddr),
		zap.String("store", cfg.Store),
	)

	tokens, err := token.New(cfg.Token())
	if err != nil {
		logger.Fatal("invalid signing configuration", zap.Error(err))
	}
	policy := cfg.Lockout()
	if err := policy.Validate(); err != nil {
		logger.Fatal("invalid lockout policy", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		accounts repository.AccountRepository
		lim      limiter.Limiter
		sink     notify.Sink
	)
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; state is lost on exit")
		store := memory.NewStore()
		accounts = store
		lim = memory.NewLimiter(store, policy)
		sink = store
	default:
		if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("pgxpool.New", zap.Error(err))
		}
		defer pool.Close()

		db := &postgres.DB{Pool: pool}
		accounts = postgres.NewAccountRepo(db)
		lim = limiter.NewPG(pool, policy)
		sink = postgres.NewNotificationRepo(db)
	}

	// Metrics
	prov, err := observe.NewPrometheusProvider()
	if err != nil {
		logger.Fatal("metrics provider", zap.Error(err))
	}
	metrics, err := observe.New(prov.Meter())
	if err != nil {
		logger.Fatal("metrics instruments", zap.Error(err))
	}

	// Notifications
	notes := notify.NewDispatcher(notify.Fanout{sink, notify.NewLogSink(logger)}, logger, cfg.NotifyBuffer)

	// Services
	opts := []service.Option{service.WithLogger(logger), service.WithMetrics(metrics)}
	authSvc := service.NewAuthService(accounts, tokens, lim, opts...)
	modSvc := service.NewModerationService(accounts, notes, opts...)

	// gRPC server with interceptors
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(authSvc),
		),
	}
	if cfg.TLS() {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}
	s := grpc.NewServer(serverOpts...)
	grpcserver.RegisterGatekeeperServer(s, grpcserver.New(authSvc, modSvc, logger))

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if cfg.Dev {
		reflection.Register(s)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", cfg.TLS()))
		return s.Serve(lis)
	})

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prov.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()

		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			s.Stop()
		}

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(sctx)
		}
		if err := notes.Close(sctx); err != nil {
			logger.Warn("notifications not drained", zap.Error(err))
		}
		return prov.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}
