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

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/api"
	"github.com/MrEthical07/authgate/credstore"
	"github.com/MrEthical07/authgate/credstore/postgres"
	"github.com/MrEthical07/authgate/grpcgate"
	"github.com/MrEthical07/authgate/internal/config"
	"github.com/MrEthical07/authgate/internal/logging"
	"github.com/MrEthical07/authgate/metrics/export/prometheus"
	"github.com/MrEthical07/authgate/middleware"
	"github.com/MrEthical07/authgate/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("authgate starting",
		slog.String("version", Version),
		slog.String("listen", cfg.ListenAddr),
		slog.Bool("postgres", cfg.DatabaseURL != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := openDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	engine, err := buildEngine(cfg, deps, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := engine.Close(closeCtx); err != nil {
			logger.Warn("engine close", slog.Any("err", err))
		}
	}()

	return serve(ctx, cfg, engine, logger)
}

// deps are the external connections the engine runs on.
type deps struct {
	redis   redis.UniversalClient
	users   authgate.CredentialStore
	hasher  password.Hasher
	closers []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func openDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{}

	addr := cfg.RedisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("starting miniredis: %w", err)
		}
		d.closers = append(d.closers, mr.Close)
		addr = mr.Addr()
		logger.Warn("REDIS_ADDR not set, using in-process miniredis", slog.String("addr", addr))
	}
	d.redis = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	d.closers = append(d.closers, func() { _ = d.redis.Close() })
	if err := d.redis.Ping(ctx).Err(); err != nil {
		d.close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	engineCfg := cfg.Engine()
	hasher, err := password.NewArgon2(password.Config{
		Memory:           engineCfg.Password.Memory,
		Time:             engineCfg.Password.Time,
		Parallelism:      engineCfg.Password.Parallelism,
		SaltLength:       engineCfg.Password.SaltLength,
		KeyLength:        engineCfg.Password.KeyLength,
		MinPasswordBytes: engineCfg.Credentials.MinPasswordLength,
	})
	if err != nil {
		d.close()
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	d.hasher = hasher

	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, users are kept in memory")
		d.users = credstore.NewMemory(hasher)
		return d, nil
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		d.close()
		return nil, err
	}
	d.closers = append(d.closers, func() { _ = db.Close() })
	if err := postgres.Migrate(ctx, db); err != nil {
		d.close()
		return nil, err
	}
	d.users = postgres.New(db, hasher)
	return d, nil
}

func buildEngine(cfg *config.Config, d *deps, logger *slog.Logger) (*authgate.Engine, error) {
	b := authgate.New().
		WithConfig(cfg.Engine()).
		WithRedis(d.redis).
		WithCredentialStore(d.users).
		WithPasswordHasher(d.hasher).
		WithLogger(logger)
	if cfg.AuditEnabled {
		b = b.WithAuditSink(authgate.NewSlogSink(logger.With(slog.String("stream", "audit"))))
	}

	engine, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}
	return engine, nil
}

func serve(ctx context.Context, cfg *config.Config, engine *authgate.Engine, logger *slog.Logger) error {
	clientIP := middleware.ClientIP
	if cfg.TrustProxy {
		clientIP = middleware.ForwardedIP
	}

	var metrics http.Handler
	if cfg.MetricsEnabled {
		metrics = prometheus.New(engine).Handler()
	}

	server := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: api.NewMux(api.MuxConfig{
			Engine:   engine,
			Logger:   logger,
			ClientIP: clientIP,
			Metrics:  metrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var (
		grpcServer *grpc.Server
		grpcLis    net.Listener
	)
	if cfg.GRPCListenAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcServer, grpcLis = newGRPCServer(engine), lis
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http listening", slog.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			logger.Info("grpc listening", slog.String("addr", cfg.GRPCListenAddr))
			if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newGRPCServer gates every unary call; health checks are rate limited only.
func newGRPCServer(engine *authgate.Engine) *grpc.Server {
	s := grpc.NewServer(grpc.UnaryInterceptor(grpcgate.UnaryServerInterceptor(
		engine,
		authgate.PolicyIP,
		grpcgate.WithKeyFunc(grpcgate.KeyByAPIKey),
		grpcgate.WithPublicMethods(healthpb.Health_Check_FullMethodName),
	)))
	healthpb.RegisterHealthServer(s, health.NewServer())
	return s
}
