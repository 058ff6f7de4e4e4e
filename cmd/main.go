// skillbridge application-service
//
// Owns the lifecycle of job applications: submission, the status pipeline
// from Applied to a terminal outcome, history and per-status reporting.
// Exposes REST for the gateway and gRPC for internal callers, publishes
// application events to Redis (and RabbitMQ when configured) and runs a
// cron job that reminds employers about stale applications.
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

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/config"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/db"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/grpcserver"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/httpapi"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/logging"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/notify"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/ratelimit"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/scheduler"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/store/postgres"
	"github.com/sandeepamuthumal/SkillBridge-sub001/internal/tracker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application-service stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	pool, err := db.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("postgres connected")

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(ctx, pool, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// ── Redis ────────────────────────────────────────────────────────────────
	rdb, err := db.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer rdb.Close()
	logger.Info("redis connected")

	// ── Event publishers ─────────────────────────────────────────────────────
	publishers := notify.Fanout{notify.NewRedisPublisher(rdb, cfg.Events.Channel)}
	if cfg.AMQP.URL != "" {
		amqpPub, err := notify.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			return fmt.Errorf("amqp: %w", err)
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
		logger.Info("amqp connected", slog.String("queue", cfg.AMQP.Queue))
	}

	// ── Domain ───────────────────────────────────────────────────────────────
	repo := postgres.NewApplicationRepo(pool)
	txm := postgres.NewTxManager(pool)
	svc := tracker.NewService(logger, repo, txm, publishers)
	limiter := ratelimit.NewRedisLimiter(rdb, cfg.Events.StatusRateLimitPerMin, time.Minute, "status-update", logger)

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	httpapi.NewHandler(svc, limiter, pool.Ping, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      httpapi.Chain(httpapi.RequestID, httpapi.Logging(logger), httpapi.Recovery(logger))(mux),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// ── gRPC server ──────────────────────────────────────────────────────────
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcserver.UnaryLogging(logger)))
	grpcserver.Register(gs, grpcserver.NewServer(svc, limiter, logger))

	lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	// ── Reminder scheduler ───────────────────────────────────────────────────
	sched := scheduler.New(svc, cfg.Reminder, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("grpc listening", slog.String("addr", lis.Addr().String()))
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	// ── Graceful shutdown ────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}

		stopped := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			gs.Stop()
		}

		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			errs = append(errs, errors.New("scheduler did not stop in time"))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
