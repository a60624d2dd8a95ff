package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"edms/internal/identity"
	"edms/internal/platform/config"
	"edms/internal/platform/httpserver"
	"edms/internal/platform/kafka"
	"edms/internal/platform/logger"
	"edms/internal/platform/metrics"
	"edms/internal/platform/postgres"
	"edms/internal/platform/redis"
	"edms/internal/ratelimit"
	"edms/pkg/platform/audit/outbox"
	auditpg "edms/pkg/platform/audit/store/postgres"
	"edms/pkg/platform/circuit"
)

// main wires the backends, services and HTTP router and owns the process
// lifecycle. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("edms stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	var st stores
	if db != nil {
		defer db.Close()
		st = postgresStores(cfg, db)
		log.Info("using postgres stores")
	} else {
		st = memoryStores(cfg)
		log.Warn("DATABASE_URL not set; documents and audit trail are kept in memory only")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	svc := buildServices(cfg, st, lockoutStore(rdb), reg, log)
	if err := seedAdmin(ctx, cfg, svc.identity, log); err != nil {
		return err
	}

	health := func(ctx context.Context) error {
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
		}
		if rdb != nil {
			return rdb.Health(ctx)
		}
		return nil
	}
	limiter := ratelimit.NewWindow(cfg.TokenRateLimit, time.Minute, nil)
	srv := httpserver.New(cfg.Addr, buildRouter(cfg, svc, reg, limiter, health, log), 10*time.Second, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting edms", "addr", cfg.Addr, "env", cfg.Env)
		return srv.Run(gctx)
	})
	g.Go(func() error {
		sweep := time.NewTicker(time.Minute)
		defer sweep.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-sweep.C:
				limiter.Sweep()
			}
		}
	})
	if db != nil && len(cfg.Kafka.Brokers) > 0 {
		g.Go(func() error {
			return runRelay(gctx, cfg, db, reg, log)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("edms stopped")
	return nil
}

// runRelay streams committed audit entries from the outbox to Kafka until ctx ends.
func runRelay(ctx context.Context, cfg config.Server, db *sql.DB, reg *metrics.Registry, log *slog.Logger) error {
	client, err := kafka.NewClient(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.Topic); err != nil {
		return err
	}

	relay := outbox.NewRelay(auditpg.New(db), client, cfg.Kafka.Topic,
		outbox.WithBatchSize(cfg.Kafka.BatchSize),
		outbox.WithInterval(cfg.Kafka.PollInterval),
		outbox.WithBreaker(circuit.New("audit-kafka", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second))),
		outbox.WithLogger(log),
		outbox.WithMetrics(outbox.NewMetrics(reg)),
	)
	log.Info("audit outbox relay started", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	return relay.Run(ctx)
}

func seedAdmin(ctx context.Context, cfg config.Server, users *identity.Service, log *slog.Logger) error {
	if cfg.BootstrapAdminID == "" {
		return nil
	}
	u, err := users.Seed(ctx, identity.RegisterRequest{
		UserID: cfg.BootstrapAdminID,
		Roles:  []string{"admin"},
		Secret: cfg.BootstrapAdminSecret,
	})
	if err != nil {
		return err
	}
	log.Info("bootstrap admin ready", "user_id", u.ID)
	return nil
}
