package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"

	"edms/internal/document"
	docmemory "edms/internal/document/store/memory"
	docpg "edms/internal/document/store/postgres"
	"edms/internal/identity"
	identityhandler "edms/internal/identity/handler"
	"edms/internal/identity/lockout"
	usermemory "edms/internal/identity/store/memory"
	userpg "edms/internal/identity/store/postgres"
	"edms/internal/identity/token"
	"edms/internal/lifecycle"
	lifecyclehandler "edms/internal/lifecycle/handler"
	"edms/internal/platform/config"
	"edms/internal/platform/metrics"
	"edms/internal/platform/redis"
	"edms/internal/printing"
	printinghandler "edms/internal/printing/handler"
	printmemory "edms/internal/printing/store/memory"
	printpg "edms/internal/printing/store/postgres"
	"edms/internal/ratelimit"
	"edms/internal/rbac"
	"edms/internal/reporting"
	reportinghandler "edms/internal/reporting/handler"
	"edms/internal/signature"
	signaturehandler "edms/internal/signature/handler"
	sigmemory "edms/internal/signature/store/memory"
	sigpg "edms/internal/signature/store/postgres"
	"edms/internal/task"
	taskhandler "edms/internal/task/handler"
	taskmemory "edms/internal/task/store/memory"
	taskpg "edms/internal/task/store/postgres"
	httptransport "edms/internal/transport/http"
	"edms/pkg/platform/audit"
	auditmemory "edms/pkg/platform/audit/store/memory"
	auditpg "edms/pkg/platform/audit/store/postgres"
	"edms/pkg/platform/tx"
)

// documentStore is every view of the document store the services use.
type documentStore interface {
	lifecycle.DocumentStore
	ListByState(ctx context.Context, state document.State) ([]document.Document, error)
	FindVersion(ctx context.Context, versionID string) (document.Version, error)
}

type stores struct {
	docs   documentStore
	audit  audit.Store
	sigs   signature.Store
	users  identity.UserStore
	prints printing.Store
	tasks  task.Store
	runner tx.Runner
}

func memoryStores(cfg config.Server) stores {
	return stores{
		docs:   docmemory.New(),
		audit:  auditmemory.NewInMemoryStore(),
		sigs:   sigmemory.New(),
		users:  usermemory.New(),
		prints: printmemory.New(),
		tasks:  taskmemory.New(),
		runner: tx.NewMemory(tx.WithLockTimeout(cfg.LockTimeout)),
	}
}

func postgresStores(cfg config.Server, db *sql.DB) stores {
	return stores{
		docs:   docpg.New(db),
		audit:  auditpg.New(db),
		sigs:   sigpg.New(db),
		users:  userpg.New(db),
		prints: printpg.New(db),
		tasks:  taskpg.New(db),
		runner: tx.NewPostgres(db, cfg.LockTimeout),
	}
}

type services struct {
	engine   *lifecycle.Engine
	identity *identity.Service
	binder   *signature.Binder
	prints   *printing.Ledger
	tasks    *task.Service
	reports  *reporting.Service
}

func buildServices(cfg config.Server, s stores, lockoutStore identity.LockoutStore, reg *metrics.Registry, log *slog.Logger) services {
	guard := rbac.NewGuard(nil)
	ledger := audit.NewLedger(s.audit,
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics(reg)),
	)

	engine := lifecycle.New(s.docs, ledger, guard, s.runner,
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(lifecycle.NewMetrics(reg)),
		lifecycle.WithTracer(otel.Tracer("edms/lifecycle")),
	)
	users := identity.New(s.users, lockoutStore, guard,
		identity.WithLogger(log),
		identity.WithLockout(cfg.Reauth.MaxFailures, cfg.Reauth.LockoutWindow),
	)
	binder := signature.NewBinder(s.sigs, engine, s.docs, users, guard,
		signature.WithLogger(log),
		signature.WithRegisterer(reg),
	)
	prints := printing.NewLedger(s.prints, s.docs, ledger, guard, s.runner,
		printing.WithLogger(log),
		printing.WithMetrics(printing.NewMetrics(reg)),
	)
	tasks := task.New(s.tasks, s.docs, ledger, guard, s.runner, task.WithLogger(log))
	reports := reporting.New(s.docs, tasks, ledger, guard, reporting.WithLogger(log))

	return services{
		engine:   engine,
		identity: users,
		binder:   binder,
		prints:   prints,
		tasks:    tasks,
		reports:  reports,
	}
}

func lockoutStore(rdb *redis.Client) identity.LockoutStore {
	if rdb == nil {
		return lockout.NewInMemory(time.Now)
	}
	return lockout.NewRedis(rdb.Client, rdb.Prefix())
}

func buildRouter(cfg config.Server, svc services, reg *metrics.Registry, limiter *ratelimit.Window, health func(context.Context) error, log *slog.Logger) http.Handler {
	tokens := token.NewIssuer(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	identityHandler := identityhandler.New(svc.identity, tokens, cfg.TokenTTL, log)

	return httptransport.NewRouter(
		httptransport.Config{
			Logger:       log,
			Validator:    tokens,
			Metrics:      reg.Handler(),
			MetricsToken: cfg.MetricsToken,
			Health:       health,
			TrustProxy:   cfg.TrustProxyHeaders,
			PublicLimit:  limiter,
		},
		identityHandler,
		identityHandler,
		lifecyclehandler.New(svc.engine, log),
		signaturehandler.New(svc.binder, log),
		printinghandler.New(svc.prints, log),
		taskhandler.New(svc.tasks, log),
		reportinghandler.New(svc.reports, log),
	)
}
