package main

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/circulation-core/access"
	"github.com/AntonStoeckl/circulation-core/catalog"
	"github.com/AntonStoeckl/circulation-core/circulation"
	"github.com/AntonStoeckl/circulation-core/config"
	"github.com/AntonStoeckl/circulation-core/inventory"
	"github.com/AntonStoeckl/circulation-core/ledger"
	"github.com/AntonStoeckl/circulation-core/oteladapters"
	"github.com/AntonStoeckl/circulation-core/shell"
	"github.com/AntonStoeckl/circulation-core/store"
	"github.com/AntonStoeckl/circulation-core/store/memengine"
	"github.com/AntonStoeckl/circulation-core/store/postgresengine"
	"github.com/AntonStoeckl/circulation-core/tenancy"
	"github.com/AntonStoeckl/circulation-core/transport/httpapi"
)

const instrumentationName = "github.com/AntonStoeckl/circulation-core"

// ErrUnknownAdapter is returned for a database adapter the binary cannot open.
var ErrUnknownAdapter = errors.New("unknown database adapter")

// openStore opens the configured engine. The returned closer releases the connections.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if !cfg.UsesPostgres() {
		logger.Warn("no database configured, running on the in-memory engine")
		return memengine.New(memengine.WithLockTimeout(cfg.Database.LockTimeout)), func() {}, nil
	}

	s, closer, err := openPostgres(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}

	return s, closer, nil
}

func openPostgres(ctx context.Context, db config.Database, logger *slog.Logger) (*postgresengine.Store, func(), error) {
	options := []postgresengine.Option{
		postgresengine.WithLogger(logger),
		postgresengine.WithLockTimeout(db.LockTimeout),
	}

	switch db.Adapter {
	case config.AdapterPGXPool:
		primary, err := config.PostgresPGXPool(ctx, db, db.DSN)
		if err != nil {
			return nil, nil, err
		}

		if db.ReplicaDSN == "" {
			s, err := postgresengine.NewStoreFromPGXPool(primary, options...)
			return s, primary.Close, err
		}

		replica, err := config.PostgresPGXPool(ctx, db, db.ReplicaDSN)
		if err != nil {
			primary.Close()
			return nil, nil, err
		}

		closer := func() {
			replica.Close()
			primary.Close()
		}

		s, err := postgresengine.NewStoreFromPGXPoolAndReplica(primary, replica, options...)

		return s, closer, err

	case config.AdapterSQLDB:
		primary, err := config.PostgresSQLDB(ctx, db, db.DSN)
		if err != nil {
			return nil, nil, err
		}

		if db.ReplicaDSN == "" {
			s, err := postgresengine.NewStoreFromSQLDB(primary, options...)
			return s, func() { _ = primary.Close() }, err
		}

		replica, err := config.PostgresSQLDB(ctx, db, db.ReplicaDSN)
		if err != nil {
			_ = primary.Close()
			return nil, nil, err
		}

		closer := func() {
			_ = replica.Close()
			_ = primary.Close()
		}

		s, err := postgresengine.NewStoreFromSQLDBAndReplica(primary, replica, options...)

		return s, closer, err

	case config.AdapterSQLX:
		primary, err := config.PostgresSQLX(ctx, db, db.DSN)
		if err != nil {
			return nil, nil, err
		}

		if db.ReplicaDSN == "" {
			s, err := postgresengine.NewStoreFromSQLX(primary, options...)
			return s, func() { _ = primary.Close() }, err
		}

		replica, err := config.PostgresSQLX(ctx, db, db.ReplicaDSN)
		if err != nil {
			_ = primary.Close()
			return nil, nil, err
		}

		closer := func() {
			_ = replica.Close()
			_ = primary.Close()
		}

		s, err := postgresengine.NewStoreFromSQLXAndReplica(primary, replica, options...)

		return s, closer, err

	default:
		return nil, nil, errors.Join(ErrUnknownAdapter, errors.New(db.Adapter))
	}
}

// buildServices wires the application services with the OpenTelemetry adapters on the global
// providers.
func buildServices(s store.Store, cfg config.Config, logger *slog.Logger) (httpapi.Services, error) {
	contextualLogger := oteladapters.NewSlogBridgeLoggerWithHandler(logger.Handler())
	metrics := oteladapters.NewMetricsCollector(otel.Meter(instrumentationName))
	tracing := oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))

	resolver := access.NewCachingResolver(access.NewResolver(s), access.WithTTL(cfg.Circulation.RoleCacheTTL))
	auth := access.NewEvaluator(resolver, access.WithContextualLogger(contextualLogger))

	retryOptions := []shell.RetryOption{
		shell.WithMaxAttempts(cfg.Circulation.MaxRetries + 1),
		shell.WithBaseDelay(cfg.Circulation.RetryBaseDelay),
	}

	engine, err := circulation.NewEngine(s, auth,
		circulation.WithLogger(logger),
		circulation.WithContextualLogger(contextualLogger),
		circulation.WithMetrics(metrics),
		circulation.WithTracing(tracing),
		circulation.WithRetryOptions(retryOptions...),
	)
	if err != nil {
		return httpapi.Services{}, err
	}

	registry, err := inventory.NewRegistry(s, auth, inventory.WithLogger(logger), inventory.WithMetrics(metrics))
	if err != nil {
		return httpapi.Services{}, err
	}

	softDeletes, err := ledger.New(s, auth,
		ledger.WithLogger(logger),
		ledger.WithContextualLogger(contextualLogger),
		ledger.WithMetrics(metrics),
		ledger.WithRetryOptions(retryOptions...),
	)
	if err != nil {
		return httpapi.Services{}, err
	}

	gateway, err := catalog.NewGateway(s, auth, catalog.WithLogger(logger), catalog.WithMetrics(metrics))
	if err != nil {
		return httpapi.Services{}, err
	}

	tenants, err := tenancy.NewService(s, auth, tenancy.WithLogger(logger), tenancy.WithMetrics(metrics))
	if err != nil {
		return httpapi.Services{}, err
	}

	return httpapi.Services{
		Circulation: engine,
		Inventory:   registry,
		Ledger:      softDeletes,
		Catalog:     gateway,
		Tenancy:     tenants,
	}, nil
}
