// Package application builds the process-wide runtime: the table store
// selected by configuration, the shared insert worker pool, and the
// Inserter and Provisioner that use them. The runtime owns their lifecycle;
// Shutdown drains the pool before releasing the store.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tableinsert/internal/config"
	"github.com/JonMunkholm/tableinsert/internal/core"
	"github.com/JonMunkholm/tableinsert/internal/store/bigquery"
	"github.com/JonMunkholm/tableinsert/internal/store/memory"
	"github.com/JonMunkholm/tableinsert/internal/store/postgres"
)

// Runtime holds the long-lived components shared by all requests.
type Runtime struct {
	Store       core.Store
	Pool        *core.WorkerPool
	Inserter    *core.Inserter
	Provisioner *core.Provisioner

	// DefaultProject fills in table specs that omit a project.
	DefaultProject string
	// DefaultTable is used when a request names no table. It may be zero.
	DefaultTable core.TableRef

	cfg   *config.Config
	close func()
}

// New opens the configured store and builds the runtime around it.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rt, err := NewWithStore(cfg, store)
	if err != nil {
		closeStore()
		return nil, err
	}
	rt.close = closeStore
	return rt, nil
}

// NewWithStore builds the runtime around an already open store. The caller
// keeps ownership of the store.
func NewWithStore(cfg *config.Config, store core.Store) (*Runtime, error) {
	rt := &Runtime{
		Store:          store,
		Pool:           core.NewWorkerPool(cfg.Insert.Workers),
		Provisioner:    core.NewProvisioner(store),
		DefaultProject: cfg.BigQuery.Project,
		cfg:            cfg,
		close:          func() {},
	}

	if cfg.Insert.DefaultTable != "" {
		ref, err := core.ParseTableRef(cfg.Insert.DefaultTable, rt.DefaultProject)
		if err != nil {
			return nil, fmt.Errorf("INSERT_DEFAULT_TABLE: %w", err)
		}
		rt.DefaultTable = ref
	}

	rt.Inserter = core.NewInserter(store, rt.Pool,
		core.WithDefaultTable(rt.DefaultTable),
		core.WithMaxBatchBytes(cfg.Insert.MaxBatchBytes),
		core.WithMaxRowsPerBatch(cfg.Insert.MaxRowsPerBatch),
		core.WithBackoff(core.BackoffPolicy{
			MaxAttempts:     cfg.Insert.MaxAttempts,
			InitialInterval: cfg.Insert.InitialBackoff,
			Multiplier:      cfg.Insert.BackoffMultiplier,
			MaxInterval:     cfg.Insert.MaxBackoff,
		}),
		core.WithRateLimit(cfg.Insert.RequestsPerSecond),
	)
	return rt, nil
}

// Shutdown waits up to the configured drain timeout for in-flight insert
// calls, then closes the store. The store is closed even if draining
// times out.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, rt.cfg.Insert.DrainTimeout)
	defer cancel()

	err := rt.Pool.Drain(drainCtx)
	rt.close()
	if err != nil {
		return fmt.Errorf("drain insert pool: %w", err)
	}
	return nil
}

// openStore connects the backend named by cfg.Store.Backend. The returned
// func releases it.
func openStore(ctx context.Context, cfg *config.Config) (core.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := connectPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(pool), pool.Close, nil

	case config.BackendBigQuery:
		svc, err := bigquery.NewService(ctx, bigquery.Options{
			Endpoint:        cfg.BigQuery.Endpoint,
			CredentialsFile: cfg.BigQuery.CredentialsFile,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("using bigquery store", "project", cfg.BigQuery.Project, "endpoint", cfg.BigQuery.Endpoint)
		return bigquery.New(svc), func() {}, nil

	case config.BackendMemory:
		slog.Warn("using in-memory store; rows are lost on exit")
		return memory.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
