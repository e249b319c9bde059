// Package app assembles the cascade engine and its PostgreSQL collaborators
// from configuration. Commands and integration tests build on it.
package app

import (
	"context"
	"fmt"

	"softcascade/internal/config"
	"softcascade/internal/domain/cascade"
	"softcascade/internal/domain/lifecycle"
	"softcascade/internal/domain/lms"
	"softcascade/internal/infrastructure/notify"
	"softcascade/internal/infrastructure/storage/postgres"
	"softcascade/internal/infrastructure/storage/postgres/cascade_repo"
	"softcascade/internal/metadata"
	"softcascade/pkg/logger"
)

// App holds the wired collaborators.
type App struct {
	Config    *config.Config
	Pool      *postgres.Pool
	TxManager *postgres.TxManager
	Registry  *metadata.Registry
	Repo      *cascade_repo.Repo
	Bus       *lifecycle.Bus
	Audit     *postgres.AuditService
	Cascade   *cascade.Service
}

// Open connects to the database and wires the cascade service. Subscribers
// are attached according to the outbox and audit switches; cache
// invalidation is always on.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	poolCfg.MaxConnLifetime = cfg.DBMaxConnLifetime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	a, err := New(cfg, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

// New wires everything on top of an existing pool.
func New(cfg *config.Config, pool *postgres.Pool) (*App, error) {
	isolation, err := postgres.ParseIsolation(cfg.TxIsolation)
	if err != nil {
		return nil, err
	}
	txOpts := postgres.DefaultTxOptions()
	txOpts.IsolationLevel = isolation
	txOpts.StatementTimeout = cfg.TxStatementTimeout
	txManager := postgres.NewTxManager(pool, txOpts)

	registry, err := lms.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	audit, err := postgres.NewAuditService(txManager)
	if err != nil {
		return nil, err
	}

	bus := lifecycle.NewBus()
	if cfg.OutboxEnabled {
		notify.NewOutboxSubscriber(postgres.NewOutboxPublisher(txManager)).Register(bus)
	}
	if cfg.AuditEnabled {
		filter, err := notify.NewFilter(cfg.AuditFilter)
		if err != nil {
			return nil, fmt.Errorf("audit filter: %w", err)
		}
		notify.NewAuditSubscriber(audit, filter).Register(bus)
	}
	invalidator := notify.NewInvalidator(txManager, cfg.NotifyChannel)
	invalidator.Register(bus)

	repo := cascade_repo.New(registry, txManager, cfg.CascadeBatchSize)

	svc := cascade.NewService(cascade.ServiceConfig{
		Registry:       registry,
		Storage:        repo,
		TxManager:      txManager,
		Publisher:      bus,
		GroupObservers: []cascade.GroupObserver{invalidator},
		KeepParents:    cfg.CascadeKeepParents,
		FastPath:       cfg.CascadeFastPath,
	})

	logger.Default().WithComponent("app").Infow("cascade service wired",
		"types", len(registry.Types()),
		"edges", len(registry.Edges()),
		"keep_parents", cfg.CascadeKeepParents,
		"fast_path", cfg.CascadeFastPath,
		"batch_size", cfg.CascadeBatchSize,
		"outbox", cfg.OutboxEnabled,
		"audit", cfg.AuditEnabled,
	)

	return &App{
		Config:    cfg,
		Pool:      pool,
		TxManager: txManager,
		Registry:  registry,
		Repo:      repo,
		Bus:       bus,
		Audit:     audit,
		Cascade:   svc,
	}, nil
}

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	return postgres.Migrate(ctx, a.TxManager)
}

// Close releases the pool.
func (a *App) Close() {
	a.Pool.Close()
}

// NewLogger builds the process logger from configuration and installs it as
// the default.
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}
