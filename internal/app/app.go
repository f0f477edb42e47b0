// Package app assembles the collaborators shared by the styledrop binaries
// from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/styledrop/internal/attachment"
	"github.com/dharsanguruparan/styledrop/internal/config"
	"github.com/dharsanguruparan/styledrop/internal/database"
	"github.com/dharsanguruparan/styledrop/internal/metrics"
	"github.com/dharsanguruparan/styledrop/internal/processing"
	"github.com/dharsanguruparan/styledrop/internal/queue"
	"github.com/dharsanguruparan/styledrop/internal/record"
	"github.com/dharsanguruparan/styledrop/internal/repository"
	"github.com/dharsanguruparan/styledrop/internal/s3storage"
	"github.com/dharsanguruparan/styledrop/internal/service"
	"github.com/dharsanguruparan/styledrop/internal/signing"
	"github.com/dharsanguruparan/styledrop/internal/stylist"
)

// ErrDatabaseRequired is returned when a component needs records shared
// between processes but no database is configured.
var ErrDatabaseRequired = errors.New("STYLEDROP_DATABASE_URL is required")

// App holds the assembled dependencies.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Recorder
	Catalog  *config.Catalog
	Store    record.Store
	Signer   *signing.Signer
	Service  *service.Service
	// Pool runs processing in-process when the memory queue is selected; the
	// caller starts it.
	Pool *processing.Pool

	closers []func()
}

// Options tweak New for a binary.
type Options struct {
	// RequireDatabase refuses the in-memory record store.
	RequireDatabase bool
}

// New wires storage, records, the job system and the attachment service.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log}
	if err := a.setup(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) setup(ctx context.Context, opts Options) error {
	cfg, log := a.Config, a.Log

	if cfg.MetricsEnabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rec, err := metrics.New(a.Registry)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		a.Metrics = rec
	}

	catalog, err := config.LoadCatalog(cfg.DefinitionsFile)
	if err != nil {
		return err
	}
	a.Catalog = catalog

	switch {
	case cfg.DatabaseURL != "":
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		a.Store = repository.NewRecordRepository(pool)
	case opts.RequireDatabase:
		return ErrDatabaseRequired
	default:
		log.Warn("no database configured, records are kept in memory")
		a.Store = record.NewMemoryStore()
	}

	fsOpts := cfg.FilesystemOptions()
	a.Signer = fsOpts.Signer
	backends := &attachment.Backends{Filesystem: fsOpts}
	if cfg.S3Enabled() || catalog.UsesS3() {
		client, err := s3storage.NewClient(cfg.S3Options(), log)
		if err != nil {
			return fmt.Errorf("init object store: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure bucket: %w", err)
		}
		backends.S3 = client
	}

	var enqueuer attachment.Enqueuer
	if cfg.Queue == config.QueueAsynq {
		client := asynq.NewClient(RedisOpt(cfg))
		inspector := asynq.NewInspector(RedisOpt(cfg))
		a.closers = append(a.closers, func() { _ = client.Close() }, func() { _ = inspector.Close() })
		enqueuer = queue.NewClient(client, inspector, "")
	} else {
		a.Pool = processing.New(cfg.ProcessingPool, log)
		enqueuer = a.Pool
	}

	a.Service = service.New(catalog, a.Store, attachment.Deps{
		Backends: backends,
		Pipeline: stylist.NewPipeline(stylist.NewRegistry(nil, log), cfg.WorkRoot, log, a.Metrics),
		Enqueuer: enqueuer,
		Log:      log,
		Metrics:  a.Metrics,
	})
	return nil
}

// Gatherer returns the metrics registry, or nil when metrics are disabled.
func (a *App) Gatherer() prometheus.Gatherer {
	if a.Registry == nil {
		return nil
	}
	return a.Registry
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// RedisOpt maps the Redis settings onto asynq's connection options.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}
