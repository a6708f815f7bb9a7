package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lychee-technology/objgraph"
	"github.com/lychee-technology/objgraph/internal"
	"github.com/lychee-technology/objgraph/internal/metrics"
	"github.com/lychee-technology/objgraph/internal/persistence"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// NewObjectContext creates an ObjectContext from config. This is the primary
// way for external projects to create a context.
//
// Entities come from the model files named by config.Model plus any passed
// directly; all of them are registered as one batch. catalog resolves the
// named derivation functions model files refer to and may be nil.
//
// Usage:
//
//	config := objgraph.DefaultConfig()
//	config.Model.Directory = "./models"
//	config.Persistence.Driver = objgraph.DriverSQLite
//	config.Persistence.SQLite.Path = "graph.db"
//	oc, err := factory.NewObjectContext(ctx, config, nil)
//	if err != nil {
//	    // handle error
//	}
//	defer oc.Close()
func NewObjectContext(ctx context.Context, config *objgraph.Config, catalog objgraph.DerivationCatalog, entities ...*objgraph.EntityType) (objgraph.ObjectContext, error) {
	if config == nil {
		config = objgraph.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	registry, err := NewRegistry(config.Model, catalog, entities...)
	if err != nil {
		return nil, err
	}

	if config.Metrics.Enabled {
		if _, err := metrics.Install(config.Metrics.Namespace, prometheus.DefaultRegisterer); err != nil {
			return nil, err
		}
	}

	sink, err := NewSink(ctx, config.Persistence)
	if err != nil {
		return nil, err
	}

	store := internal.NewObjectStore(registry, sink, config)
	if err := store.Resume(ctx); err != nil {
		store.Close()
		return nil, err
	}

	zap.S().Infow("object context ready",
		"entities", registry.ListEntities(),
		"driver", config.Persistence.Driver,
		"metrics", config.Metrics.Enabled)
	return store, nil
}

// NewRegistry loads the configured model files and registers their entities
// together with extra.
func NewRegistry(cfg objgraph.ModelConfig, catalog objgraph.DerivationCatalog, extra ...*objgraph.EntityType) (*internal.EntityRegistry, error) {
	var models []*internal.Model
	if cfg.Directory != "" {
		loaded, err := internal.LoadModelDir(cfg.Directory, catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to load models: %w", err)
		}
		models = append(models, loaded...)
	}
	for _, path := range cfg.Files {
		m, err := internal.LoadModelFile(path, catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to load model: %w", err)
		}
		models = append(models, m)
	}
	if len(extra) > 0 {
		models = append(models, &internal.Model{Name: "inline", Entities: extra})
	}

	registry := internal.NewEntityRegistry()
	if err := internal.RegisterModels(registry, models...); err != nil {
		return nil, err
	}
	return registry, nil
}

// NewSink opens the sink selected by cfg.Driver, wrapped in a circuit
// breaker when one is configured. DriverNone yields a nil sink.
func NewSink(ctx context.Context, cfg objgraph.PersistenceConfig) (objgraph.Sink, error) {
	var (
		sink objgraph.Sink
		err  error
	)
	switch cfg.Driver {
	case "", objgraph.DriverNone:
		return nil, nil
	case objgraph.DriverPostgres:
		sink, err = newPostgresSink(ctx, cfg.Postgres)
	case objgraph.DriverSQLite:
		sink, err = persistence.OpenSQLiteSink(ctx, cfg.SQLite)
	case objgraph.DriverS3:
		sink, err = persistence.NewS3Sink(ctx, cfg.S3)
	case objgraph.DriverDuckDB:
		sink, err = persistence.OpenDuckDBSink(ctx, cfg.DuckDB)
	default:
		return nil, &objgraph.ConfigError{Field: "persistence.driver", Message: fmt.Sprintf("unsupported driver %q", cfg.Driver)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s sink: %w", cfg.Driver, err)
	}

	if cfg.CircuitBreaker.Threshold > 0 {
		sink = persistence.NewBreakerSink(sink, persistence.NewCircuitBreaker(cfg.CircuitBreaker))
	}
	return sink, nil
}

func newPostgresSink(ctx context.Context, cfg objgraph.PostgresConfig) (objgraph.Sink, error) {
	var tokens persistence.TokenProvider
	if cfg.UseIAM {
		var err error
		if tokens, err = persistence.DSQLTokenProvider(ctx, cfg); err != nil {
			return nil, err
		}
	}

	pool, err := persistence.NewPostgresPool(ctx, cfg, tokens)
	if err != nil {
		return nil, err
	}
	if err := persistence.PostgresHealthCheck(ctx, pool, cfg.Timeout); err != nil {
		pool.Close()
		return nil, err
	}

	sink, err := persistence.NewPostgresSink(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := sink.EnsureSchema(ctx); err != nil {
		sink.Close()
		return nil, err
	}
	return sink, nil
}

// NewLogger builds a zap logger from cfg.
func NewLogger(cfg objgraph.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, &objgraph.ConfigError{Field: "logging.level", Message: err.Error()}
		}
		zc.Level = level
	}
	if cfg.Format != "" {
		zc.Encoding = cfg.Format
	}
	return zc.Build()
}

// LoadConfigFile reads a JSON config file over DefaultConfig and validates it.
func LoadConfigFile(path string) (*objgraph.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	config := objgraph.DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
