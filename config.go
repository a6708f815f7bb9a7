package objgraph

import (
	"time"
)

// Persistence drivers accepted by PersistenceConfig.Driver.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverS3       = "s3"
	DriverDuckDB   = "duckdb"
)

// Config holds every setting an object context can be built from
type Config struct {
	Store       StoreConfig       `json:"store"`
	Query       QueryConfig       `json:"query"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
	Model       ModelConfig       `json:"model"`
	Persistence PersistenceConfig `json:"persistence"`
}

// StoreConfig contains object store settings
type StoreConfig struct {
	// MaxCascadeDepth bounds how many cascade hops a single delete may take.
	// Zero means unbounded.
	MaxCascadeDepth int `json:"maxCascadeDepth"`
	// ValidateMinCardinality enables min-count checks on relationships at commit.
	ValidateMinCardinality bool `json:"validateMinCardinality"`
}

// QueryConfig contains query execution settings
type QueryConfig struct {
	// DefaultLimit applies when a FetchRequest leaves Limit at zero. Zero means no limit.
	DefaultLimit int `json:"defaultLimit"`
	// MaxLimit caps any requested limit. Zero means no cap.
	MaxLimit int `json:"maxLimit"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	Development bool   `json:"development"`
}

// MetricsConfig contains metrics collection settings
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// ModelConfig points at JSON model definitions loaded at startup
type ModelConfig struct {
	Directory string   `json:"directory"`
	Files     []string `json:"files,omitempty"`
}

// PersistenceConfig selects the commit sink
type PersistenceConfig struct {
	Driver   string         `json:"driver"`
	Postgres PostgresConfig `json:"postgres"`
	SQLite   SQLiteConfig   `json:"sqlite"`
	S3       S3Config       `json:"s3"`
	DuckDB   DuckDBConfig   `json:"duckdb"`
	// CircuitBreaker guards the sink; a zero Threshold disables it.
	CircuitBreaker CircuitBreakerConfig `json:"circuitBreaker"`
}

// CircuitBreakerConfig opens the breaker after Threshold sink failures
// within Window and keeps it open for OpenDuration.
type CircuitBreakerConfig struct {
	Threshold    int           `json:"threshold"`
	Window       time.Duration `json:"window"`
	OpenDuration time.Duration `json:"openDuration"`
}

// PostgresConfig contains database connection settings
type PostgresConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"sslMode"`
	Table           string        `json:"table"`
	MaxConnections  int           `json:"maxConnections"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
	Timeout         time.Duration `json:"timeout"`
	// UseIAM generates an Aurora DSQL auth token in place of Password.
	UseIAM bool   `json:"useIAM"`
	Region string `json:"region"`
}

type SQLiteConfig struct {
	Path  string `json:"path"`
	Table string `json:"table"`
}

type S3Config struct {
	Bucket   string `json:"bucket"`
	Prefix   string `json:"prefix"`
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`
	// UsePathStyle is needed by MinIO and LocalStack.
	UsePathStyle bool `json:"usePathStyle"`
	// Static credentials; the default AWS chain is used when empty.
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
}

type DuckDBConfig struct {
	Path  string `json:"path"`
	Table string `json:"table"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			MaxCascadeDepth:        0,
			ValidateMinCardinality: true,
		},
		Query: QueryConfig{
			DefaultLimit: 0,
			MaxLimit:     0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "objgraph",
		},
		Persistence: PersistenceConfig{
			Driver: DriverNone,
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				SSLMode:         "disable",
				Table:           "objgraph_objects",
				MaxConnections:  10,
				ConnMaxLifetime: 5 * time.Minute,
				Timeout:         30 * time.Second,
			},
			SQLite: SQLiteConfig{
				Path:  "objgraph.db",
				Table: "objgraph_objects",
			},
			S3: S3Config{
				Prefix: "objgraph/changes",
			},
			DuckDB: DuckDBConfig{
				Table: "objgraph_changes",
			},
			CircuitBreaker: CircuitBreakerConfig{
				Threshold:    5,
				Window:       time.Minute,
				OpenDuration: 30 * time.Second,
			},
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Store.MaxCascadeDepth < 0 {
		return &ConfigError{Field: "store.maxCascadeDepth", Message: "must not be negative"}
	}

	if c.Query.DefaultLimit < 0 {
		return &ConfigError{Field: "query.defaultLimit", Message: "must not be negative"}
	}

	if c.Query.MaxLimit < 0 {
		return &ConfigError{Field: "query.maxLimit", Message: "must not be negative"}
	}

	if c.Query.MaxLimit > 0 && c.Query.DefaultLimit > c.Query.MaxLimit {
		return &ConfigError{Field: "query.defaultLimit", Message: "must be less than or equal to maxLimit"}
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be json or console"}
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return &ConfigError{Field: "metrics.namespace", Message: "is required when metrics are enabled"}
	}

	p := c.Persistence
	if p.CircuitBreaker.Threshold < 0 {
		return &ConfigError{Field: "persistence.circuitBreaker.threshold", Message: "must not be negative"}
	}
	if p.CircuitBreaker.Threshold > 0 && (p.CircuitBreaker.Window <= 0 || p.CircuitBreaker.OpenDuration <= 0) {
		return &ConfigError{Field: "persistence.circuitBreaker", Message: "window and openDuration must be positive"}
	}

	switch p.Driver {
	case "", DriverNone:
	case DriverPostgres:
		if p.Postgres.Host == "" {
			return &ConfigError{Field: "persistence.postgres.host", Message: "is required"}
		}
		if p.Postgres.Database == "" {
			return &ConfigError{Field: "persistence.postgres.database", Message: "is required"}
		}
		if p.Postgres.Table == "" {
			return &ConfigError{Field: "persistence.postgres.table", Message: "is required"}
		}
		if p.Postgres.UseIAM && p.Postgres.Region == "" {
			return &ConfigError{Field: "persistence.postgres.region", Message: "is required when useIAM is set"}
		}
	case DriverSQLite:
		if p.SQLite.Path == "" {
			return &ConfigError{Field: "persistence.sqlite.path", Message: "is required"}
		}
	case DriverS3:
		if p.S3.Bucket == "" {
			return &ConfigError{Field: "persistence.s3.bucket", Message: "is required"}
		}
		if (p.S3.AccessKeyID == "") != (p.S3.SecretAccessKey == "") {
			return &ConfigError{Field: "persistence.s3.accessKeyId", Message: "accessKeyId and secretAccessKey must be set together"}
		}
	case DriverDuckDB:
		if p.DuckDB.Table == "" {
			return &ConfigError{Field: "persistence.duckdb.table", Message: "is required"}
		}
	default:
		return &ConfigError{Field: "persistence.driver", Message: "unsupported driver " + p.Driver}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
