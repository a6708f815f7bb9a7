package persistence

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/objgraph"
	"go.uber.org/zap"
)

// ValidatePostgresConfig performs basic sanity checks on Postgres-related settings.
func ValidatePostgresConfig(cfg objgraph.PostgresConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("persistence.postgres.host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("persistence.postgres.port must be a valid TCP port")
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("persistence.postgres.maxConnections must be greater than 0")
	}
	return nil
}

// PostgresDSN builds a connection URL from cfg using password.
func PostgresDSN(cfg objgraph.PostgresConfig, password string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, password),
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	if cfg.Timeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(cfg.Timeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// TokenProvider returns a password for a new connection.
type TokenProvider func(ctx context.Context) (string, error)

// DSQLTokenProvider generates short-lived Aurora DSQL auth tokens from the
// default AWS credential chain.
func DSQLTokenProvider(ctx context.Context, cfg objgraph.PostgresConfig) (TokenProvider, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return func(ctx context.Context) (string, error) {
		token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
		if err != nil {
			return "", fmt.Errorf("generate dsql auth token: %w", err)
		}
		return token, nil
	}, nil
}

// NewPostgresPool opens a pgx pool. When tokens is set every new connection
// authenticates with a fresh token instead of cfg.Password.
func NewPostgresPool(ctx context.Context, cfg objgraph.PostgresConfig, tokens TokenProvider) (*pgxpool.Pool, error) {
	if err := ValidatePostgresConfig(cfg); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(PostgresDSN(cfg, cfg.Password))
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if tokens != nil {
		poolCfg.BeforeConnect = func(ctx context.Context, cc *pgx.ConnConfig) error {
			token, err := tokens(ctx)
			if err != nil {
				return err
			}
			cc.Password = token
			return nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	zap.S().Infow("postgres pool ready", "host", cfg.Host, "database", cfg.Database, "iam", tokens != nil)
	return pool, nil
}

// PostgresHealthCheck pings the pool and runs a trivial query.
// timeout may be 0 to use a sensible default (5s).
func PostgresHealthCheck(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("postgres simple query failed: %w", err)
	}
	return nil
}
