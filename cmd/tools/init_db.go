package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/lychee-technology/objgraph"
	"github.com/lychee-technology/objgraph/internal/persistence"
)

func runInitDB(args []string) error {
	flags := flag.NewFlagSet("init-db", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: objgraph-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	cfg := postgresFlags(flags)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	return initDatabase(context.Background(), *cfg)
}

func postgresFlags(flags *flag.FlagSet) *objgraph.PostgresConfig {
	cfg := objgraph.DefaultConfig().Persistence.Postgres
	flags.StringVar(&cfg.Host, "db-host", getenvDefault("DB_HOST", cfg.Host), "database host")
	flags.IntVar(&cfg.Port, "db-port", getenvDefaultInt("DB_PORT", cfg.Port), "database port")
	flags.StringVar(&cfg.Database, "db-name", getenvDefault("DB_NAME", "objgraph"), "database name")
	flags.StringVar(&cfg.Username, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&cfg.Password, "db-password", getenvDefault("DB_PASSWORD", "postgres"), "database password")
	flags.StringVar(&cfg.SSLMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", cfg.SSLMode), "database sslmode")
	flags.StringVar(&cfg.Table, "table", getenvDefault("OBJECT_TABLE", cfg.Table), "snapshot table name")
	flags.BoolVar(&cfg.UseIAM, "iam", false, "authenticate with an Aurora DSQL token")
	flags.StringVar(&cfg.Region, "region", getenvDefault("AWS_REGION", ""), "AWS region for -iam")
	return &cfg
}

func initDatabase(ctx context.Context, cfg objgraph.PostgresConfig) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var tokens persistence.TokenProvider
	if cfg.UseIAM {
		var err error
		if tokens, err = persistence.DSQLTokenProvider(ctx, cfg); err != nil {
			return err
		}
	}

	pool, err := persistence.NewPostgresPool(ctx, cfg, tokens)
	if err != nil {
		return err
	}
	sink, err := persistence.NewPostgresSink(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return err
	}
	defer sink.Close()

	if err := sink.EnsureSchema(ctx); err != nil {
		return err
	}
	fmt.Println("Database initialized successfully.")
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
