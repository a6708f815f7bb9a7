package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/lychee-technology/objgraph"
	"go.uber.org/zap"
)

type postgresPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Close()
}

// PostgresSink keeps a snapshot table with one JSONB row per live object.
// Each change set is applied in a single transaction.
type PostgresSink struct {
	pool  postgresPool
	table string
}

var _ objgraph.Sink = (*PostgresSink)(nil)

// NewPostgresSink wraps pool. The sink owns the pool and closes it on Close.
func NewPostgresSink(pool postgresPool, table string) (*PostgresSink, error) {
	if table == "" {
		return nil, fmt.Errorf("postgres table name cannot be empty")
	}
	return &PostgresSink{pool: pool, table: pq.QuoteIdentifier(table)}, nil
}

func (s *PostgresSink) Name() string { return objgraph.DriverPostgres }

// EnsureSchema creates the snapshot table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  object_id UUID PRIMARY KEY,
  entity_name TEXT NOT NULL,
  attributes JSONB NOT NULL,
  relationships JSONB NOT NULL,
  sequence BIGINT NOT NULL,
  committed_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresSink) Persist(ctx context.Context, changes *objgraph.ChangeSet) error {
	rows, err := upserts(changes)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	upsert := fmt.Sprintf(
		`INSERT INTO %s (object_id, entity_name, attributes, relationships, sequence, committed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (object_id)
			DO UPDATE SET entity_name = EXCLUDED.entity_name, attributes = EXCLUDED.attributes,
				relationships = EXCLUDED.relationships, sequence = EXCLUDED.sequence, committed_at = EXCLUDED.committed_at`,
		s.table,
	)
	for _, row := range rows {
		if _, err := tx.Exec(ctx, upsert, row.ID, row.Entity, row.Attributes, row.Relationships, changes.Sequence, changes.CommittedAt); err != nil {
			return fmt.Errorf("upsert object %s: %w", row.ID, err)
		}
	}

	remove := fmt.Sprintf(`DELETE FROM %s WHERE object_id = $1`, s.table)
	for _, ref := range changes.Deleted {
		if _, err := tx.Exec(ctx, remove, ref.ID.String()); err != nil {
			return fmt.Errorf("delete object %s: %w", ref.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	zap.S().Debugw("persisted change set", "sink", s.Name(), "sequence", changes.Sequence,
		"upserted", len(rows), "deleted", len(changes.Deleted))
	return nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
