package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/lib/pq"
	"github.com/lychee-technology/objgraph"
	"go.uber.org/zap"
)

// DuckDBSink appends every change to a columnar change log, one row per
// object per commit, so the full history stays queryable.
type DuckDBSink struct {
	db    *sql.DB
	table string
}

var (
	_ objgraph.Sink             = (*DuckDBSink)(nil)
	_ objgraph.SequenceReporter = (*DuckDBSink)(nil)
)

// OpenDuckDBSink opens the database at cfg.Path, or an in-memory one when
// the path is empty.
func OpenDuckDBSink(ctx context.Context, cfg objgraph.DuckDBConfig) (*DuckDBSink, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("duckdb table name cannot be empty")
	}
	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// DuckDB typically uses a single connection; an in-memory database is per connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	s := &DuckDBSink{db: db, table: pq.QuoteIdentifier(cfg.Table)}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  sequence BIGINT NOT NULL,
  committed_at TIMESTAMP NOT NULL,
  op VARCHAR NOT NULL,
  entity_name VARCHAR NOT NULL,
  object_id VARCHAR NOT NULL,
  payload VARCHAR NOT NULL
)`, s.table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table %s: %w", s.table, err)
	}
	zap.S().Debugw("duckdb sink ready", "path", dsn, "table", cfg.Table)
	return s, nil
}

func (s *DuckDBSink) Name() string { return objgraph.DriverDuckDB }

func (s *DuckDBSink) Persist(ctx context.Context, changes *objgraph.ChangeSet) error {
	entries, err := changeEntries(changes)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := fmt.Sprintf(
		`INSERT INTO %s (sequence, committed_at, op, entity_name, object_id, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		s.table,
	)
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, insert, e.Sequence, e.CommittedAt.UTC(), e.Op, e.Entity, e.ObjectID, e.Payload); err != nil {
			return fmt.Errorf("append %s of %s: %w", e.Op, e.ObjectID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LastSequence returns the highest sequence in the log, or zero when it is empty.
func (s *DuckDBSink) LastSequence(ctx context.Context) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(sequence), 0) FROM %s`, s.table)).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("read last sequence: %w", err)
	}
	return last, nil
}

// HistoryEntry is one change of one object as recorded in the log.
type HistoryEntry struct {
	Sequence int64
	Op       string
	Payload  string
}

// History returns every logged change of id in commit order.
func (s *DuckDBSink) History(ctx context.Context, id objgraph.ObjectID) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT sequence, op, payload FROM %s WHERE object_id = ? ORDER BY sequence`, s.table), id.String())
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Sequence, &e.Op, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *DuckDBSink) Close() error {
	return s.db.Close()
}
