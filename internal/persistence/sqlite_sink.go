package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/lychee-technology/objgraph"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteSink keeps a local snapshot of every committed object in one table.
type SQLiteSink struct {
	db    *sql.DB
	table string
}

var _ objgraph.Sink = (*SQLiteSink)(nil)

// OpenSQLiteSink opens (or creates) the database at cfg.Path and its table.
func OpenSQLiteSink(ctx context.Context, cfg objgraph.SQLiteConfig) (*SQLiteSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("sqlite table name cannot be empty")
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteSink{db: db, table: pq.QuoteIdentifier(cfg.Table)}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  object_id TEXT PRIMARY KEY,
  entity_name TEXT NOT NULL,
  attributes TEXT NOT NULL,
  relationships TEXT NOT NULL,
  sequence INTEGER NOT NULL,
  committed_at TEXT NOT NULL
)`, s.table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table %s: %w", s.table, err)
	}
	zap.S().Debugw("sqlite sink ready", "path", cfg.Path, "table", cfg.Table)
	return s, nil
}

func (s *SQLiteSink) Name() string { return objgraph.DriverSQLite }

func (s *SQLiteSink) Persist(ctx context.Context, changes *objgraph.ChangeSet) error {
	rows, err := upserts(changes)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	committedAt := changes.CommittedAt.UTC().Format(time.RFC3339Nano)
	upsert := fmt.Sprintf(
		`INSERT INTO %s (object_id, entity_name, attributes, relationships, sequence, committed_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (object_id)
			DO UPDATE SET entity_name = excluded.entity_name, attributes = excluded.attributes,
				relationships = excluded.relationships, sequence = excluded.sequence, committed_at = excluded.committed_at`,
		s.table,
	)
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, upsert, row.ID, row.Entity, row.Attributes, row.Relationships, changes.Sequence, committedAt); err != nil {
			return fmt.Errorf("upsert object %s: %w", row.ID, err)
		}
	}

	remove := fmt.Sprintf(`DELETE FROM %s WHERE object_id = ?`, s.table)
	for _, ref := range changes.Deleted {
		if _, err := tx.ExecContext(ctx, remove, ref.ID.String()); err != nil {
			return fmt.Errorf("delete object %s: %w", ref.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Objects reads back the stored snapshot ordered by entity and identity.
func (s *SQLiteSink) Objects(ctx context.Context) ([]*objgraph.ObjectRecord, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT object_id, entity_name, attributes, relationships FROM %s ORDER BY entity_name, object_id`, s.table))
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	var out []*objgraph.ObjectRecord
	for rows.Next() {
		var id, entity, attrs, rels string
		if err := rows.Scan(&id, &entity, &attrs, &rels); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		rec := &objgraph.ObjectRecord{EntityName: entity, State: objgraph.StateSaved}
		if rec.ID, err = objgraph.ParseObjectID(id); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", id, err)
		}
		if err := json.Unmarshal([]byte(rels), &rec.Relationships); err != nil {
			return nil, fmt.Errorf("decode relationships of %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
