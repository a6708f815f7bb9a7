// Package persistence holds the sinks a committed change set can be written to.
package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lychee-technology/objgraph"
)

// Change operations recorded by append-only sinks.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// objectRow is one object flattened for a relational snapshot table.
type objectRow struct {
	ID            string
	Entity        string
	Attributes    string
	Relationships string
}

func encodeRecord(rec *objgraph.ObjectRecord) (objectRow, error) {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return objectRow{}, fmt.Errorf("encode attributes of %s: %w", rec.ID, err)
	}
	rels := rec.Relationships
	if rels == nil {
		rels = map[string][]objgraph.ObjectID{}
	}
	relJSON, err := json.Marshal(rels)
	if err != nil {
		return objectRow{}, fmt.Errorf("encode relationships of %s: %w", rec.ID, err)
	}
	return objectRow{
		ID:            rec.ID.String(),
		Entity:        rec.EntityName,
		Attributes:    string(attrs),
		Relationships: string(relJSON),
	}, nil
}

// upserts returns the rows to write for inserted and updated objects, in that order.
func upserts(changes *objgraph.ChangeSet) ([]objectRow, error) {
	rows := make([]objectRow, 0, len(changes.Inserted)+len(changes.Updated))
	for _, group := range [][]*objgraph.ObjectRecord{changes.Inserted, changes.Updated} {
		for _, rec := range group {
			row, err := encodeRecord(rec)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// changeEntry is one line of an append-only change log.
type changeEntry struct {
	Sequence    int64
	CommittedAt time.Time
	Op          string
	Entity      string
	ObjectID    string
	Payload     string
}

func changeEntries(changes *objgraph.ChangeSet) ([]changeEntry, error) {
	var entries []changeEntry
	add := func(op string, recs []*objgraph.ObjectRecord) error {
		for _, rec := range recs {
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode %s: %w", rec.ID, err)
			}
			entries = append(entries, changeEntry{
				Sequence:    changes.Sequence,
				CommittedAt: changes.CommittedAt,
				Op:          op,
				Entity:      rec.EntityName,
				ObjectID:    rec.ID.String(),
				Payload:     string(payload),
			})
		}
		return nil
	}
	if err := add(OpInsert, changes.Inserted); err != nil {
		return nil, err
	}
	if err := add(OpUpdate, changes.Updated); err != nil {
		return nil, err
	}
	for _, ref := range changes.Deleted {
		entries = append(entries, changeEntry{
			Sequence:    changes.Sequence,
			CommittedAt: changes.CommittedAt,
			Op:          OpDelete,
			Entity:      ref.EntityName,
			ObjectID:    ref.ID.String(),
			Payload:     "null",
		})
	}
	return entries, nil
}
