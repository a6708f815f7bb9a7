package e2e_harness

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lib/pq"
	"github.com/lychee-technology/objgraph"
	"github.com/lychee-technology/objgraph/internal/persistence"
)

// EnsureBucket creates cfg.Bucket unless it already exists.
func EnsureBucket(ctx context.Context, cfg objgraph.S3Config) error {
	client, err := persistence.NewS3Client(ctx, cfg)
	if err != nil {
		return err
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err == nil {
		return nil
	}
	if _, cerr := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}); cerr != nil {
		var apiErr smithy.APIError
		if errors.As(cerr, &apiErr) {
			code := apiErr.ErrorCode()
			if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
				return nil
			}
		}
		return fmt.Errorf("create bucket: %w", cerr)
	}
	return nil
}

// ReadChangeSet downloads the change set the s3 sink wrote for sequence.
func ReadChangeSet(ctx context.Context, cfg objgraph.S3Config, key string) (*objgraph.ChangeSet, error) {
	client, err := persistence.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(cfg.Bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	var changes objgraph.ChangeSet
	if err := json.NewDecoder(out.Body).Decode(&changes); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &changes, nil
}

// StoredRow is one row of the postgres snapshot table.
type StoredRow struct {
	Entity     string
	Attributes map[string]any
	Sequence   int64
}

// ReadSnapshot returns the snapshot rows keyed by object id.
func ReadSnapshot(ctx context.Context, db *sql.DB, table string) (map[string]StoredRow, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		`SELECT object_id::text, entity_name, attributes::text, sequence FROM %s`, pq.QuoteIdentifier(table)))
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	out := map[string]StoredRow{}
	for rows.Next() {
		var (
			id, attrs string
			row       StoredRow
		)
		if err := rows.Scan(&id, &row.Entity, &attrs, &row.Sequence); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &row.Attributes); err != nil {
			return nil, err
		}
		out[id] = row
	}
	return out, rows.Err()
}
