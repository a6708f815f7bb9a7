package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/objgraph"
	"go.uber.org/zap"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Sink writes each change set as one JSON document under
// <prefix>/<zero-padded sequence>.json.
type S3Sink struct {
	uploader uploader
	lister   s3.ListObjectsV2APIClient
	bucket   string
	prefix   string
}

var (
	_ objgraph.Sink             = (*S3Sink)(nil)
	_ objgraph.SequenceReporter = (*S3Sink)(nil)
)

const sequenceDigits = 20

// NewS3Sink builds an uploader from the AWS default chain, or from static
// credentials when cfg carries them.
func NewS3Sink(ctx context.Context, cfg objgraph.S3Config) (*S3Sink, error) {
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newS3Sink(manager.NewUploader(client), client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3Client builds an S3 client for cfg.
func NewS3Client(ctx context.Context, cfg objgraph.S3Config) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

func newS3Sink(up uploader, lister s3.ListObjectsV2APIClient, bucket, prefix string) *S3Sink {
	return &S3Sink{uploader: up, lister: lister, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Sink) Name() string { return objgraph.DriverS3 }

// Key returns the object key a change set with the given sequence is written to.
func (s *S3Sink) Key(sequence int64) string {
	name := fmt.Sprintf("%0*d.json", sequenceDigits, sequence)
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *S3Sink) Persist(ctx context.Context, changes *objgraph.ChangeSet) error {
	body, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode change set: %w", err)
	}
	key := s.Key(changes.Sequence)

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return classifyS3Error(s.bucket, key, err)
	}
	zap.S().Debugw("uploaded change set", "bucket", s.bucket, "key", key, "bytes", len(body))
	return nil
}

// LastSequence lists the prefix and returns the highest sequence written so
// far. Keys that are not change documents are ignored.
func (s *S3Sink) LastSequence(ctx context.Context) (int64, error) {
	if s.lister == nil {
		return 0, nil
	}
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix + "/")
	}

	var last int64
	pages := s3.NewListObjectsV2Paginator(s.lister, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			if seq, ok := s.sequenceOf(aws.ToString(obj.Key)); ok && seq > last {
				last = seq
			}
		}
	}
	return last, nil
}

func (s *S3Sink) sequenceOf(key string) (int64, bool) {
	if s.prefix != "" {
		var found bool
		if key, found = strings.CutPrefix(key, s.prefix+"/"); !found {
			return 0, false
		}
	}
	digits, found := strings.CutSuffix(key, ".json")
	if !found || len(digits) != sequenceDigits {
		return 0, false
	}
	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func (s *S3Sink) Close() error { return nil }

// classifyS3Error turns an upload failure into a GraphError carrying the
// service error code when the SDK reports one.
func classifyS3Error(bucket, key string, err error) error {
	ge := objgraph.NewGraphError(objgraph.ErrorTypePersistence, objgraph.ErrCodeCloudRequestFailed,
		fmt.Sprintf("upload to s3://%s/%s failed", bucket, key)).
		WithDetail("bucket", bucket).
		WithDetail("key", key).
		WithCause(err)

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		ge = ge.WithDetail("code", apiErr.ErrorCode()).WithDetail("fault", apiErr.ErrorFault().String())
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		ge.Code = objgraph.ErrCodeContextCanceled
	}
	return ge
}
