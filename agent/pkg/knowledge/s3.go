package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3LoaderConfig configures the S3 snapshot loader.
type S3LoaderConfig struct {
	Bucket      string
	Prefix      string // Optional key prefix for snapshot objects
	Region      string
	EndpointURL string // Optional custom endpoint (for MinIO testing)
	Logger      *slog.Logger
}

// S3Loader loads knowledge-base snapshots from S3. Snapshots are JSON
// encodings of Base, keyed with sortable timestamp prefixes so the latest
// snapshot is the alphabetically last key.
type S3Loader struct {
	client *s3.Client
	bucket string
	prefix string
	log    *slog.Logger
}

// NewS3Loader creates an S3 snapshot loader using default AWS credentials.
func NewS3Loader(ctx context.Context, cfg S3LoaderConfig) (*S3Loader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = true
		},
	}
	if cfg.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}

	return &S3Loader{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    cfg.Logger,
	}, nil
}

// LoadLatest fetches and decodes the most recent snapshot. The caller is
// expected to fall back to Default() when no snapshot is available.
func (l *S3Loader) LoadLatest(ctx context.Context) (*Base, error) {
	listOutput, err := l.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(l.prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(listOutput.Contents) == 0 {
		return nil, fmt.Errorf("no snapshots found in bucket %s", l.bucket)
	}

	keys := make([]string, 0, len(listOutput.Contents))
	for _, obj := range listOutput.Contents {
		if obj.Key != nil {
			keys = append(keys, *obj.Key)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	latestKey := keys[0]

	getOutput, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(latestKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", latestKey, err)
	}
	defer getOutput.Body.Close()

	data, err := io.ReadAll(getOutput.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot body: %w", err)
	}

	var base Base
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", latestKey, err)
	}
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot %s: %w", latestKey, err)
	}

	l.log.Info("loaded knowledge base snapshot", "key", latestKey, "clients", len(base.Clients))
	return &base, nil
}
