// Package s3 serves objects below a bucket prefix.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/fruitsalade/hostyoself/internal/catalog"
	"github.com/fruitsalade/hostyoself/internal/logging"
	"github.com/fruitsalade/hostyoself/internal/metrics"
	"github.com/fruitsalade/hostyoself/internal/retry"
)

// Config configures a bucket source.
type Config struct {
	Bucket    string
	Prefix    string
	Endpoint  string // empty for AWS
	Region    string
	AccessKey string // empty to use the default credential chain
	SecretKey string
}

// API is the subset of the S3 client the source uses.
type API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source lists a bucket prefix and opens objects on demand.
type Source struct {
	client API
	bucket string
	prefix string
	base   string
	retry  retry.Config
}

// New creates a source with an S3 client built from cfg.
func New(ctx context.Context, cfg Config) (*Source, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient creates a source using an existing client.
func NewWithClient(client API, bucket, prefix string) *Source {
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	base := bucket
	if prefix != "" {
		base = path.Base(strings.TrimSuffix(prefix, "/"))
	}
	return &Source{
		client: client,
		bucket: bucket,
		prefix: prefix,
		base:   base,
		retry:  retry.DefaultConfig(),
	}
}

// Entries lists every object below the prefix. Objects appear as if the
// prefix folder had been selected: "<prefix name>/<rest of key>".
func (s *Source) Entries(ctx context.Context) ([]*catalog.Entry, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var entries []*catalog.Entry
	for paginator.HasMorePages() {
		page, err := retry.DoWithResult(ctx, s.retry, func() (*s3.ListObjectsV2Output, error) {
			start := time.Now()
			out, err := paginator.NextPage(ctx)
			metrics.RecordS3Operation("list_objects", time.Since(start), err == nil)
			if err != nil && ctx.Err() == nil {
				return nil, retry.Retryable(err)
			}
			return out, err
		})
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}

		for _, obj := range page.Contents {
			if e := s.entry(obj.Key, obj.Size); e != nil {
				entries = append(entries, e)
			}
		}
	}
	return entries, nil
}

// Serve adds every listed object to dst.
func (s *Source) Serve(ctx context.Context, dst catalog.Adder) error {
	entries, err := s.Entries(ctx)
	if err != nil {
		return err
	}
	logging.Info("listed bucket",
		zap.String("bucket", s.bucket),
		zap.String("prefix", s.prefix),
		zap.Int("objects", len(entries)),
	)
	for _, e := range entries {
		if err := dst.Add(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) entry(key *string, size *int64) *catalog.Entry {
	k := aws.ToString(key)
	rest := strings.TrimPrefix(k, s.prefix)
	if rest == "" || strings.HasSuffix(rest, "/") {
		return nil
	}
	return &catalog.Entry{
		Name:         path.Base(rest),
		RelativePath: s.base + "/" + rest,
		Size:         aws.ToInt64(size),
		Content:      s.opener(k),
	}
}

var errNoBody = errors.New("empty object body")

func (s *Source) opener(key string) catalog.Opener {
	return catalog.OpenFunc(func(ctx context.Context) (io.ReadCloser, error) {
		start := time.Now()
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			metrics.RecordS3Operation("get_object", time.Since(start), false)
			return nil, fmt.Errorf("get object %s: %w", key, err)
		}
		metrics.RecordS3Operation("get_object", time.Since(start), true)
		if out.Body == nil {
			return nil, errNoBody
		}
		return out.Body, nil
	})
}
