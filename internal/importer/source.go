package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"
)

// Opener resolves an import path to a byte stream.
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

type SourceConfig struct {
	S3Region           string
	S3Endpoint         string
	GCSCredentialsFile string
}

// Sources opens local files, s3://bucket/key and gs://bucket/object paths.
// Cloud clients are built per call so a missing credential only fails the
// import that needs it.
type Sources struct {
	cfg SourceConfig
}

func NewSources(cfg SourceConfig) *Sources {
	return &Sources{cfg: cfg}
}

func (s *Sources) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(path, "s3://"):
		bucket, key, err := splitBucketPath(strings.TrimPrefix(path, "s3://"))
		if err != nil {
			return nil, err
		}
		return s.openS3(ctx, bucket, key)
	case strings.HasPrefix(path, "gs://"):
		bucket, object, err := splitBucketPath(strings.TrimPrefix(path, "gs://"))
		if err != nil {
			return nil, err
		}
		return s.openGCS(ctx, bucket, object)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		return f, nil
	}
}

func splitBucketPath(p string) (string, string, error) {
	bucket, key, ok := strings.Cut(p, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid object path %q: want bucket/key", p)
	}
	return bucket, key, nil
}

func (s *Sources) openS3(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if s.cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.cfg.S3Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

func (s *Sources) openGCS(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	var opts []option.ClientOption
	if s.cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.cfg.GCSCredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	return &gcsReader{Reader: r, client: client}, nil
}

type gcsReader struct {
	*gcs.Reader
	client *gcs.Client
}

func (r *gcsReader) Close() error {
	err := r.Reader.Close()
	r.client.Close()
	return err
}
