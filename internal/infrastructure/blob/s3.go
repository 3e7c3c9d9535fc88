// Package blob removes tenant files from S3-compatible object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds S3 connection settings. Endpoint and the static keys are
// optional; without keys the default AWS credentials chain is used.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// S3Purger deletes every object under a key prefix.
type S3Purger struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewS3Purger creates a purger for cfg.Bucket
func NewS3Purger(ctx context.Context, cfg Config, logger *slog.Logger, optFns ...func(*s3.Options)) (*S3Purger, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		for _, fn := range optFns {
			fn(o)
		}
	})
	return &S3Purger{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// PurgePrefix deletes all objects whose key starts with prefix and returns
// how many were removed. It stops at the first failed delete.
func (p *S3Purger) PurgePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("refusing to purge an empty prefix")
	}
	pages := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})

	deleted := 0
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(p.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return deleted, fmt.Errorf("delete %s: %w", *obj.Key, err)
			}
			deleted++
		}
	}

	p.logger.Info("purged blobs",
		slog.String("bucket", p.bucket),
		slog.String("prefix", prefix),
		slog.Int("count", deleted),
	)
	return deleted, nil
}
