package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"buzzchat/internal/pkg/logx"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// s3Client implements Service against an S3-compatible bucket.
type s3Client struct {
	cfg      ServiceConfig
	s3Client *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	log      zerolog.Logger
}

// newS3Client initializes the S3 client using a custom configuration that supports S3-compatible endpoints.
func newS3Client(ctx context.Context, cfg ServiceConfig) (*s3Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	sdkCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = true
	})

	return &s3Client{
		cfg:      cfg,
		s3Client: client,
		presign:  s3.NewPresignClient(client),
		uploader: manager.NewUploader(client),
		log:      logx.Component("storage").With().Str("bucket", cfg.S3BucketName).Logger(),
	}, nil
}

func (c *s3Client) Upload(ctx context.Context, key, contentType string, body []byte) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.S3BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("S3 upload failed")
		return fmt.Errorf("storage: upload %s: %w", key, err)
	}
	return nil
}

func (c *s3Client) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.cfg.S3BucketName),
		Key:    aws.String(key),
	}); err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return "", ErrObjectNotFound
		}
		return "", fmt.Errorf("storage: head %s: %w", key, err)
	}

	resp, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.S3BucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("Failed to presign download")
		return "", fmt.Errorf("storage: presign %s: %w", key, err)
	}
	return resp.URL, nil
}

func (c *s3Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.S3BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("S3 delete failed")
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}
