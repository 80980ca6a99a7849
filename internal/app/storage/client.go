package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"chatterbox/internal/pkg/logx"
)

// s3Client implements Service on an S3-compatible endpoint.
type s3Client struct {
	cfg      ServiceConfig
	baseURL  string
	client   *s3.Client
	uploader *manager.Uploader
	log      zerolog.Logger
}

func newS3Client(ctx context.Context, cfg ServiceConfig) (*s3Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	sdkCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 client configuration: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &s3Client{
		cfg:      cfg,
		baseURL:  publicBaseURL(cfg),
		client:   client,
		uploader: manager.NewUploader(client),
		log:      logx.Component("storage"),
	}, nil
}

func publicBaseURL(cfg ServiceConfig) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.BucketName
}

// Upload streams body to the bucket through the multipart uploader.
func (c *s3Client) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.BucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("S3 upload failed")
		return "", fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	return c.baseURL + "/" + key, nil
}

// Delete removes the object addressed by url.
func (c *s3Client) Delete(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, c.baseURL+"/")
	if !ok || key == "" {
		c.log.Debug().Str("url", url).Msg("Ignoring delete for foreign URL")
		return nil
	}

	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("S3 delete failed")
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}

	return nil
}
