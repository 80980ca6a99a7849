/*
Package storage puts message attachments and avatars into object storage and removes them
again by URL.
*/
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrDisabled is returned by every operation when no object storage is configured.
var ErrDisabled = errors.New("object storage is not configured")

// ServiceConfig holds the connection settings of an S3-compatible bucket.
type ServiceConfig struct {
	BucketName      string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// PublicBaseURL prefixes object keys to build the URLs handed to clients.
	// When empty, path-style URLs under Endpoint are used.
	PublicBaseURL string
}

// Service stores objects and returns the public URL they are served from.
type Service interface {
	// Upload writes body under key and returns its public URL.
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)

	// Delete removes the object previously returned by Upload. URLs that do not belong
	// to this service are ignored.
	Delete(ctx context.Context, url string) error
}

// NewService returns an S3-backed Service, or a disabled one when no bucket is configured.
func NewService(ctx context.Context, cfg ServiceConfig) (Service, error) {
	if cfg.BucketName == "" {
		return disabled{}, nil
	}
	return newS3Client(ctx, cfg)
}

type disabled struct{}

func (disabled) Upload(context.Context, string, string, io.Reader) (string, error) {
	return "", ErrDisabled
}

func (disabled) Delete(context.Context, string) error {
	return nil
}
