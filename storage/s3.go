package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"fsbo_scrooper/config"
)

// ArtifactSink keeps debug screenshots of failed scrapes.
type ArtifactSink interface {
	// Save stores a PNG for zipCode and returns where it went.
	Save(ctx context.Context, zipCode string, png []byte, at time.Time) (string, error)
}

// ArtifactKey is the object key for a screenshot.
func ArtifactKey(zipCode string, at time.Time) string {
	return fmt.Sprintf("artifacts/%s/%s.png", zipCode, at.UTC().Format("20060102T150405Z"))
}

// S3Uploader uploads files to S3-compatible storage
type S3Uploader struct {
	client *s3.Client
	cfg    config.S3Config
}

func NewS3Uploader(ctx context.Context, cfg config.S3Config) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Uploader{client: client, cfg: cfg}, nil
}

// Upload uploads data to S3 with the given key
func (u *S3Uploader) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (u *S3Uploader) Save(ctx context.Context, zipCode string, png []byte, at time.Time) (string, error) {
	key := ArtifactKey(zipCode, at)
	if err := u.Upload(ctx, key, bytes.NewReader(png), "image/png"); err != nil {
		return "", err
	}
	return PublicURL(u.cfg, key), nil
}

// PublicURL returns the public URL for an S3 key
func PublicURL(cfg config.S3Config, key string) string {
	if cfg.Endpoint != "" {
		host := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
		if strings.Contains(host, "digitaloceanspaces.com") {
			// DO Spaces: https://{bucket}.{region}.digitaloceanspaces.com/{key}
			return fmt.Sprintf("https://%s.%s/%s", cfg.Bucket, host, key)
		}
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket, key)
	}
	// AWS S3: https://{bucket}.s3.{region}.amazonaws.com/{key}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", cfg.Bucket, cfg.Region, key)
}

// LocalArtifacts writes screenshots under a directory.
type LocalArtifacts struct {
	Dir string
}

func (l LocalArtifacts) Save(ctx context.Context, zipCode string, png []byte, at time.Time) (string, error) {
	path := filepath.Join(l.Dir, filepath.FromSlash(ArtifactKey(zipCode, at)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// NewArtifactSink uses S3 when a bucket is configured and the local
// directory otherwise.
func NewArtifactSink(ctx context.Context, s3cfg config.S3Config, dir string) (ArtifactSink, error) {
	if s3cfg.Enabled() {
		return NewS3Uploader(ctx, s3cfg)
	}
	return LocalArtifacts{Dir: dir}, nil
}
