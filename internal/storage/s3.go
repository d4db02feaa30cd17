// Package storage publishes packaged corpora to S3-compatible object storage
// and fetches them back.
package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hpungsan/arag/internal/config"
	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/errors"
)

// S3ClientConfig holds configuration for S3Client.
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
	UsePathStyle    bool
}

// ConfigFromApp maps application config to client settings.
func ConfigFromApp(cfg *config.Config) S3ClientConfig {
	return S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Bucket:          cfg.S3Bucket,
		Prefix:          cfg.S3Prefix,
		UsePathStyle:    cfg.S3UsePathStyle,
	}
}

// S3Client uploads and downloads archives.
type S3Client struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Client creates a client. Static credentials are used when both keys
// are set; otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.NewUnsupportedConfiguration("s3_bucket is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.NewUnsupportedConfiguration(fmt.Sprintf("failed to load AWS config: %v", err))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Bucket returns the configured bucket.
func (c *S3Client) Bucket() string { return c.bucket }

// ObjectKey joins prefix and name with slashes. An empty prefix yields name.
func ObjectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Key returns the object key for an archive file name under the client prefix.
func (c *S3Client) Key(name string) string {
	return ObjectKey(c.prefix, name)
}

// Upload writes the file at src to key. Returns the number of bytes sent.
func (c *S3Client) Upload(ctx context.Context, key, src string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFound(src)
		}
		return 0, errors.NewInternal(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/zip"),
	})
	if err != nil {
		return 0, classify(ctx, key, err)
	}
	return info.Size(), nil
}

// Download writes the object at key to dest, which must not exist. The file
// appears at dest only after the whole body has been written.
func (c *S3Client) Download(ctx context.Context, key, dest string) (int64, error) {
	if _, err := os.Lstat(dest); err == nil {
		return 0, errors.NewDestinationExists(dest)
	}

	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, classify(ctx, key, err)
	}
	defer out.Body.Close()

	af, err := corpus.CreateAtomic(dest, 0644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(af, out.Body)
	if err != nil {
		af.Abort()
		if ctx.Err() != nil {
			return 0, errors.NewCancelled("fetch")
		}
		return 0, errors.NewProviderUnavailable("s3", err)
	}
	if err := af.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func classify(ctx context.Context, key string, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled("s3 request")
	}
	var noKey *types.NoSuchKey
	if stderrors.As(err, &noKey) {
		return errors.NewNotFound(key)
	}
	var notFound *types.NotFound
	if stderrors.As(err, &notFound) {
		return errors.NewNotFound(key)
	}
	return errors.NewProviderUnavailable("s3", err)
}
