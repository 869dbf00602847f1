package client

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/harnessgg/blenderbridge/internal/config"
)

// ObjectStore uploads render artifacts to an S3-compatible bucket
// (MinIO, R2, AWS). Publishing is optional; the bridge runs without it.
type ObjectStore struct {
	s3Client  *s3.Client
	presigner *s3.PresignClient
	bucket    string
	endpoint  string
	publicURL string
}

// NewObjectStore creates a store from storage config.
// Returns error if config is incomplete.
func NewObjectStore(cfg *config.StorageConfig) (*ObjectStore, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("incomplete object storage configuration")
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: cfg.Endpoint,
		}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// MinIO and other self-hosted endpoints serve buckets by path.
		o.UsePathStyle = true
	})

	return &ObjectStore{
		s3Client:  s3Client,
		presigner: s3.NewPresignClient(s3Client),
		bucket:    cfg.Bucket,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		publicURL: cfg.PublicURL,
	}, nil
}

// Bucket returns the configured bucket name.
func (o *ObjectStore) Bucket() string {
	return o.bucket
}

// UploadFile uploads a local file and returns its public URL.
func (o *ObjectStore) UploadFile(ctx context.Context, key, path, contentType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	_, err = o.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return o.PublicURL(key), nil
}

// Delete removes an object from the bucket.
func (o *ObjectStore) Delete(ctx context.Context, key string) error {
	_, err := o.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// SignedURL generates a presigned GET URL for private buckets.
func (o *ObjectStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := o.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// PublicURL returns the public URL for a key. Uses the configured public
// base URL when set, otherwise the raw endpoint with path-style access.
func (o *ObjectStore) PublicURL(key string) string {
	if o.publicURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(o.publicURL, "/"), key)
	}
	return fmt.Sprintf("%s/%s/%s", o.endpoint, o.bucket, key)
}
