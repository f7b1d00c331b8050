package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"clipforge/internal/infra"
)

// S3Store stores temporary reference assets in an S3-compatible bucket
// (AWS, Tigris, MinIO).
type S3Store struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3Store builds an S3Store from the service configuration.
func NewS3Store(ctx context.Context, cfg *infra.Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			// Path-style addressing is required for some S3-compatible
			// services.
			o.UsePathStyle = true
		}
	})

	publicBase := strings.TrimRight(cfg.S3PublicBaseURL, "/")
	if publicBase == "" {
		publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
	}

	return &S3Store{
		client:        client,
		bucket:        cfg.S3Bucket,
		publicBaseURL: publicBase,
	}, nil
}

// Upload puts the object under a generated temp key and returns its public
// URL plus the key as the deletable reference.
func (s *S3Store) Upload(ctx context.Context, data []byte, contentType string) (*Stored, error) {
	key := "tmp/" + uuid.NewString() + extensionFor(contentType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: put object: %w", err)
	}
	return &Stored{URL: s.publicBaseURL + "/" + key, Ref: key}, nil
}

// Delete removes a previously uploaded object.
func (s *S3Store) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("storage: delete object: %w", err)
	}
	return nil
}

var _ ObjectStore = (*S3Store)(nil)
