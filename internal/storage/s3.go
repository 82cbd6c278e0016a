package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/config"
)

// ObjectAPI is the subset of the S3 client used by S3Store.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps photos in an S3-compatible bucket.
type S3Store struct {
	api        ObjectAPI
	bucket     string
	publicBase string
	logger     *zap.Logger
}

// NewS3Store builds an S3 client from the configured region, endpoint and
// static credentials.
func NewS3Store(cfg *config.Config, logger *zap.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("Using S3 photo storage", zap.String("bucket", cfg.BucketName))
	return NewS3StoreWithAPI(client, cfg.BucketName, cfg.PublicBaseURL, logger), nil
}

// NewS3StoreWithAPI wraps an existing object API.
func NewS3StoreWithAPI(api ObjectAPI, bucket, publicBase string, logger *zap.Logger) *S3Store {
	return &S3Store{
		api:        api,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		logger:     logger,
	}
}

// Upload stores r under key.
func (s *S3Store) Upload(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error) {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		s.logger.Error("Failed to upload photo", zap.String("key", key), zap.Error(err))
		return "", &apperror.NetworkError{Op: "upload photo", Err: err}
	}
	return s.publicURL(key), nil
}

// Delete removes the object behind publicURL.
func (s *S3Store) Delete(ctx context.Context, publicURL string) error {
	key, err := s.keyFor(publicURL)
	if err != nil {
		return err
	}
	_, err = s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error("Failed to delete photo", zap.String("key", key), zap.Error(err))
		return &apperror.NetworkError{Op: "delete photo", Err: err}
	}
	return nil
}

func (s *S3Store) publicURL(key string) string {
	return s.publicBase + "/" + s.bucket + "/" + key
}

// keyFor strips the public prefix from a URL produced by Upload.
func (s *S3Store) keyFor(publicURL string) (string, error) {
	prefix := s.publicBase + "/" + s.bucket + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return "", apperror.Invalid("photo_path", "URL does not belong to bucket %s", s.bucket)
	}
	key, err := url.PathUnescape(strings.TrimPrefix(publicURL, prefix))
	if err != nil || key == "" {
		return "", apperror.Invalid("photo_path", "malformed photo URL")
	}
	return key, nil
}
