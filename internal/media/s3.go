// Package media stores resource images and payment evidence in S3.
package media

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/iliyamo/stay-reservation/internal/config"
	"github.com/iliyamo/stay-reservation/internal/model"
)

// MaxFileBytes caps one upload.
const MaxFileBytes = 10 << 20

var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// ObjectAPI is the subset of the S3 client used here.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store returns object keys as the opaque references kept on bookings
// and resources.
type S3Store struct {
	api    ObjectAPI
	bucket string
	prefix string
}

func NewS3Store(api ObjectAPI, cfg config.MediaConfig) *S3Store {
	return &S3Store{api: api, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}
}

// NewS3StoreFromEnv builds the client from the default AWS credential chain.
func NewS3StoreFromEnv(ctx context.Context, cfg config.MediaConfig) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(awsCfg), cfg), nil
}

// Store uploads every file or none: a failure part-way removes what was
// already written.
func (s *S3Store) Store(ctx context.Context, files []model.Upload) ([]string, error) {
	for _, f := range files {
		if err := check(f); err != nil {
			return nil, err
		}
	}
	keys := make([]string, 0, len(files))
	for _, f := range files {
		key := s.key(f.ContentType)
		_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        f.Body,
			ContentType: aws.String(f.ContentType),
		})
		if err != nil {
			for _, k := range keys {
				_ = s.Remove(ctx, k)
			}
			return nil, fmt.Errorf("put %s: %w", f.Filename, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *S3Store) Remove(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) key(contentType string) string {
	return path.Join(s.prefix, uuid.NewString()+allowedTypes[contentType])
}

func check(f model.Upload) error {
	if f.Body == nil {
		return fmt.Errorf("%w: %s is empty", model.ErrValidation, f.Filename)
	}
	if _, ok := allowedTypes[f.ContentType]; !ok {
		return fmt.Errorf("%w: %s has unsupported type %q", model.ErrValidation, f.Filename, f.ContentType)
	}
	if f.Size > MaxFileBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", model.ErrValidation, f.Filename, MaxFileBytes)
	}
	return nil
}
