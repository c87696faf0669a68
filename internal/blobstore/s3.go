package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

type S3StoreOptions struct {
	Bucket string
	Region string
	// API overrides the session-backed client, for tests.
	API s3iface.S3API
}

// S3Store keeps every record as one JSON object in a bucket.
type S3Store struct {
	bucket string
	api    s3iface.S3API
}

func NewS3Store(opts S3StoreOptions) (*S3Store, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	api := opts.API
	if api == nil {
		region := strings.TrimSpace(opts.Region)
		if region == "" {
			return nil, fmt.Errorf("region is required")
		}
		sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
		if err != nil {
			return nil, fmt.Errorf("create aws session: %w", err)
		}
		api = s3.New(sess)
	}
	return &S3Store{bucket: bucket, api: api}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, value []byte) error {
	if s == nil || s.api == nil {
		return fmt.Errorf("s3 store is not initialized")
	}
	key, err := validateKey(key)
	if err != nil {
		return err
	}
	_, err = s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.api == nil {
		return nil, fmt.Errorf("s3 store is not initialized")
	}
	key, err := validateKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchKey, "NotFound":
				return nil, ErrNotFound
			}
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", key, err)
	}
	return raw, nil
}
