package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/thejerf/abtime"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// S3Store stores uploads in an S3 bucket under prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	cfg    Config
	clock  abtime.AbstractTime
}

// NewS3Store creates a store writing to bucket. A nil clock uses wall time.
func NewS3Store(client S3API, bucket, prefix string, cfg Config, clock abtime.AbstractTime) (*S3Store, error) {
	if client == nil {
		return nil, errors.New("upload: s3 client required")
	}
	if bucket == "" {
		return nil, errors.New("upload: s3 bucket required")
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		cfg:    cfg,
		clock:  clock,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	return s.prefix + key
}

// Save uploads the file with one PutObject.
func (s *S3Store) Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	data, sniffed, err := readLimited(s.cfg, size, r)
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	key, err := NewKey(filename, now)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(sniffed),
		Metadata: map[string]string{
			"original-filename": SanitizeFilename(filename),
			"declared-type":     contentType,
			"upload-time":       now.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload: s3 put: %w", err)
	}
	return key, nil
}

// Open streams the object body for key.
func (s *S3Store) Open(ctx context.Context, key string) (*File, error) {
	if !ValidKey(key) {
		return nil, ErrNotFound
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("upload: s3 get: %w", err)
	}

	f := &File{
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
		ModTime:     aws.ToTime(out.LastModified),
		Reader:      out.Body,
	}
	if f.ContentType == "" {
		f.ContentType = "application/octet-stream"
	}
	return f, nil
}

// Cleanup lists the prefix and deletes expired objects keep does not claim.
func (s *S3Store) Cleanup(ctx context.Context, maxAge time.Duration, keep func(key string) bool) (int, error) {
	cutoff := s.clock.Now().Add(-maxAge)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	removed := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return removed, fmt.Errorf("upload: s3 list: %w", err)
		}
		for _, obj := range page.Contents {
			objKey := aws.ToString(obj.Key)
			key := strings.TrimPrefix(objKey, s.prefix)
			if !ValidKey(key) || obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
				continue
			}
			if keep != nil && keep(key) {
				continue
			}
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(objKey),
			}); err != nil {
				return removed, fmt.Errorf("upload: s3 delete: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}
