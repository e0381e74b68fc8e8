// Package s3store adapts the AWS SDK v2 S3 client to objectstore.Store. It
// works against AWS and S3-compatible stores (MinIO, Hetzner, Ceph) through a
// custom endpoint with path-style addressing.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"bucketetl/internal/objectstore"
)

// API is the subset of *s3.Client used by Store.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Options configures the S3 client.
type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Endpoint overrides the AWS endpoint, e.g. "http://localhost:9000".
	Endpoint string
	// PathStyle forces bucket-in-path addressing (required by most
	// S3-compatible stores).
	PathStyle bool
	// PageSize is the MaxKeys of each listing call; 0 uses the server default.
	PageSize int32
}

// Store implements objectstore.Store over an S3 API.
type Store struct {
	api      API
	pageSize int32
}

// New builds an S3 client from opt. Without an access key the client signs
// nothing and relies on the bucket being publicly readable.
func New(opt Options) *Store {
	so := s3.Options{
		Region:       opt.Region,
		UsePathStyle: opt.PathStyle,
	}
	if opt.AccessKeyID != "" {
		so.Credentials = credentials.NewStaticCredentialsProvider(opt.AccessKeyID, opt.SecretAccessKey, opt.SessionToken)
	} else {
		so.Credentials = aws.AnonymousCredentials{}
	}
	if opt.Endpoint != "" {
		so.BaseEndpoint = aws.String(opt.Endpoint)
	}
	return &Store{api: s3.New(so), pageSize: opt.PageSize}
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, pageSize int32) *Store {
	return &Store{api: api, pageSize: pageSize}
}

func (s *Store) HeadBucket(ctx context.Context, bucket string) error {
	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return fmt.Errorf("s3: head bucket %s: %w", bucket, classifyHead(err))
	}
	return nil
}

func (s *Store) ListObjects(ctx context.Context, bucket, prefix, token string) (objectstore.Page, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}
	if s.pageSize > 0 {
		in.MaxKeys = aws.Int32(s.pageSize)
	}
	out, err := s.api.ListObjectsV2(ctx, in)
	if err != nil {
		return objectstore.Page{}, fmt.Errorf("s3: list %s: %w", bucket, classify(err))
	}
	keys := make([]string, 0, len(out.Contents))
	for _, o := range out.Contents {
		keys = append(keys, aws.ToString(o.Key))
	}
	p := objectstore.Page{
		Keys:      keys,
		KeyCount:  len(keys),
		Truncated: aws.ToBool(out.IsTruncated),
		NextToken: aws.ToString(out.NextContinuationToken),
	}
	if out.KeyCount != nil {
		p.KeyCount = int(*out.KeyCount)
	}
	return p, nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("s3: get %s/%s: %w", bucket, key, classify(err))
	}
	return out.Body, nil
}

// DeleteObject removes key. S3 already answers 204 for absent keys; a
// NoSuchKey from a stricter compatible store is treated the same way.
func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		if errors.Is(classify(err), objectstore.ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("s3: delete %s/%s: %w", bucket, key, classify(err))
	}
	return nil
}

// classify maps S3 error codes onto the objectstore sentinels, keeping the
// original error in the chain.
func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case "NoSuchBucket":
		return fmt.Errorf("%w: %w", objectstore.ErrBucketNotFound, err)
	case "NoSuchKey":
		return fmt.Errorf("%w: %w", objectstore.ErrObjectNotFound, err)
	}
	return err
}

// classifyHead also maps the bare status codes HeadBucket returns, since its
// responses carry no body.
func classifyHead(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "Forbidden", "AccessDenied":
			return fmt.Errorf("%w: %w", objectstore.ErrBucketNotFound, err)
		}
	}
	return classify(err)
}

var _ objectstore.Store = (*Store)(nil)
