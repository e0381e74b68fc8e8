package s3store

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"bucketetl/internal/objectstore"
)

type fakeAPI struct {
	headErr   error
	listOut   *s3.ListObjectsV2Output
	listIn    *s3.ListObjectsV2Input
	getBody   string
	getErr    error
	deleteErr error
	deleted   []string
}

func (f *fakeAPI) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeAPI) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listIn = in
	return f.listOut, nil
}

func (f *fakeAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.getBody))}, nil
}

func (f *fakeAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestHeadBucket_NotFoundMapsToSentinel(t *testing.T) {
	t.Parallel()

	s := NewWithAPI(&fakeAPI{headErr: &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}}, 0)
	err := s.HeadBucket(context.Background(), "loans")
	if !errors.Is(err, objectstore.ErrBucketNotFound) {
		t.Fatalf("err = %v, want ErrBucketNotFound", err)
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("original API error lost: %v", err)
	}
}

func TestListObjects_ReadsPage(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{listOut: &s3.ListObjectsV2Output{
		Contents:              []types.Object{{Key: aws.String("a.csv")}, {Key: aws.String("b.csv")}},
		KeyCount:              aws.Int32(2),
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("tok-2"),
	}}
	s := NewWithAPI(api, 2)

	p, err := s.ListObjects(context.Background(), "loans", "in/", "tok-1")
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if got, want := strings.Join(p.Keys, ","), "a.csv,b.csv"; got != want {
		t.Fatalf("keys = %q, want %q", got, want)
	}
	if !p.Truncated || p.NextToken != "tok-2" || p.KeyCount != 2 {
		t.Fatalf("page = %+v", p)
	}
	if got := aws.ToString(api.listIn.ContinuationToken); got != "tok-1" {
		t.Fatalf("ContinuationToken = %q, want tok-1", got)
	}
	if got := aws.ToString(api.listIn.Prefix); got != "in/" {
		t.Fatalf("Prefix = %q, want in/", got)
	}
	if got := aws.ToInt32(api.listIn.MaxKeys); got != 2 {
		t.Fatalf("MaxKeys = %d, want 2", got)
	}
}

func TestListObjects_KeepsReportedKeyCount(t *testing.T) {
	t.Parallel()

	s := NewWithAPI(&fakeAPI{listOut: &s3.ListObjectsV2Output{KeyCount: aws.Int32(3)}}, 0)
	p, err := s.ListObjects(context.Background(), "loans", "", "")
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	if p.KeyCount != 3 || len(p.Keys) != 0 {
		t.Fatalf("page = %+v, want KeyCount 3 with no keys", p)
	}
}

func TestGetObject(t *testing.T) {
	t.Parallel()

	s := NewWithAPI(&fakeAPI{getBody: "id\n1\n"}, 0)
	rc, err := s.GetObject(context.Background(), "loans", "a.csv")
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "id\n1\n" {
		t.Fatalf("body = %q", b)
	}

	s = NewWithAPI(&fakeAPI{getErr: &smithy.GenericAPIError{Code: "NoSuchKey"}}, 0)
	if _, err := s.GetObject(context.Background(), "loans", "gone.csv"); !errors.Is(err, objectstore.ErrObjectNotFound) {
		t.Fatalf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestDeleteObject_MissingKeyIsNotAnError(t *testing.T) {
	t.Parallel()

	s := NewWithAPI(&fakeAPI{deleteErr: &smithy.GenericAPIError{Code: "NoSuchKey"}}, 0)
	if err := s.DeleteObject(context.Background(), "loans", "gone.csv"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}

	s = NewWithAPI(&fakeAPI{deleteErr: &smithy.GenericAPIError{Code: "AccessDenied"}}, 0)
	if err := s.DeleteObject(context.Background(), "loans", "a.csv"); err == nil {
		t.Fatalf("access denied should surface")
	}
}

func TestNew_BuildsClient(t *testing.T) {
	t.Parallel()

	s := New(Options{Region: "eu-central-1", Endpoint: "http://localhost:9000", PathStyle: true, PageSize: 50})
	if _, ok := s.api.(*s3.Client); !ok {
		t.Fatalf("api = %T, want *s3.Client", s.api)
	}
	if s.pageSize != 50 {
		t.Fatalf("pageSize = %d, want 50", s.pageSize)
	}
}
