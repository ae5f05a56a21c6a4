// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package s3cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"willnorris.com/go/dynimage"
	"willnorris.com/go/dynimage/internal/cachetest"
)

type object struct {
	data     []byte
	metadata map[string]*string
	modified time.Time
}

// mockS3Client is a mock implementation of the S3 client interface
type mockS3Client struct {
	s3iface.S3API

	mu      sync.Mutex
	storage map[string]object
	err     error // returned by every call, if set
}

func newMockS3Client() *mockS3Client {
	return &mockS3Client{
		storage: make(map[string]object),
	}
}

func (m *mockS3Client) HeadObjectWithContext(ctx aws.Context, input *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	obj, ok := m.storage[*input.Key]
	if !ok {
		return nil, awserr.NewRequestFailure(awserr.New("NotFound", "Not Found", nil), http.StatusNotFound, "")
	}
	// S3 returns canonicalized metadata keys
	md := make(map[string]*string)
	for k, v := range obj.metadata {
		md[http.CanonicalHeaderKey(k)] = v
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		LastModified:  aws.Time(obj.modified),
		Metadata:      md,
	}, nil
}

func (m *mockS3Client) GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if obj, ok := m.storage[*input.Key]; ok {
		return &s3.GetObjectOutput{
			Body: io.NopCloser(bytes.NewReader(obj.data)),
		}, nil
	}
	return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
}

func (m *mockS3Client) PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.storage[*input.Key] = object{data: data, metadata: input.Metadata, modified: time.Now()}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) DeleteObjectWithContext(ctx aws.Context, input *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	delete(m.storage, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

var testID = dynimage.Identity{SourcePath: "/img.jpg", Width: 10, Height: 10, Mode: dynimage.Fill, Format: dynimage.JPEG}

func TestCache(t *testing.T) {
	cachetest.Run(t, func(t *testing.T) dynimage.Cache {
		return NewWithClient(newMockS3Client(), "test-bucket", "test-prefix")
	})
}

func TestCache_ObjectKey(t *testing.T) {
	mock := newMockS3Client()
	c := NewWithClient(mock, "test-bucket", "test-prefix")
	lm := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := c.Add(context.Background(), testID, []byte("jpeg"), lm); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	key := testID.Key()
	want := "test-prefix/" + key[0:2] + "/" + key + ".jpg"
	obj, ok := mock.storage[want]
	if !ok {
		t.Fatalf("object %q not written, have %v", want, mock.storage)
	}
	if got := aws.StringValue(obj.metadata[modifiedKey]); got != "2026-01-01T00:00:00Z" {
		t.Errorf("object metadata %s = %q, want %q", modifiedKey, got, "2026-01-01T00:00:00Z")
	}
}

func TestCache_Errors(t *testing.T) {
	mock := newMockS3Client()
	mock.err = awserr.New("InternalError", "boom", nil)
	c := NewWithClient(mock, "test-bucket", "")
	ctx := context.Background()
	lm := time.Now()

	if err := c.Add(ctx, testID, []byte("x"), lm); !errors.Is(err, dynimage.ErrCacheIO) {
		t.Errorf("Add returned %v, want ErrCacheIO", err)
	}
	if _, ok, err := c.Get(ctx, testID, lm); ok || !errors.Is(err, dynimage.ErrCacheIO) {
		t.Errorf("Get returned %v, %v, want miss and ErrCacheIO", ok, err)
	}
	if err := c.Remove(ctx, testID); !errors.Is(err, dynimage.ErrCacheIO) {
		t.Errorf("Remove returned %v, want ErrCacheIO", err)
	}
}

func TestCache_MissingMetadata(t *testing.T) {
	mock := newMockS3Client()
	c := NewWithClient(mock, "test-bucket", "")
	uploaded := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.storage[c.objectKey(testID)] = object{data: []byte("x"), modified: uploaded}

	item, ok, err := c.Get(context.Background(), testID, uploaded)
	if err != nil || !ok {
		t.Fatalf("Get returned %v, %v, want hit", ok, err)
	}
	if !item.LastModified.Equal(uploaded) {
		t.Errorf("item.LastModified = %v, want object modification time %v", item.LastModified, uploaded)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		url            string
		bucket, prefix string
	}{
		{"s3://us-west-2/test-bucket", "test-bucket", ""},
		{"s3://us-west-2/test-bucket/test-prefix", "test-bucket", "test-prefix"},
		{"s3://us-west-2/test-bucket/a/b?endpoint=localhost:9000&s3ForcePathStyle=1", "test-bucket", "a/b"},
	}

	for _, tt := range tests {
		c, err := New(tt.url)
		if err != nil {
			t.Errorf("New(%q) returned error: %v", tt.url, err)
			continue
		}
		if c.bucket != tt.bucket {
			t.Errorf("New(%q) bucket = %q, want %q", tt.url, c.bucket, tt.bucket)
		}
		if c.prefix != tt.prefix {
			t.Errorf("New(%q) prefix = %q, want %q", tt.url, c.prefix, tt.prefix)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("x"), false},
		{awserr.New(s3.ErrCodeNoSuchKey, "", nil), true},
		{awserr.New("NotFound", "", nil), true},
		{awserr.NewRequestFailure(awserr.New("Whatever", "", nil), http.StatusNotFound, ""), true},
		{awserr.NewRequestFailure(awserr.New("AccessDenied", "", nil), http.StatusForbidden, ""), false},
	}

	for _, tt := range tests {
		if got := isNotFound(tt.err); got != tt.want {
			t.Errorf("isNotFound(%v) returned %v, want %v", tt.err, got, tt.want)
		}
	}
}
