// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

// Package s3cache provides a dynimage.Cache that stores images on Amazon S3
// or an S3 compatible service.
//
// Objects are named "{prefix}/{key[0:2]}/{key}.{ext}".  The time an image
// was cached is stored in the object's metadata.
package s3cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"willnorris.com/go/dynimage"
)

// metadata key holding the time an image was cached
const modifiedKey = "Dynimage-Modified"

// Cache is a dynimage.Cache storing images in an S3 bucket.
type Cache struct {
	s3iface.S3API
	bucket, prefix string
}

var _ dynimage.Cache = (*Cache)(nil)

// New constructs a cache configured using the provided URL string.  URL
// should be of the form: "s3://region/bucket/optional-path-prefix".
//
// The query parameters "endpoint", "disableSSL=1" and "s3ForcePathStyle=1"
// configure access to S3 compatible services such as minio.
func New(s string) (*Cache, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}

	region := u.Host
	path := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	bucket := path[0]
	var prefix string
	if len(path) > 1 {
		prefix = path[1]
	}

	config := aws.NewConfig().WithRegion(region)

	// allow overriding some additional config options, mostly useful when
	// working with s3-compatible services other than AWS.
	if v := u.Query().Get("endpoint"); v != "" {
		config = config.WithEndpoint(v)
	}
	if v := u.Query().Get("disableSSL"); v == "1" {
		config = config.WithDisableSSL(true)
	}
	if v := u.Query().Get("s3ForcePathStyle"); v == "1" {
		config = config.WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, err
	}

	return NewWithClient(s3.New(sess), bucket, prefix), nil
}

// NewWithClient returns a Cache storing objects in bucket using client.
func NewWithClient(client s3iface.S3API, bucket, prefix string) *Cache {
	return &Cache{
		S3API:  client,
		bucket: bucket,
		prefix: prefix,
	}
}

func (c *Cache) objectKey(id dynimage.Identity) string {
	name := id.Filename()
	return path.Join(c.prefix, name[0:2], name)
}

func (c *Cache) Add(ctx context.Context, id dynimage.Identity, content []byte, lastModified time.Time) error {
	_, err := c.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Body:        bytes.NewReader(content),
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.objectKey(id)),
		ContentType: aws.String(id.Format.ContentType()),
		Metadata: map[string]*string{
			modifiedKey: aws.String(lastModified.UTC().Format(time.RFC3339Nano)),
		},
	})
	return dynimage.NewCacheError("add", id, err)
}

func (c *Cache) Get(ctx context.Context, id dynimage.Identity, sourceModified time.Time) (*dynimage.Item, bool, error) {
	key := c.objectKey(id)
	head, err := c.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dynimage.NewCacheError("get", id, err)
	}

	modified := cachedTime(head)
	if dynimage.Stale(modified, sourceModified) {
		if err := c.Remove(ctx, id); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		resp, err := c.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, dynimage.NewCacheError("get", id, err)
		}
		return resp.Body, nil
	}
	return dynimage.NewLazyItem(id.Key(), aws.Int64Value(head.ContentLength), modified, open), true, nil
}

func (c *Cache) Remove(ctx context.Context, id dynimage.Identity) error {
	_, err := c.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(id)),
	})
	if isNotFound(err) {
		return nil
	}
	return dynimage.NewCacheError("remove", id, err)
}

// cachedTime returns the time recorded in the object's metadata, falling
// back to the object's own modification time.
func cachedTime(head *s3.HeadObjectOutput) time.Time {
	// response metadata keys are canonicalized by the SDK
	for k, v := range head.Metadata {
		if !strings.EqualFold(k, modifiedKey) || v == nil {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, *v); err == nil {
			return t
		}
	}
	return aws.TimeValue(head.LastModified)
}

func isNotFound(err error) bool {
	var rerr awserr.RequestFailure
	if errors.As(err, &rerr) && rerr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
