// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

// Package gcscache provides a dynimage.Cache that stores images on Google
// Cloud Storage.
//
// Objects are named "{prefix}/{key[0:2]}/{key}.{ext}".  The time an image
// was cached is stored in the object's metadata.
package gcscache

import (
	"context"
	"errors"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"willnorris.com/go/dynimage"
)

// metadata key holding the time an image was cached
const modifiedKey = "dynimage-modified"

// objectHandle is the subset of *storage.ObjectHandle used by Cache.
type objectHandle interface {
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
	NewReader(ctx context.Context) (io.ReadCloser, error)
	NewWriter(ctx context.Context, contentType string, metadata map[string]string) io.WriteCloser
	Delete(ctx context.Context) error
}

// bucketHandle is the subset of *storage.BucketHandle used by Cache.
type bucketHandle interface {
	Object(name string) objectHandle
}

type gcsBucket struct {
	*storage.BucketHandle
}

func (b gcsBucket) Object(name string) objectHandle {
	return gcsObject{b.BucketHandle.Object(name)}
}

type gcsObject struct {
	*storage.ObjectHandle
}

func (o gcsObject) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return o.ObjectHandle.NewReader(ctx)
}

func (o gcsObject) NewWriter(ctx context.Context, contentType string, metadata map[string]string) io.WriteCloser {
	w := o.ObjectHandle.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	return w
}

// Cache is a dynimage.Cache storing images in a GCS bucket.
type Cache struct {
	bucket bucketHandle
	prefix string
}

var _ dynimage.Cache = (*Cache)(nil)

// New constructs a Cache storing files in the specified GCS bucket.  If prefix
// is not empty, objects will be prefixed with that path. Credentials should
// be specified using one of the mechanisms supported for Application Default
// Credentials (see https://cloud.google.com/docs/authentication/production)
func New(ctx context.Context, bucket, prefix string) (*Cache, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return NewWithBucket(gcsBucket{client.Bucket(bucket)}, prefix), nil
}

// NewWithBucket returns a Cache storing objects in bucket.
func NewWithBucket(bucket bucketHandle, prefix string) *Cache {
	return &Cache{bucket: bucket, prefix: prefix}
}

func (c *Cache) object(id dynimage.Identity) objectHandle {
	name := id.Filename()
	return c.bucket.Object(path.Join(c.prefix, name[0:2], name))
}

func (c *Cache) Add(ctx context.Context, id dynimage.Identity, content []byte, lastModified time.Time) error {
	md := map[string]string{modifiedKey: lastModified.UTC().Format(time.RFC3339Nano)}
	w := c.object(id).NewWriter(ctx, id.Format.ContentType(), md)
	if _, err := w.Write(content); err != nil {
		w.Close()
		return dynimage.NewCacheError("add", id, err)
	}
	// the object is committed on Close
	return dynimage.NewCacheError("add", id, w.Close())
}

func (c *Cache) Get(ctx context.Context, id dynimage.Identity, sourceModified time.Time) (*dynimage.Item, bool, error) {
	obj := c.object(id)
	attrs, err := obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dynimage.NewCacheError("get", id, err)
	}

	modified := attrs.Updated
	if t, err := time.Parse(time.RFC3339Nano, attrs.Metadata[modifiedKey]); err == nil {
		modified = t
	}
	if dynimage.Stale(modified, sourceModified) {
		if err := c.Remove(ctx, id); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		r, err := obj.NewReader(ctx)
		if err != nil {
			return nil, dynimage.NewCacheError("get", id, err)
		}
		return r, nil
	}
	return dynimage.NewLazyItem(id.Key(), attrs.Size, modified, open), true, nil
}

func (c *Cache) Remove(ctx context.Context, id dynimage.Identity) error {
	err := c.object(id).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return dynimage.NewCacheError("remove", id, err)
}
