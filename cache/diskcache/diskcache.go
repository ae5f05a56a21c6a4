// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

// Package diskcache provides a dynimage.Cache that stores images as files on
// local disk.
//
// Images are stored at "{root}/{key[0:2]}/{key}.{ext}", so that a cached
// image can be located from its identity alone.  Each file's modification
// time records the time the image was cached.
package diskcache

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/peterbourgon/diskv"
	"willnorris.com/go/dynimage"
)

// Cache is a dynimage.Cache storing images on disk.
type Cache struct {
	root string
	d    *diskv.Diskv
}

var _ dynimage.Cache = (*Cache)(nil)

// chtimes sets the modification time of cached files.
var chtimes = os.Chtimes

// shard stores file "c0ffee.jpg" as "c0/c0ffee.jpg".
func shard(s string) []string {
	return []string{s[0:2]}
}

// New returns a Cache storing files under root.  Files are written to a
// temporary directory under root and renamed into place, so readers never
// observe partially written images.
func New(root string) *Cache {
	d := diskv.New(diskv.Options{
		BasePath:  root,
		Transform: shard,
		TempDir:   filepath.Join(root, ".tmp"),
		PathPerm:  0755,
		FilePerm:  0644,
	})
	return &Cache{root: root, d: d}
}

// Path returns the location of the file caching id.
func (c *Cache) Path(id dynimage.Identity) string {
	name := id.Filename()
	return filepath.Join(append(append([]string{c.root}, shard(name)...), name)...)
}

func (c *Cache) Add(ctx context.Context, id dynimage.Identity, content []byte, lastModified time.Time) error {
	if err := c.d.Write(id.Filename(), content); err != nil {
		return dynimage.NewCacheError("add", id, err)
	}
	if err := chtimes(c.Path(id), lastModified, lastModified); err != nil {
		c.d.Erase(id.Filename())
		return dynimage.NewCacheError("add", id, err)
	}
	return nil
}

func (c *Cache) Get(ctx context.Context, id dynimage.Identity, sourceModified time.Time) (*dynimage.Item, bool, error) {
	fi, err := os.Stat(c.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dynimage.NewCacheError("get", id, err)
	}

	if dynimage.Stale(fi.ModTime(), sourceModified) {
		if err := c.Remove(ctx, id); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	name := id.Filename()
	open := func(context.Context) (io.ReadCloser, error) {
		r, err := c.d.ReadStream(name, true)
		if err != nil {
			return nil, dynimage.NewCacheError("get", id, err)
		}
		return r, nil
	}
	return dynimage.NewLazyItem(id.Key(), fi.Size(), fi.ModTime(), open), true, nil
}

func (c *Cache) Remove(ctx context.Context, id dynimage.Identity) error {
	err := c.d.Erase(id.Filename())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return dynimage.NewCacheError("remove", id, err)
	}
	return nil
}
