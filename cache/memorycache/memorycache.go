// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

// Package memorycache provides a dynimage.Cache that holds images in memory,
// bounded by total size and optionally by age.
package memorycache

import (
	"bytes"
	"context"
	"encoding/gob"
	"math"
	"time"

	"github.com/die-net/lrucache"
	"willnorris.com/go/dynimage"
)

// entry is the value stored in the LRU for each image.
type entry struct {
	Data         []byte
	LastModified time.Time
}

// Cache is an in-memory dynimage.Cache.  It is safe for concurrent use.
type Cache struct {
	lru *lrucache.LruCache
}

var _ dynimage.Cache = (*Cache)(nil)

// New returns a Cache holding at most maxSize bytes.  Entries older than
// maxAge are discarded; zero means entries never expire.  maxAge has a
// resolution of whole seconds, rounded up.
func New(maxSize int64, maxAge time.Duration) *Cache {
	return &Cache{lru: lrucache.New(maxSize, ageSeconds(maxAge))}
}

// ageSeconds converts d to the whole seconds lrucache expects, rounding up
// so that short ages do not become zero.
func ageSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// Size returns the number of bytes currently held.
func (c *Cache) Size() int64 {
	return c.lru.Size()
}

func (c *Cache) Add(ctx context.Context, id dynimage.Identity, content []byte, lastModified time.Time) error {
	var buf bytes.Buffer
	e := entry{Data: content, LastModified: lastModified}
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return dynimage.NewCacheError("add", id, err)
	}
	c.lru.Set(id.Key(), buf.Bytes())
	return nil
}

func (c *Cache) Get(ctx context.Context, id dynimage.Identity, sourceModified time.Time) (*dynimage.Item, bool, error) {
	key := id.Key()
	b, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}

	var e entry
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&e); err != nil {
		c.lru.Delete(key)
		return nil, false, dynimage.NewCacheError("get", id, err)
	}
	if dynimage.Stale(e.LastModified, sourceModified) {
		c.lru.Delete(key)
		return nil, false, nil
	}
	return dynimage.NewItem(key, e.Data, e.LastModified), true, nil
}

func (c *Cache) Remove(ctx context.Context, id dynimage.Identity) error {
	c.lru.Delete(id.Key())
	return nil
}
