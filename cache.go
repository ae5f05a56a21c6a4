// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package dynimage

import (
	"bytes"
	"context"
	"io"
	"log"
	"time"
)

// Cache stores generated images by identity.
//
// Implementations other than NopCache wrap storage failures in a CacheError
// and return them; they never swallow them.
type Cache interface {
	// Add stores content as the generated image for id.  Adding an
	// identity that is already cached overwrites it.
	Add(ctx context.Context, id Identity, content []byte, lastModified time.Time) error

	// Get returns the cached image for id.  If sourceModified is after the
	// cached item's LastModified, the stale item is removed and Get
	// reports a miss.
	Get(ctx context.Context, id Identity, sourceModified time.Time) (item *Item, ok bool, err error)

	// Remove deletes the cached image for id.  Removing an identity that
	// is not cached is not an error.
	Remove(ctx context.Context, id Identity) error
}

// Item is a cached image.  Its content may be loaded lazily, so checking
// that an item exists does not require reading it.
type Item struct {
	Key          string
	LastModified time.Time
	Length       int64

	open func(context.Context) (io.ReadCloser, error)
}

// NewItem returns an Item holding content in memory.
func NewItem(key string, content []byte, lastModified time.Time) *Item {
	return &Item{
		Key:          key,
		LastModified: lastModified,
		Length:       int64(len(content)),
		open: func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

// NewLazyItem returns an Item whose content is read by calling open.
func NewLazyItem(key string, length int64, lastModified time.Time, open func(context.Context) (io.ReadCloser, error)) *Item {
	return &Item{
		Key:          key,
		LastModified: lastModified,
		Length:       length,
		open:         open,
	}
}

// Open returns a reader for the item's content.  The caller must close it.
func (i *Item) Open(ctx context.Context) (io.ReadCloser, error) {
	return i.open(ctx)
}

// Bytes reads the item's full content.
func (i *Item) Bytes(ctx context.Context) ([]byte, error) {
	r, err := i.open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Stale reports whether an item last modified at cached is invalid for a
// source last modified at source.
func Stale(cached, source time.Time) bool {
	return source.After(cached)
}

// NopCache provides a no-op cache implementation that doesn't actually cache anything.
var NopCache = new(nopCache)

type nopCache struct{}

func (c nopCache) Add(context.Context, Identity, []byte, time.Time) error { return nil }
func (c nopCache) Remove(context.Context, Identity) error                 { return nil }
func (c nopCache) Get(context.Context, Identity, time.Time) (*Item, bool, error) {
	return nil, false, nil
}

// Tiered returns a cache that checks first, then second.  Items found only
// in second are copied into first; a failed copy is logged and the item is
// still returned.  Adds and removes go to both.
func Tiered(first, second Cache) Cache {
	return &tiered{first: first, second: second}
}

type tiered struct {
	first, second Cache

	// logger for promotion failures.  If nil, log.Printf is used.
	logger *log.Logger
}

func (c *tiered) Get(ctx context.Context, id Identity, sourceModified time.Time) (*Item, bool, error) {
	if item, ok, err := c.first.Get(ctx, id, sourceModified); ok || err != nil {
		return item, ok, err
	}

	item, ok, err := c.second.Get(ctx, id, sourceModified)
	if !ok || err != nil {
		return nil, false, err
	}

	b, err := item.Bytes(ctx)
	if err != nil {
		return nil, false, NewCacheError("get", id, err)
	}
	if err := c.first.Add(ctx, id, b, item.LastModified); err != nil {
		cacheErrorCount.Inc()
		c.logf("promoting %v to first cache tier: %v", id, err)
	}
	return NewItem(item.Key, b, item.LastModified), true, nil
}

func (c *tiered) logf(format string, v ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, v...)
	} else {
		log.Printf(format, v...)
	}
}

func (c *tiered) Add(ctx context.Context, id Identity, content []byte, lastModified time.Time) error {
	if err := c.first.Add(ctx, id, content, lastModified); err != nil {
		return err
	}
	return c.second.Add(ctx, id, content, lastModified)
}

func (c *tiered) Remove(ctx context.Context, id Identity) error {
	if err := c.first.Remove(ctx, id); err != nil {
		return err
	}
	return c.second.Remove(ctx, id)
}
