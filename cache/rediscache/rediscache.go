// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

// Package rediscache provides a dynimage.Cache that stores images in Redis.
//
// Each image is a hash at "{prefix}{key}" with the fields "mod" (the time
// the image was cached, in Unix nanoseconds), "len" and "data".  Only "data"
// holds the image, and is read lazily.
package rediscache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gomodule/redigo/redis"
	"willnorris.com/go/dynimage"
)

// Cache is a dynimage.Cache storing images in Redis.
type Cache struct {
	pool   *redis.Pool
	prefix string
	ttl    time.Duration
}

var _ dynimage.Cache = (*Cache)(nil)

// New returns a Cache using connections from pool.  Keys are prefixed with
// prefix.  If ttl is positive, images expire that long after being added.
func New(pool *redis.Pool, prefix string, ttl time.Duration) *Cache {
	return &Cache{pool: pool, prefix: prefix, ttl: ttl}
}

// NewFromURL returns a Cache for the server at rawurl, of the form
// "redis://[:password@]host:port[/db][?prefix=p&ttl=d]".  ttl is a
// duration such as "24h".
func NewFromURL(rawurl string, options ...redis.DialOption) (*Cache, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	var ttl time.Duration
	if v := q.Get("ttl"); v != "" {
		if ttl, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("parsing ttl: %w", err)
		}
	}
	prefix := q.Get("prefix")
	if prefix == "" {
		prefix = "dynimage:"
	}

	u.RawQuery = ""
	addr := u.String()
	pool := &redis.Pool{
		MaxIdle:     10,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(addr, options...)
		},
	}
	return New(pool, prefix, ttl), nil
}

func (c *Cache) key(id dynimage.Identity) string {
	return c.prefix + id.Key()
}

func (c *Cache) Add(ctx context.Context, id dynimage.Identity, content []byte, lastModified time.Time) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return dynimage.NewCacheError("add", id, err)
	}
	defer conn.Close()

	key := c.key(id)
	cmds := [][]interface{}{
		{"MULTI"},
		{"DEL", key},
		{"HSET", key, "mod", lastModified.UnixNano(), "len", len(content), "data", content},
	}
	if c.ttl > 0 {
		cmds = append(cmds, []interface{}{"PEXPIRE", key, c.ttl.Milliseconds()})
	}
	for _, cmd := range cmds {
		if err := conn.Send(cmd[0].(string), cmd[1:]...); err != nil {
			return dynimage.NewCacheError("add", id, err)
		}
	}
	_, err = conn.Do("EXEC")
	return dynimage.NewCacheError("add", id, err)
}

func (c *Cache) Get(ctx context.Context, id dynimage.Identity, sourceModified time.Time) (*dynimage.Item, bool, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return nil, false, dynimage.NewCacheError("get", id, err)
	}
	defer conn.Close()

	key := c.key(id)
	vals, err := redis.Values(conn.Do("HMGET", key, "mod", "len"))
	if err != nil {
		return nil, false, dynimage.NewCacheError("get", id, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, false, nil
	}
	mod, err := redis.Int64(vals[0], nil)
	if err != nil {
		return nil, false, dynimage.NewCacheError("get", id, err)
	}
	length, err := redis.Int64(vals[1], nil)
	if err != nil {
		return nil, false, dynimage.NewCacheError("get", id, err)
	}

	modified := time.Unix(0, mod)
	if dynimage.Stale(modified, sourceModified) {
		if _, err := conn.Do("DEL", key); err != nil {
			return nil, false, dynimage.NewCacheError("get", id, err)
		}
		return nil, false, nil
	}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		b, err := c.data(ctx, key)
		if err != nil {
			return nil, dynimage.NewCacheError("get", id, err)
		}
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	return dynimage.NewLazyItem(id.Key(), length, modified, open), true, nil
}

// errExpired is returned when an item's data is gone by the time it is read.
var errExpired = errors.New("cached image expired before it was read")

func (c *Cache) data(ctx context.Context, key string) ([]byte, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	b, err := redis.Bytes(conn.Do("HGET", key, "data"))
	if errors.Is(err, redis.ErrNil) {
		return nil, errExpired
	}
	return b, err
}

func (c *Cache) Remove(ctx context.Context, id dynimage.Identity) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return dynimage.NewCacheError("remove", id, err)
	}
	defer conn.Close()

	_, err = conn.Do("DEL", c.key(id))
	return dynimage.NewCacheError("remove", id, err)
}
