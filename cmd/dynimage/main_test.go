// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/die-net/lrucache"
	"github.com/die-net/lrucache/twotier"
	"github.com/gregjones/httpcache/diskcache"
	"willnorris.com/go/dynimage"
	"willnorris.com/go/dynimage/cache/memorycache"
)

func TestParseCache(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		value string
		want  string // type of returned cache
	}{
		{"", "<nil>"},
		{"none", fmt.Sprintf("%T", dynimage.NopCache)},
		{"memory", "*memorycache.Cache"},
		{"memory:50:1h", "*memorycache.Cache"},
		{"file://" + dir, "*diskcache.Cache"},
		{dir, "*diskcache.Cache"},
		{"s3://us-east-1/bucket/prefix", "*s3cache.Cache"},
		{"redis://localhost:6379?ttl=1h", "*rediscache.Cache"},
	}

	for _, tt := range tests {
		c, err := parseCache(tt.value)
		if err != nil {
			t.Errorf("parseCache(%q) returned error: %v", tt.value, err)
			continue
		}
		if got := fmt.Sprintf("%T", c); got != tt.want {
			t.Errorf("parseCache(%q) returned %v, want %v", tt.value, got, tt.want)
		}
	}

	for _, value := range []string{"memory:big", "memory:10:forever", "redis://localhost?ttl=x"} {
		if _, err := parseCache(value); err == nil {
			t.Errorf("parseCache(%q) returned nil error", value)
		}
	}
}

func TestMemoryOptions(t *testing.T) {
	tests := []struct {
		options string
		size    int64
		age     time.Duration
	}{
		{"100", 100e6, 0},
		{"1:30s", 1e6, 30 * time.Second},
	}
	for _, tt := range tests {
		size, age, err := memoryOptions(tt.options)
		if err != nil {
			t.Errorf("memoryOptions(%q) returned error: %v", tt.options, err)
			continue
		}
		if size != tt.size || age != tt.age {
			t.Errorf("memoryOptions(%q) returned %d, %v, want %d, %v", tt.options, size, age, tt.size, tt.age)
		}
	}
}

func TestTieredCache(t *testing.T) {
	var tc tieredCache
	if err := tc.Set("memory " + t.TempDir()); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if _, ok := tc.Cache.(*memorycache.Cache); ok {
		t.Errorf("two caches returned a single memory cache, want tiered")
	}
	if tc.Cache == nil {
		t.Errorf("Set returned nil cache")
	}
}

func TestParseOriginCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "origin")

	c, err := parseOriginCache("")
	if err != nil || c != nil {
		t.Errorf("parseOriginCache(\"\") returned %v, %v, want nil", c, err)
	}

	c, err = parseOriginCache("memory:10")
	if _, ok := c.(*lrucache.LruCache); !ok || err != nil {
		t.Errorf("parseOriginCache(memory:10) returned %T, %v, want *lrucache.LruCache", c, err)
	}

	c, err = parseOriginCache(dir)
	if _, ok := c.(*diskcache.Cache); !ok || err != nil {
		t.Errorf("parseOriginCache(%q) returned %T, %v, want *diskcache.Cache", dir, c, err)
	}

	c, err = parseOriginCache("memory " + dir)
	if _, ok := c.(*twotier.TwoTier); !ok || err != nil {
		t.Errorf("parseOriginCache(memory dir) returned %T, %v, want *twotier.TwoTier", c, err)
	}

	if _, err := parseOriginCache("memory memory memory"); err == nil {
		t.Errorf("parseOriginCache with three caches returned nil error")
	}
}

func TestNewSource(t *testing.T) {
	if _, err := newSource("", "", ""); err == nil {
		t.Errorf("newSource with no source returned nil error")
	}
	if _, err := newSource("/tmp", "http://example.com/", ""); err == nil {
		t.Errorf("newSource with two sources returned nil error")
	}
	if s, err := newSource(t.TempDir(), "", ""); err != nil {
		t.Errorf("newSource(dir) returned error: %v", err)
	} else if _, ok := s.(dynimage.FSSource); !ok {
		t.Errorf("newSource(dir) returned %T, want dynimage.FSSource", s)
	}
}
