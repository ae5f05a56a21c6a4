// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

// Package cachetest provides a suite of tests that every dynimage.Cache
// implementation is expected to pass.
package cachetest

import (
	"context"
	"testing"
	"time"

	"willnorris.com/go/dynimage"
)

var (
	modified = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	jpegID = dynimage.Identity{SourcePath: "/a/b.jpg", Width: 100, Height: 50, Mode: dynimage.Uniform, Format: dynimage.JPEG}
	pngID  = dynimage.Identity{SourcePath: "/a/b.jpg", Width: 100, Height: 50, Mode: dynimage.Uniform, Format: dynimage.PNG}
)

// Run runs the cache suite against the caches returned by newCache.  Each
// test gets a new, empty cache.
func Run(t *testing.T, newCache func(t *testing.T) dynimage.Cache) {
	tests := []struct {
		name string
		f    func(*testing.T, dynimage.Cache)
	}{
		{"Miss", testMiss},
		{"RoundTrip", testRoundTrip},
		{"OlderSource", testOlderSource},
		{"Stale", testStale},
		{"Remove", testRemove},
		{"RemoveMissing", testRemoveMissing},
		{"Overwrite", testOverwrite},
		{"DistinctIdentities", testDistinctIdentities},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.f(t, newCache(t))
		})
	}
}

// get returns the content of id in c, or nil on a miss.
func get(t *testing.T, c dynimage.Cache, id dynimage.Identity, sourceModified time.Time) *dynimage.Item {
	t.Helper()
	item, ok, err := c.Get(context.Background(), id, sourceModified)
	if err != nil {
		t.Fatalf("Get(%v) returned error: %v", id, err)
	}
	if !ok {
		if item != nil {
			t.Errorf("Get(%v) missed but returned item %v", id, item)
		}
		return nil
	}
	return item
}

func add(t *testing.T, c dynimage.Cache, id dynimage.Identity, content string, lastModified time.Time) {
	t.Helper()
	if err := c.Add(context.Background(), id, []byte(content), lastModified); err != nil {
		t.Fatalf("Add(%v) returned error: %v", id, err)
	}
}

func content(t *testing.T, item *dynimage.Item) string {
	t.Helper()
	b, err := item.Bytes(context.Background())
	if err != nil {
		t.Fatalf("reading item %v returned error: %v", item.Key, err)
	}
	if int64(len(b)) != item.Length {
		t.Errorf("item %v has Length %d, read %d bytes", item.Key, item.Length, len(b))
	}
	return string(b)
}

func testMiss(t *testing.T, c dynimage.Cache) {
	if item := get(t, c, jpegID, modified); item != nil {
		t.Errorf("Get on empty cache returned item %v", item.Key)
	}
}

func testRoundTrip(t *testing.T, c dynimage.Cache) {
	add(t, c, jpegID, "image", modified)

	item := get(t, c, jpegID, modified)
	if item == nil {
		t.Fatalf("Get(%v) missed after Add", jpegID)
	}
	if got, want := item.Key, jpegID.Key(); got != want {
		t.Errorf("item.Key = %q, want %q", got, want)
	}
	if !item.LastModified.Equal(modified) {
		t.Errorf("item.LastModified = %v, want %v", item.LastModified, modified)
	}
	if got, want := content(t, item), "image"; got != want {
		t.Errorf("item content = %q, want %q", got, want)
	}
}

func testOlderSource(t *testing.T, c dynimage.Cache) {
	add(t, c, jpegID, "image", modified)
	if item := get(t, c, jpegID, modified.Add(-time.Hour)); item == nil {
		t.Errorf("Get(%v) with older source missed", jpegID)
	}
}

func testStale(t *testing.T, c dynimage.Cache) {
	add(t, c, jpegID, "image", modified)

	if item := get(t, c, jpegID, modified.Add(time.Second)); item != nil {
		t.Errorf("Get(%v) with newer source returned stale item", jpegID)
	}
	// the stale item was evicted
	if item := get(t, c, jpegID, modified); item != nil {
		t.Errorf("Get(%v) returned item that should have been evicted", jpegID)
	}
}

func testRemove(t *testing.T, c dynimage.Cache) {
	add(t, c, jpegID, "image", modified)
	if err := c.Remove(context.Background(), jpegID); err != nil {
		t.Fatalf("Remove(%v) returned error: %v", jpegID, err)
	}
	if item := get(t, c, jpegID, modified); item != nil {
		t.Errorf("Get(%v) returned removed item", jpegID)
	}
}

func testRemoveMissing(t *testing.T, c dynimage.Cache) {
	for i := 0; i < 2; i++ {
		if err := c.Remove(context.Background(), jpegID); err != nil {
			t.Errorf("Remove(%v) of missing item returned error: %v", jpegID, err)
		}
	}
}

func testOverwrite(t *testing.T, c dynimage.Cache) {
	later := modified.Add(time.Minute)
	add(t, c, jpegID, "first", modified)
	add(t, c, jpegID, "second", later)

	item := get(t, c, jpegID, modified)
	if item == nil {
		t.Fatalf("Get(%v) missed after overwrite", jpegID)
	}
	if got, want := content(t, item), "second"; got != want {
		t.Errorf("item content = %q, want %q", got, want)
	}
	if !item.LastModified.Equal(later) {
		t.Errorf("item.LastModified = %v, want %v", item.LastModified, later)
	}
}

func testDistinctIdentities(t *testing.T, c dynimage.Cache) {
	add(t, c, jpegID, "jpeg", modified)
	add(t, c, pngID, "png", modified)

	for _, tt := range []struct {
		id   dynimage.Identity
		want string
	}{
		{jpegID, "jpeg"},
		{pngID, "png"},
	} {
		item := get(t, c, tt.id, modified)
		if item == nil {
			t.Errorf("Get(%v) missed", tt.id)
			continue
		}
		if got := content(t, item); got != tt.want {
			t.Errorf("Get(%v) content = %q, want %q", tt.id, got, tt.want)
		}
	}
}
