// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package dynimage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"
)

// Image is the result of generating an identity.
type Image struct {
	Identity Identity
	*Item

	// Cached is true if the image was served from cache without
	// resizing.
	Cached bool
}

// ContentType returns the MIME type of the image.
func (m *Image) ContentType() string {
	return m.Identity.Format.ContentType()
}

// Generator produces resized images, serving them from Cache when the
// cached copy is not older than the source.
type Generator struct {
	Source Source
	Cache  Cache
	Engine Engine

	// BypassCacheErrors causes cache failures to be logged and the image
	// to be generated without the cache.  By default cache failures
	// abort the request.
	BypassCacheErrors bool

	// Coalesce causes concurrent cache misses for the same identity to
	// share a single resize.  By default each miss resizes on its own,
	// and the last cache write wins.
	Coalesce bool

	// Logger is used to log errors and, if Verbose is set, each
	// generated image.  If nil, log.Printf is used.
	Logger  *log.Logger
	Verbose bool

	// now returns the time stored with newly cached images.
	now func() time.Time

	group singleflight.Group
}

// NewGenerator constructs a new Generator.  If cache is nil, NopCache is
// used.  If engine is nil, a zero ImagingEngine is used.
func NewGenerator(source Source, cache Cache, engine Engine) *Generator {
	if cache == nil {
		cache = NopCache
	}
	if engine == nil {
		engine = ImagingEngine{}
	}
	return &Generator{
		Source: source,
		Cache:  cache,
		Engine: engine,
		now:    time.Now,
	}
}

// Generate returns the image for id.  It returns an error matching
// ErrSourceNotFound if the source image does not exist, ErrInvalidImage if
// it is not an image, and ErrCacheIO if the cache fails and
// BypassCacheErrors is not set.
func (g *Generator) Generate(ctx context.Context, id Identity) (*Image, error) {
	img, err := g.generate(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			sourceNotFoundCount.Inc()
		} else {
			generateErrorCount.Inc()
		}
		var e *Error
		if !errors.As(err, &e) {
			err = &Error{Op: "generate", Identity: id, Err: err}
		}
		return nil, err
	}
	return img, nil
}

func (g *Generator) generate(ctx context.Context, id Identity) (*Image, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	exists, err := g.Source.Exists(ctx, id.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("checking source: %w", err)
	}
	if !exists {
		return nil, ErrSourceNotFound
	}

	modified, err := g.Source.LastModified(ctx, id.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("reading source modification time: %w", err)
	}

	item, ok, err := g.Cache.Get(ctx, id, modified)
	if err != nil {
		if err := g.cacheError(err); err != nil {
			return nil, err
		}
	}
	if ok {
		cacheHitCount.Inc()
		g.verbosef("served %v from cache", id)
		return &Image{Identity: id, Item: item, Cached: true}, nil
	}
	cacheMissCount.Inc()

	if !g.Coalesce {
		return g.resize(ctx, id)
	}

	v, err, shared := g.group.Do(id.Key(), func() (interface{}, error) {
		return g.resize(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		g.verbosef("shared resize of %v", id)
	}
	return v.(*Image), nil
}

// resize generates id from its source and stores the result in the cache.
func (g *Generator) resize(ctx context.Context, id Identity) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := g.Source.Read(ctx, id.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}
	if !g.Engine.IsImage(b) {
		return nil, ErrInvalidImage
	}

	srcW, srcH, err := g.Engine.Dimensions(b)
	if err != nil {
		return nil, err
	}
	w, h := Resolve(srcW, srcH, id.Width, id.Height, id.Mode)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := g.Engine.Resize(ctx, b, w, h, id.Mode, id.Format)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := g.timeNow()
	if err := g.Cache.Add(ctx, id, out, now); err != nil {
		if err := g.cacheError(err); err != nil {
			return nil, err
		}
	}

	g.verbosef("generated %v (%dx%d from %dx%d)", id, w, h, srcW, srcH)
	return &Image{Identity: id, Item: NewItem(id.Key(), out, now)}, nil
}

func (g *Generator) timeNow() time.Time {
	if g.now == nil {
		return time.Now()
	}
	return g.now()
}

// Remove deletes the cached image for id.
func (g *Generator) Remove(ctx context.Context, id Identity) error {
	if err := g.Cache.Remove(ctx, id); err != nil {
		cacheErrorCount.Inc()
		return &Error{Op: "remove", Identity: id, Err: err}
	}
	return nil
}

// cacheError returns err unless cache errors are bypassed, in which case
// it is logged and nil is returned.
func (g *Generator) cacheError(err error) error {
	cacheErrorCount.Inc()
	if !g.BypassCacheErrors {
		return err
	}
	g.logf("bypassing cache: %v", err)
	return nil
}

func (g *Generator) logf(format string, v ...interface{}) {
	if g.Logger != nil {
		g.Logger.Printf(format, v...)
	} else {
		log.Printf(format, v...)
	}
}

func (g *Generator) verbosef(format string, v ...interface{}) {
	if g.Verbose {
		g.logf(format, v...)
	}
}
