// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

// Package caddy provides dynimage as a Caddy module.
package caddy

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	caddy "github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"
	"willnorris.com/go/dynimage"
	"willnorris.com/go/dynimage/cache/diskcache"
	"willnorris.com/go/dynimage/cache/memorycache"
)

func init() {
	caddy.RegisterModule(DynImage{})
	httpcaddyfile.RegisterHandlerDirective("dynimage", parseCaddyfile)
}

type DynImage struct {
	Cache string `json:"cache,omitempty"`

	SourceDir string `json:"source_dir,omitempty"`
	SourceURL string `json:"source_url,omitempty"`

	Quality           int  `json:"quality,omitempty"`
	SmartCrop         bool `json:"smart_crop,omitempty"`
	BypassCacheErrors bool `json:"bypass_cache_errors,omitempty"`
	Coalesce          bool `json:"coalesce,omitempty"`
	Verbose           bool `json:"verbose,omitempty"`

	logger  *zap.Logger
	handler *dynimage.Handler
}

// interface guard
var (
	_ caddy.Provisioner           = (*DynImage)(nil)
	_ caddyhttp.MiddlewareHandler = (*DynImage)(nil)
)

// CaddyModule returns the Caddy module information.
func (DynImage) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.dynimage",
		New: func() caddy.Module { return new(DynImage) },
	}
}

func (d *DynImage) Provision(ctx caddy.Context) error {
	d.logger = ctx.Logger()

	var source dynimage.Source
	switch {
	case d.SourceDir != "":
		source = dynimage.FSSource{FS: os.DirFS(d.SourceDir)}
	case d.SourceURL != "":
		s, err := dynimage.NewHTTPSource(d.SourceURL, nil)
		if err != nil {
			return err
		}
		source = s
	default:
		return errors.New("dynimage: one of source_dir or source_url is required")
	}

	cache, err := parseCache(d.Cache)
	if err != nil {
		return err
	}

	g := dynimage.NewGenerator(source, cache, dynimage.ImagingEngine{
		Quality:   d.Quality,
		SmartCrop: d.SmartCrop,
	})
	g.BypassCacheErrors = d.BypassCacheErrors
	g.Coalesce = d.Coalesce
	g.Logger = zap.NewStdLog(d.logger)
	g.Verbose = d.Verbose

	d.handler = dynimage.NewHandler(g)
	d.handler.Logger = g.Logger
	d.handler.Verbose = d.Verbose
	return nil
}

func (d *DynImage) ServeHTTP(w http.ResponseWriter, r *http.Request, _ caddyhttp.Handler) error {
	d.handler.ServeHTTP(w, r)
	return nil
}

func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	d := new(DynImage)

	h.Next() // consume the directive name
	for nesting := h.Nesting(); h.NextBlock(nesting); {
		key := h.Val()
		if !h.NextArg() {
			return nil, h.ArgErr()
		}
		val := h.Val()

		var err error
		switch key {
		case "cache":
			d.Cache = strings.TrimSpace(d.Cache + " " + val)
		case "source_dir":
			d.SourceDir = val
		case "source_url":
			d.SourceURL = val
		case "quality":
			d.Quality, err = strconv.Atoi(val)
		case "smart_crop":
			d.SmartCrop, err = strconv.ParseBool(val)
		case "bypass_cache_errors":
			d.BypassCacheErrors, err = strconv.ParseBool(val)
		case "coalesce":
			d.Coalesce, err = strconv.ParseBool(val)
		case "verbose":
			d.Verbose, err = strconv.ParseBool(val)
		default:
			return nil, h.Errf("unrecognized dynimage option %q", key)
		}
		if err != nil {
			return nil, h.Errf("invalid value for %s: %v", key, err)
		}
	}
	return d, nil
}

// parseCache parses a space separated list of caches, each either
// "memory[:MB[:maxAge]]" or a directory, and returns them tiered in order.
func parseCache(value string) (dynimage.Cache, error) {
	var cache dynimage.Cache
	for _, c := range strings.Fields(value) {
		next, err := parseOneCache(c)
		if err != nil {
			return nil, err
		}
		if cache == nil {
			cache = next
		} else {
			cache = dynimage.Tiered(cache, next)
		}
	}
	return cache, nil
}

func parseOneCache(c string) (dynimage.Cache, error) {
	const defaultMemorySize = 100

	if c == "memory" {
		c = fmt.Sprintf("memory:%d", defaultMemorySize)
	}

	u, err := url.Parse(c)
	if err != nil {
		return nil, fmt.Errorf("error parsing cache: %w", err)
	}

	switch u.Scheme {
	case "memory":
		parts := strings.SplitN(u.Opaque, ":", 2)
		size, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing cache size: %w", err)
		}
		var age time.Duration
		if len(parts) > 1 {
			if age, err = time.ParseDuration(parts[1]); err != nil {
				return nil, fmt.Errorf("error parsing cache age: %w", err)
			}
		}
		return memorycache.New(size*1e6, age), nil
	case "file":
		return diskcache.New(u.Path), nil
	default:
		return diskcache.New(c), nil
	}
}
