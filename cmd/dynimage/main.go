// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

// dynimage starts an HTTP server that serves resized images from a local
// directory or an HTTP origin, caching the results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/die-net/lrucache"
	"github.com/die-net/lrucache/twotier"
	"github.com/gomodule/redigo/redis"
	"github.com/gorilla/mux"
	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"github.com/peterbourgon/diskv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"willnorris.com/go/dynimage"
	dynimagediskcache "willnorris.com/go/dynimage/cache/diskcache"
	"willnorris.com/go/dynimage/cache/gcscache"
	"willnorris.com/go/dynimage/cache/memorycache"
	"willnorris.com/go/dynimage/cache/rediscache"
	"willnorris.com/go/dynimage/cache/s3cache"
	"willnorris.com/go/dynimage/internal/envflag"
)

const defaultMemorySize = 100

var addr = flag.String("addr", "localhost:8080", "TCP address to listen on")
var cache tieredCache
var originCache = flag.String("originCache", "memory", "location to cache responses from sourceURL, as space separated memory[:MB] or directory values")
var sourceDir = flag.String("sourceDir", "", "directory containing source images")
var sourceURL = flag.String("sourceURL", "", "base URL of the origin serving source images")
var userAgent = flag.String("userAgent", "dynimage", "user-agent used when fetching images from sourceURL")
var quality = flag.Int("quality", 95, "jpeg encoding quality")
var maxPixels = flag.Int("maxPixels", 50_000_000, "largest source image to decode, in pixels")
var smartCrop = flag.Bool("smartCrop", false, "crop uniformfill images by content rather than centering")
var bypassCacheErrors = flag.Bool("bypassCacheErrors", false, "serve uncached images when the cache fails")
var coalesce = flag.Bool("coalesce", false, "share one resize between concurrent requests for the same image")
var timeout = flag.Duration("timeout", 0, "time limit for requests served by this server")
var verbose = flag.Bool("verbose", false, "print verbose logging messages")

func init() {
	flag.Var(&cache, "cache", "location to cache images: space separated list of memory[:MB[:maxAge]], file path, s3://, gcs://, redis:// or none")
}

func main() {
	if err := envflag.Parse("DYNIMAGE"); err != nil {
		log.Fatal(err)
	}
	flag.Parse()

	source, err := newSource(*sourceDir, *sourceURL, *originCache)
	if err != nil {
		log.Fatal(err)
	}

	engine := dynimage.ImagingEngine{
		Quality:   *quality,
		MaxPixels: *maxPixels,
		SmartCrop: *smartCrop,
	}

	g := dynimage.NewGenerator(source, cache.Cache, engine)
	g.BypassCacheErrors = *bypassCacheErrors
	g.Coalesce = *coalesce
	g.Verbose = *verbose

	h := dynimage.NewHandler(g)
	h.Verbose = *verbose

	var handler http.Handler = h
	if *timeout > 0 {
		handler = http.TimeoutHandler(h, *timeout, "Gateway timeout waiting for image")
	}

	r := mux.NewRouter().SkipClean(true)
	r.Handle("/metrics", promhttp.Handler())
	r.PathPrefix("/").Handler(handler)

	server := &http.Server{
		Addr:    *addr,
		Handler: r,

		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	fmt.Printf("dynimage listening on %s\n", server.Addr)
	log.Fatal(server.ListenAndServe())
}

// newSource returns the Source for either dir or rawurl.
func newSource(dir, rawurl, originCache string) (dynimage.Source, error) {
	switch {
	case dir != "" && rawurl != "":
		return nil, errors.New("only one of sourceDir and sourceURL may be set")
	case dir != "":
		return dynimage.FSSource{FS: os.DirFS(dir)}, nil
	case rawurl != "":
		c, err := parseOriginCache(originCache)
		if err != nil {
			return nil, err
		}
		s, err := dynimage.NewHTTPSource(rawurl, c)
		if err != nil {
			return nil, err
		}
		s.UserAgent = *userAgent
		return s, nil
	}
	return nil, errors.New("one of sourceDir or sourceURL must be set")
}

// tieredCache allows specifying multiple caches via flags, which will create
// tiered caches using dynimage.Tiered.
type tieredCache struct {
	dynimage.Cache
}

func (tc *tieredCache) String() string {
	return fmt.Sprint(*tc)
}

func (tc *tieredCache) Set(value string) error {
	for _, v := range strings.Fields(value) {
		c, err := parseCache(v)
		if err != nil {
			return err
		}

		if tc.Cache == nil {
			tc.Cache = c
		} else {
			tc.Cache = dynimage.Tiered(tc.Cache, c)
		}
	}
	return nil
}

// parseCache parses c returns the specified Cache implementation.
func parseCache(c string) (dynimage.Cache, error) {
	switch c {
	case "":
		return nil, nil
	case "none":
		return dynimage.NopCache, nil
	case "memory":
		c = fmt.Sprintf("memory:%d", defaultMemorySize)
	}

	u, err := url.Parse(c)
	if err != nil {
		return nil, fmt.Errorf("error parsing cache flag: %w", err)
	}

	switch u.Scheme {
	case "gcs":
		return gcscache.New(context.Background(), u.Host, strings.TrimPrefix(u.Path, "/"))
	case "memory":
		size, age, err := memoryOptions(u.Opaque)
		if err != nil {
			return nil, err
		}
		return memorycache.New(size, age), nil
	case "redis", "rediss":
		return rediscache.NewFromURL(u.String(), redis.DialPassword(os.Getenv("REDIS_PASSWORD")))
	case "s3":
		return s3cache.New(u.String())
	case "file":
		return dynimagediskcache.New(u.Path), nil
	default:
		return dynimagediskcache.New(c), nil
	}
}

// memoryOptions parses options of the form "maxSize:maxAge".  maxSize is
// specified in megabytes, maxAge is a duration.
func memoryOptions(options string) (size int64, age time.Duration, err error) {
	parts := strings.SplitN(options, ":", 2)
	size, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}

	if len(parts) > 1 {
		age, err = time.ParseDuration(parts[1])
		if err != nil {
			return 0, 0, err
		}
	}

	return size * 1e6, age, nil
}

// parseOriginCache parses a space separated list of origin caches, each
// either "memory[:MB]" or a directory.  Two caches are combined with
// twotier.
func parseOriginCache(value string) (httpcache.Cache, error) {
	var caches []httpcache.Cache
	for _, v := range strings.Fields(value) {
		var c httpcache.Cache
		switch {
		case v == "memory":
			c = lrucache.New(defaultMemorySize*1e6, 0)
		case strings.HasPrefix(v, "memory:"):
			size, age, err := memoryOptions(strings.TrimPrefix(v, "memory:"))
			if err != nil {
				return nil, fmt.Errorf("error parsing originCache flag: %w", err)
			}
			c = lrucache.New(size, int64(math.Ceil(age.Seconds())))
		default:
			c = originDiskCache(v)
		}
		caches = append(caches, c)
	}

	switch len(caches) {
	case 0:
		return nil, nil
	case 1:
		return caches[0], nil
	case 2:
		return twotier.New(caches[0], caches[1]), nil
	}
	return nil, fmt.Errorf("at most two origin caches may be specified, got %d", len(caches))
}

func originDiskCache(path string) *diskcache.Cache {
	d := diskv.New(diskv.Options{
		BasePath: path,

		// For file "c0ffee", store file as "c0/ff/c0ffee"
		Transform: func(s string) []string { return []string{s[0:2], s[2:4]} },
	})
	return diskcache.NewWithDiskv(d)
}
