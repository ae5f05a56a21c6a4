// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package dynimage

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHitCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dynimage_cache_hits",
		Help: "Number of images served from cache.",
	})
	cacheMissCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dynimage_cache_misses",
		Help: "Number of images generated because they were not cached.",
	})
	cacheErrorCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dynimage_cache_errors",
		Help: "Number of cache store failures.",
	})
	sourceNotFoundCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dynimage_source_not_found",
		Help: "Number of requests for source images that do not exist.",
	})
	generateErrorCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dynimage_generate_errors",
		Help: "Number of failed image generations.",
	})
	resizeSummary = prometheus.NewSummary(prometheus.SummaryOpts{
		Name: "dynimage_resize_seconds",
		Help: "Time taken to resize images in seconds.",
	})
	httpRequestsResponseTime = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "http",
		Name:      "response_time_seconds",
		Help:      "Request response times",
	})
)

func init() {
	prometheus.MustRegister(cacheHitCount)
	prometheus.MustRegister(cacheMissCount)
	prometheus.MustRegister(cacheErrorCount)
	prometheus.MustRegister(sourceNotFoundCount)
	prometheus.MustRegister(generateErrorCount)
	prometheus.MustRegister(resizeSummary)
	prometheus.MustRegister(httpRequestsResponseTime)
}
