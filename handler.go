// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package dynimage

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// Handler serves generated images at their canonical paths, as returned by
// Identity.Path.  DELETE requests remove the cached image.
type Handler struct {
	Generator *Generator

	// Logger is used to log errors and, if Verbose is set, each request.
	// If nil, log.Printf is used.
	Logger  *log.Logger
	Verbose bool
}

// NewHandler returns a Handler serving images from g.
func NewHandler(g *Generator) *Handler {
	return &Handler{Generator: g}
}

// ServeHTTP handles image requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/favicon.ico" {
		return // ignore favicon requests
	}

	timer := prometheusTimer()
	defer timer()

	id, err := ParseIdentity(r.URL.Path)
	if err != nil {
		msg := fmt.Sprintf("invalid request URL: %v", err)
		h.logf("%s", msg)
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.serveImage(w, r, id)
	case http.MethodDelete:
		if err := h.Generator.Remove(r.Context(), id); err != nil {
			h.logf("%v", err)
			http.Error(w, "error removing cached image", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, HEAD, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) serveImage(w http.ResponseWriter, r *http.Request, id Identity) {
	img, err := h.Generator.Generate(r.Context(), id)
	if err != nil {
		code := statusCode(err)
		if code == http.StatusInternalServerError {
			h.logf("%v", err)
		}
		http.Error(w, http.StatusText(code), code)
		return
	}

	if h.Verbose {
		h.logf("request: %v (served from cache: %v)", id, img.Cached)
	}

	if !img.LastModified.IsZero() {
		w.Header().Set("Last-Modified", img.LastModified.UTC().Format(http.TimeFormat))
	}
	if check304(r, img.LastModified) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", img.ContentType())
	w.Header().Set("Content-Length", strconv.FormatInt(img.Length, 10))
	if r.Method == http.MethodHead {
		return
	}

	body, err := img.Open(r.Context())
	if err != nil {
		h.logf("opening %v: %v", id, err)
		w.Header().Del("Content-Length")
		http.Error(w, "error reading cached image", http.StatusInternalServerError)
		return
	}
	defer body.Close()
	if _, err := io.Copy(w, body); err != nil {
		h.verbosef("writing %v: %v", id, err)
	}
}

// statusCode maps a Generate error to an HTTP status code.
func statusCode(err error) int {
	switch {
	case errors.Is(err, ErrSourceNotFound), errors.Is(err, ErrInvalidImage):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// check304 reports whether a 304 Not Modified should be sent in response to
// req for an image last modified at lastModified.
func check304(req *http.Request, lastModified time.Time) bool {
	if lastModified.IsZero() {
		return false
	}
	ifModSince, err := http.ParseTime(req.Header.Get("If-Modified-Since"))
	if err != nil {
		return false
	}
	// If-Modified-Since has second precision
	return !lastModified.Truncate(time.Second).After(ifModSince)
}

func prometheusTimer() func() {
	start := time.Now()
	return func() {
		httpRequestsResponseTime.Observe(time.Since(start).Seconds())
	}
}

func (h *Handler) logf(format string, v ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, v...)
	} else {
		log.Printf(format, v...)
	}
}

func (h *Handler) verbosef(format string, v ...interface{}) {
	if h.Verbose {
		h.logf(format, v...)
	}
}
