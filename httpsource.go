// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package dynimage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	aia "github.com/fcjr/aia-transport-go"
	"github.com/gregjones/httpcache"
)

// maximum size of a source image fetched over HTTP
const maxSourceSize = 100 << 20

// HTTPSource is a Source reading images from an HTTP origin.  Source paths
// are resolved relative to BaseURL.
type HTTPSource struct {
	BaseURL *url.URL
	Client  *http.Client

	// UserAgent, if set, is sent with origin requests.
	UserAgent string
}

// NewHTTPSource returns a Source for the origin at baseURL.  Origin
// responses are cached in c according to their HTTP caching headers; if c
// is nil they are cached in memory.  The client follows certificate
// Authority Information Access links, so origins serving incomplete chains
// still verify.
func NewHTTPSource(baseURL string, c httpcache.Cache) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if c == nil {
		c = httpcache.NewMemoryCache()
	}

	tr, err := aia.NewTransport()
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}

	return &HTTPSource{
		BaseURL: u,
		Client: &http.Client{
			Transport: &httpcache.Transport{
				Transport:           tr,
				Cache:               c,
				MarkCachedResponses: true,
			},
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (s *HTTPSource) url(p string) string {
	return s.BaseURL.JoinPath(p).String()
}

func (s *HTTPSource) do(ctx context.Context, method, p string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.url(p), nil)
	if err != nil {
		return nil, err
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

func (s *HTTPSource) head(ctx context.Context, p string) (*http.Response, error) {
	resp, err := s.do(ctx, http.MethodHead, p)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

func notFound(code int) bool {
	return code == http.StatusNotFound || code == http.StatusGone
}

func (s *HTTPSource) Exists(ctx context.Context, p string) (bool, error) {
	resp, err := s.head(ctx, p)
	if err != nil {
		return false, err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case notFound(resp.StatusCode):
		return false, nil
	}
	return false, fmt.Errorf("origin returned status %v for %q", resp.Status, p)
}

// LastModified returns the Last-Modified time sent by the origin.  If the
// origin sends none, the zero time is returned, and cached images never
// become stale.
func (s *HTTPSource) LastModified(ctx context.Context, p string) (time.Time, error) {
	resp, err := s.head(ctx, p)
	if err != nil {
		return time.Time{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("origin returned status %v for %q", resp.Status, p)
	}
	lm := resp.Header.Get("Last-Modified")
	if lm == "" {
		return time.Time{}, nil
	}
	return http.ParseTime(lm)
}

func (s *HTTPSource) Read(ctx context.Context, p string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, p)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if notFound(resp.StatusCode) {
		return nil, ErrSourceNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("origin returned status %v for %q", resp.Status, p)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxSourceSize {
		return nil, fmt.Errorf("%w: source larger than %d bytes", ErrInvalidImage, maxSourceSize)
	}
	return b, nil
}
