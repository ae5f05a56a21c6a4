// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package dynimage

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound is returned when the source image of a request
	// does not exist.  Hosts should map it to a "no image" response.
	ErrSourceNotFound = errors.New("source image not found")

	// ErrInvalidImage is returned when bytes are not a decodable image.
	ErrInvalidImage = errors.New("invalid image")

	// ErrNullOrEmptyInput is returned when an engine is handed no bytes.
	ErrNullOrEmptyInput = errors.New("null or empty input")

	// ErrCacheIO is matched by all errors returned from cache stores.
	ErrCacheIO = errors.New("cache i/o error")

	// ErrInvalidRequest is returned for identities that can not be
	// generated, before any I/O is done.
	ErrInvalidRequest = errors.New("invalid request")
)

// Error records a failed operation along with the identity being generated.
type Error struct {
	Op       string
	Identity Identity
	Err      error
}

func (e *Error) Error() string {
	if e.Identity == (Identity{}) {
		return fmt.Sprintf("dynimage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("dynimage: %s %v: %v", e.Op, e.Identity, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CacheError reports a storage failure in a cache store.
type CacheError struct {
	Op  string // "add", "get" or "remove"
	Key string
	Err error
}

// NewCacheError wraps err as a CacheError, or returns nil if err is nil.
func NewCacheError(op string, id Identity, err error) error {
	if err == nil {
		return nil
	}
	return &CacheError{Op: op, Key: id.Key(), Err: err}
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCacheIO.
func (e *CacheError) Is(target error) bool {
	return target == ErrCacheIO
}
