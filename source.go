// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package dynimage

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"time"
)

// Source provides read access to original images.
type Source interface {
	// Exists reports whether an image exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// LastModified returns the time the image at path was last modified.
	LastModified(ctx context.Context, path string) (time.Time, error)

	// Read returns the content of the image at path.
	Read(ctx context.Context, path string) ([]byte, error)
}

// FSSource is a Source reading images from a file system, such as one
// returned by os.DirFS.  Leading slashes are stripped from paths.
type FSSource struct {
	FS fs.FS
}

func (s FSSource) name(p string) (string, error) {
	name := strings.TrimPrefix(p, "/")
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: "open", Path: p, Err: fs.ErrInvalid}
	}
	return name, nil
}

func (s FSSource) Exists(ctx context.Context, p string) (bool, error) {
	name, err := s.name(p)
	if err != nil {
		return false, nil
	}
	fi, err := fs.Stat(s.FS, name)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !fi.IsDir(), nil
}

func (s FSSource) LastModified(ctx context.Context, p string) (time.Time, error) {
	name, err := s.name(p)
	if err != nil {
		return time.Time{}, err
	}
	fi, err := fs.Stat(s.FS, name)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

func (s FSSource) Read(ctx context.Context, p string) ([]byte, error) {
	name, err := s.name(p)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(s.FS, name)
}
