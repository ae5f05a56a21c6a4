// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

// The dynimage-key tool prints the cache key and cache file location for a
// dynimage request path.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"willnorris.com/go/dynimage"
	"willnorris.com/go/dynimage/cache/diskcache"
)

var cacheDir = flag.String("cacheDir", "/var/cache/dynimage", "root directory of a file cache")

func main() {
	flag.Parse()

	if err := run(os.Stdout, flag.Arg(0), *cacheDir); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(w io.Writer, p, dir string) error {
	if p == "" {
		return errors.New("dynimage-key path")
	}

	id, err := dynimage.ParseIdentity(p)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "path: %v\n", id.Path())
	fmt.Fprintf(w, "key: %v\n", id.Key())
	fmt.Fprintf(w, "file: %v\n", diskcache.New(dir).Path(id))
	return nil
}
