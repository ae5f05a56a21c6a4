// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

// Package envflag exposes environment variables for all of the flags in a
// flag set.
package envflag

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Parse exposes environment variables for all flags in the default FlagSet
// (flag.CommandLine) in the form of PREFIX_FLAGNAME.  It must be called
// before flag.Parse.
func Parse(prefix string) error {
	return Update(prefix, flag.CommandLine, os.LookupEnv)
}

// Name returns the environment variable bound to the named flag.
func Name(prefix, flagName string) string {
	return strings.ReplaceAll(prefix+"_"+strings.ToUpper(flagName), "-", "_")
}

// Update sets each flag in fs that was not explicitly set on the command
// line from the environment variable returned by Name, if it is non-empty.
// Flag usage strings are updated to name their variables.
func Update(prefix string, fs *flag.FlagSet, lookup func(string) (string, bool)) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	var err error
	fs.VisitAll(func(f *flag.Flag) {
		env := Name(prefix, f.Name)
		if val, ok := lookup(env); ok && val != "" && !set[f.Name] {
			if serr := fs.Set(f.Name, val); serr != nil && err == nil {
				err = fmt.Errorf("invalid value %q for %s: %w", val, env, serr)
			}
		}
		f.Usage = fmt.Sprintf("%s [%s]", f.Usage, env)
	})
	return err
}
