// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package gccutil

import "strings"

const (
	quoteSearchStart  = `#include "..." search starts here:`
	systemSearchStart = `#include <...> search starts here:`
	searchEnd         = `End of search list.`

	frameworkSuffix = " (framework directory)"
)

// DiscoveryArgs returns command line args to make compiler print its
// include search path for lang on stderr.
// The command reads an empty source from stdin and its stdout should be
// discarded.
func DiscoveryArgs(compiler string, lang Lang) []string {
	return []string{compiler, "-x", lang.String(), "-E", "-v", "-"}
}

// ParseIncludeSearchPath parses the stderr of the command given by
// DiscoveryArgs, and returns system include directories in the order
// the compiler searches them.
// It returns false if the output doesn't have a search list.
//
// gcc prints
//
//	#include "..." search starts here:
//	#include <...> search starts here:
//	 /usr/lib/gcc/x86_64-linux-gnu/12/include
//	 /usr/local/include
//	 /usr/include
//	End of search list.
//
// clang on macOS also lists frameworks as "<dir> (framework directory)",
// which are not include directories and are skipped.
func ParseIncludeSearchPath(stderr []byte) ([]string, bool) {
	dirs := []string{}
	started := false
	for _, line := range strings.Split(string(stderr), "\n") {
		line = strings.TrimRight(line, "\r")
		if !started {
			if line == systemSearchStart {
				started = true
			}
			continue
		}
		if line == searchEnd {
			return dirs, true
		}
		if line == quoteSearchStart {
			continue
		}
		dir := strings.TrimSpace(line)
		if dir == "" || strings.HasSuffix(dir, frameworkSuffix) {
			continue
		}
		dirs = append(dirs, dir)
	}
	return nil, false
}

// SystemIncludeArgs returns args to add dirs as system include
// directories, in the given order.
func SystemIncludeArgs(dirs []string) []string {
	args := make([]string, 0, 2*len(dirs))
	for _, dir := range dirs {
		args = append(args, "-isystem", dir)
	}
	return args
}
