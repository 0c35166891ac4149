// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package patch rewrites compile commands of compilation database entries
// for another compiler or analysis tool.
package patch

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/cdbpatch/cdb"
	"go.chromium.org/infra/build/cdbpatch/toolchain"
	"go.chromium.org/infra/build/cdbpatch/toolsupport/gccutil"
)

// Plan is a set of edits applied to every entry.
type Plan struct {
	// CC replaces the compiler of C entries if not empty.
	CC string
	// CXX replaces the compiler of C++ entries if not empty.
	CXX string

	// Delete deletes a matching flag for each pattern, in order.
	Delete Patterns

	// ResolveIncludes adds the system include directories of the
	// compiler, as reported by the compiler itself.
	ResolveIncludes bool
	// NoStdInc adds -nostdinc after the resolved include directories,
	// so that a tool doesn't add its own system include directories.
	NoStdInc bool

	// Add is appended to commands.
	Add []string
}

func (p Plan) compiler(lang gccutil.Lang) string {
	switch lang {
	case gccutil.LangC:
		return p.CC
	case gccutil.LangCXX:
		return p.CXX
	}
	return ""
}

// Transform returns a copy of e with its compile command rewritten by plan.
// resolver is used only when plan.ResolveIncludes is set.
// e itself is not modified.
func Transform(ctx context.Context, e *cdb.Entry, plan Plan, resolver toolchain.IncludeResolver) (cdb.Entry, error) {
	out := e.Clone()
	args, err := e.Args()
	if err != nil {
		return out, err
	}
	if len(args) == 0 {
		return out, fmt.Errorf("empty %s", e.Kind)
	}
	lang := gccutil.LangOf(e.File)

	if cc := plan.compiler(lang); cc != "" {
		args[0] = cc
	}

	args = deleteFlags(args, sourceIndex(args, e), plan.Delete)

	if plan.ResolveIncludes && lang != gccutil.LangUnknown {
		if resolver == nil {
			return out, fmt.Errorf("no include resolver for %s", e.File)
		}
		dirs, err := resolver.Resolve(ctx, compilerPath(args[0], e.Directory), lang)
		if err != nil {
			return out, err
		}
		args = append(args, gccutil.SystemIncludeArgs(dirs)...)
		if plan.NoStdInc && !slices.Contains(args, "-nostdinc") {
			args = append(args, "-nostdinc")
		}
	} else if plan.ResolveIncludes {
		log.Debugf("%s: unknown language. no toolchain includes", e.File)
	}

	args = append(args, plan.Add...)
	out.SetArgs(args)
	return out, nil
}

// compilerPath returns the path to run compiler in dir.
// A relative path with a directory part is relative to dir.
// A bare name is left as is and looked up in $PATH.
func compilerPath(compiler, dir string) string {
	if filepath.IsAbs(compiler) || !strings.ContainsAny(compiler, `/\`) {
		return compiler
	}
	return filepath.Join(dir, compiler)
}

// sourceIndex returns the index of the source file in args,
// or the last index if the source file is not found.
func sourceIndex(args []string, e *cdb.Entry) int {
	file := filepath.Clean(e.File)
	for i := len(args) - 1; i > 0; i-- {
		arg := args[i]
		if arg == e.File || filepath.Clean(arg) == file {
			return i
		}
		if !filepath.IsAbs(arg) && filepath.Join(e.Directory, arg) == file {
			return i
		}
	}
	return len(args) - 1
}

// deleteFlags deletes the first match of each pattern from args.
// args[0] and args[src] are never deleted.
func deleteFlags(args []string, src int, patterns Patterns) []string {
	for _, p := range patterns {
		for i := 1; i < len(args); i++ {
			if i <= src && src < i+p.Len() {
				continue
			}
			if !p.Match(args, i) {
				continue
			}
			args = slices.Delete(args, i, i+p.Len())
			if src > i {
				src -= p.Len()
			}
			break
		}
	}
	return args
}
