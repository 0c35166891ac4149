// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package toolchain discovers implicit settings of compiler toolchains,
// such as built-in system include directories.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"go.chromium.org/infra/build/cdbpatch/toolsupport/gccutil"
)

var (
	// ErrInvocationFailed is returned when a compiler couldn't be run,
	// exited with non-zero status or timed out.
	ErrInvocationFailed = errors.New("toolchain invocation failed")

	// ErrOutputUnrecognized is returned when a compiler's output
	// doesn't have an include search list.
	ErrOutputUnrecognized = errors.New("toolchain output unrecognized")
)

// IncludeResolver resolves system include directories of a compiler.
type IncludeResolver interface {
	Resolve(ctx context.Context, compiler string, lang gccutil.Lang) ([]string, error)
}

type key struct {
	compiler string
	lang     gccutil.Lang
}

type result struct {
	dirs []string
	err  error
}

// Resolver resolves system include directories by running compilers.
// Results, including failures, are cached for the lifetime of the
// Resolver, so each compiler and language is run at most once.
// It is safe for concurrent use.
type Resolver struct {
	runner Runner

	mu sync.Mutex
	m  map[key]result
	s  singleflight.Group
}

// NewResolver creates a new resolver running compilers with runner.
func NewResolver(runner Runner) *Resolver {
	return &Resolver{
		runner: runner,
		m:      make(map[key]result),
	}
}

// Resolve returns the system include directories of compiler for lang,
// in search order.
// The returned slice is shared by all callers and must not be modified.
func (r *Resolver) Resolve(ctx context.Context, compiler string, lang gccutil.Lang) ([]string, error) {
	if lang == gccutil.LangUnknown {
		return nil, fmt.Errorf("resolve %s: unknown language", compiler)
	}
	k := key{compiler: compiler, lang: lang}
	r.mu.Lock()
	res, ok := r.m[k]
	r.mu.Unlock()
	if ok {
		log.Debugf("toolchain cache hit %s %s: %d %v", compiler, lang, len(res.dirs), res.err)
		return res.dirs, res.err
	}
	v, _, _ := r.s.Do(k.compiler+"\x00"+k.lang.String(), func() (any, error) {
		r.mu.Lock()
		res, ok := r.m[k]
		r.mu.Unlock()
		if ok {
			return res, nil
		}
		res = r.resolve(ctx, k)
		if errors.Is(res.err, context.Canceled) {
			// don't cache run cancellation as a toolchain failure.
			return res, nil
		}
		r.mu.Lock()
		r.m[k] = res
		r.mu.Unlock()
		return res, nil
	})
	res = v.(result)
	return res.dirs, res.err
}

func (r *Resolver) resolve(ctx context.Context, k key) result {
	args := gccutil.DiscoveryArgs(k.compiler, k.lang)
	started := time.Now()
	stderr, err := r.runner.Run(ctx, args)
	if err != nil {
		var eerr *ExitError
		if errors.As(err, &eerr) {
			log.Warnf("failed to run %q: %v\n%s", args, err, eerr.Stderr)
		} else {
			log.Warnf("failed to run %q: %v", args, err)
		}
		if errors.Is(err, context.Canceled) {
			return result{err: err}
		}
		return result{err: fmt.Errorf("%w: %q: %w", ErrInvocationFailed, args, err)}
	}
	dirs, ok := gccutil.ParseIncludeSearchPath(stderr)
	if !ok {
		log.Warnf("no include search list in output of %q:\n%s", args, stderr)
		return result{err: fmt.Errorf("%w: %q: no include search list in %d bytes of stderr", ErrOutputUnrecognized, args, len(stderr))}
	}
	log.Infof("toolchain includes %s %s: %q (%s)", k.compiler, k.lang, dirs, time.Since(started))
	return result{dirs: dirs}
}
