// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package patch

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"go.chromium.org/infra/build/cdbpatch/cdb"
	"go.chromium.org/infra/build/cdbpatch/toolchain"
)

// Failure is a failure of an entry.
type Failure struct {
	// Index is the index of the entry in the database.
	Index int
	// File is the file of the entry.
	File string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.File, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// RunError is an error of a run where some entries failed.
type RunError struct {
	Failures []Failure
}

func (e *RunError) Error() string {
	files := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		files = append(files, f.File)
	}
	return fmt.Sprintf("%d entries failed: %s", len(e.Failures), strings.Join(files, ", "))
}

// Unwrap returns errors of the failed entries.
func (e *RunError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Result is a result of Run.
type Result struct {
	// Entries are the patched entries, in the input order.
	// Failed entries are kept as is.
	Entries []cdb.Entry

	// Failures are failed entries, in the input order.
	Failures []Failure
}

// Err returns *RunError if any entry failed, or nil.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &RunError{Failures: r.Failures}
}

// Options are options of Run.
type Options struct {
	// Jobs is the number of entries processed in parallel.
	// Zero or negative means no limit.
	Jobs int

	// Resolver resolves toolchain includes.
	// Required if the plan has ResolveIncludes.
	Resolver toolchain.IncludeResolver
}

// Run applies plan to every entry.
// An entry's failure doesn't stop the run; it is reported in the result.
// It returns an error only when ctx is canceled.
func Run(ctx context.Context, entries []cdb.Entry, plan Plan, opts Options) (*Result, error) {
	if plan.ResolveIncludes && opts.Resolver == nil {
		return nil, fmt.Errorf("resolve includes requested without resolver")
	}
	out := make([]cdb.Entry, len(entries))
	errs := make([]error, len(entries))
	var eg errgroup.Group
	if opts.Jobs > 0 {
		eg.SetLimit(opts.Jobs)
	}
	for i := range entries {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			e := &entries[i]
			patched, err := Transform(ctx, e, plan, opts.Resolver)
			if err != nil {
				out[i] = e.Clone()
				errs[i] = err
				return nil
			}
			out[i] = patched
			return nil
		})
	}
	eg.Wait()
	if err := context.Cause(ctx); err != nil {
		return nil, err
	}

	result := &Result{Entries: out}
	for i, err := range errs {
		if err == nil {
			continue
		}
		log.Warnf("failed to patch entry %d %s: %v", i, entries[i].File, err)
		result.Failures = append(result.Failures, Failure{
			Index: i,
			File:  entries[i].File,
			Err:   err,
		})
	}
	log.Infof("patched %d entries, %d failed", len(entries)-len(result.Failures), len(result.Failures))
	return result, nil
}
