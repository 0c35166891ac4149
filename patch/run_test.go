// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/infra/build/cdbpatch/cdb"
	"go.chromium.org/infra/build/cdbpatch/toolchain"
	"go.chromium.org/infra/build/cdbpatch/toolsupport/shutil"
)

type countingRunner struct {
	n      atomic.Int32
	stderr string
	err    error
}

func (r *countingRunner) Run(ctx context.Context, args []string) ([]byte, error) {
	r.n.Add(1)
	return []byte(r.stderr), r.err
}

const searchList = `#include <...> search starts here:
 /toolchain/include
End of search list.
`

func TestRun_PartialFailure(t *testing.T) {
	ctx := context.Background()
	entries, err := cdb.Parse([]byte(`[
  {"directory": "/w", "command": "gcc -mlongcalls -c a.c", "file": "a.c"},
  {"directory": "/w", "command": "gcc -mlongcalls -c \"b.c", "file": "b.c"},
  {"directory": "/w", "command": "gcc -mlongcalls -c c.c", "file": "c.c"}
]`))
	if err != nil {
		t.Fatal(err)
	}
	plan := Plan{Delete: Patterns{ParsePattern("-mlongcalls")}}
	result, err := Run(ctx, entries, plan, Options{Jobs: 2})
	if err != nil {
		t.Fatalf("Run=%v; want nil error", err)
	}
	var got []string
	for _, e := range result.Entries {
		got = append(got, e.Command)
	}
	want := []string{
		"gcc -c a.c",
		`gcc -mlongcalls -c "b.c`,
		"gcc -c c.c",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Run entries diff -want +got:\n%s", diff)
	}

	runErr := result.Err()
	var rerr *RunError
	if !errors.As(runErr, &rerr) {
		t.Fatalf("result.Err()=%v; want *RunError", runErr)
	}
	if len(rerr.Failures) != 1 || rerr.Failures[0].File != "b.c" || rerr.Failures[0].Index != 1 {
		t.Errorf("failures=%v; want b.c at 1", rerr.Failures)
	}
	if !errors.Is(runErr, shutil.ErrMalformedCommand) {
		t.Errorf("result.Err()=%v; want %v", runErr, shutil.ErrMalformedCommand)
	}
	if !strings.Contains(runErr.Error(), "b.c") {
		t.Errorf("result.Err()=%q; want to name b.c", runErr)
	}
}

func TestRun_Success(t *testing.T) {
	ctx := context.Background()
	entries, err := cdb.Parse([]byte(`[
  {"directory": "/w", "command": "gcc -c a.c", "file": "a.c"},
  {"directory": "/w", "arguments": ["g++", "-c", "b.cc"], "file": "b.cc", "output": "b.o"}
]`))
	if err != nil {
		t.Fatal(err)
	}
	result, err := Run(ctx, entries, Plan{Add: []string{"-DCHECK"}}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := result.Err(); err != nil {
		t.Errorf("result.Err()=%v; want nil", err)
	}
	if got, want := result.Entries[0].Command, "gcc -c a.c -DCHECK"; got != want {
		t.Errorf("entries[0].Command=%q; want %q", got, want)
	}
	if diff := cmp.Diff([]string{"g++", "-c", "b.cc", "-DCHECK"}, result.Entries[1].Arguments); diff != "" {
		t.Errorf("entries[1].Arguments diff -want +got:\n%s", diff)
	}
	if got := result.Entries[1].Output; got != "b.o" {
		t.Errorf("entries[1].Output=%q; want b.o", got)
	}
	if got := entries[0].Command; got != "gcc -c a.c" {
		t.Errorf("input modified: %q", got)
	}
}

func TestRun_ResolverCache(t *testing.T) {
	ctx := context.Background()
	var sb strings.Builder
	sb.WriteString("[")
	const n = 50
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		ext := "cc"
		if i%2 == 1 {
			ext = "c"
		}
		fmt.Fprintf(&sb, `{"directory": "/w", "command": "gcc -c f%d.%s", "file": "f%d.%s"}`, i, ext, i, ext)
	}
	sb.WriteString("]")
	entries, err := cdb.Parse([]byte(sb.String()))
	if err != nil {
		t.Fatal(err)
	}

	runner := &countingRunner{stderr: searchList}
	plan := Plan{
		CXX:             "xtensa-esp32-elf-g++",
		ResolveIncludes: true,
	}
	result, err := Run(ctx, entries, plan, Options{Jobs: 8, Resolver: toolchain.NewResolver(runner)})
	if err != nil {
		t.Fatal(err)
	}
	if err := result.Err(); err != nil {
		t.Fatalf("result.Err()=%v", err)
	}
	// xtensa-esp32-elf-g++ for C++, gcc for C.
	if got := runner.n.Load(); got != 2 {
		t.Errorf("compiler invoked %d times; want 2", got)
	}
	for i, e := range result.Entries {
		if wantFile := fmt.Sprintf("f%d.", i); !strings.HasPrefix(e.File, wantFile) {
			t.Errorf("entries[%d].File=%q; want order preserved", i, e.File)
		}
		if !strings.HasSuffix(e.Command, "-isystem /toolchain/include") {
			t.Errorf("entries[%d].Command=%q; want toolchain include", i, e.Command)
		}
	}
}

func TestRun_ResolverFailureShared(t *testing.T) {
	ctx := context.Background()
	entries, err := cdb.Parse([]byte(`[
  {"directory": "/w", "command": "broken-cc -c a.c", "file": "a.c"},
  {"directory": "/w", "command": "broken-cc -c b.c", "file": "b.c"},
  {"directory": "/w", "command": "broken-cc -c c.S", "file": "c.S"}
]`))
	if err != nil {
		t.Fatal(err)
	}
	runner := &countingRunner{err: &toolchain.ExitError{ExitCode: 1}}
	result, err := Run(ctx, entries, Plan{ResolveIncludes: true}, Options{Jobs: 1, Resolver: toolchain.NewResolver(runner)})
	if err != nil {
		t.Fatal(err)
	}
	if got := runner.n.Load(); got != 1 {
		t.Errorf("compiler invoked %d times; want 1", got)
	}
	var files []string
	for _, f := range result.Failures {
		if !errors.Is(f, toolchain.ErrInvocationFailed) {
			t.Errorf("failure %s: %v; want %v", f.File, f.Err, toolchain.ErrInvocationFailed)
		}
		files = append(files, f.File)
	}
	if diff := cmp.Diff([]string{"a.c", "b.c"}, files); diff != "" {
		t.Errorf("failed files diff -want +got:\n%s", diff)
	}
	if got := result.Entries[2].Command; got != "broken-cc -c c.S" {
		t.Errorf("entries[2].Command=%q; want unchanged", got)
	}
}

func TestRun_NoResolver(t *testing.T) {
	_, err := Run(context.Background(), nil, Plan{ResolveIncludes: true}, Options{})
	if err == nil {
		t.Errorf("Run without resolver=nil; want error")
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	entries, err := cdb.Parse([]byte(`[{"directory": "/w", "command": "gcc -c a.c", "file": "a.c"}]`))
	if err != nil {
		t.Fatal(err)
	}
	_, err = Run(ctx, entries, Plan{}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run(canceled)=%v; want %v", err, context.Canceled)
	}
}

func TestRun_RelativeCompilerPerDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script compiler is not supported on windows")
	}
	ctx := context.Background()
	root := t.TempDir()
	for _, name := range []string{"a", "b"} {
		dir := filepath.Join(root, name)
		err := os.Mkdir(dir, 0755)
		if err != nil {
			t.Fatal(err)
		}
		err = os.WriteFile(filepath.Join(dir, "cc.sh"), []byte(`#!/bin/sh
cat > /dev/null
echo '#include <...> search starts here:' >&2
echo ' /toolchain/`+name+`/include' >&2
echo 'End of search list.' >&2
`), 0755)
		if err != nil {
			t.Fatal(err)
		}
	}
	entries, err := cdb.Parse([]byte(fmt.Sprintf(`[
  {"directory": %q, "command": "./cc.sh -c x.c", "file": "x.c"},
  {"directory": %q, "command": "./cc.sh -c x.c", "file": "x.c"}
]`, filepath.Join(root, "a"), filepath.Join(root, "b"))))
	if err != nil {
		t.Fatal(err)
	}
	resolver := toolchain.NewResolver(toolchain.LocalRunner{Timeout: 10 * time.Second})
	result, err := Run(ctx, entries, Plan{ResolveIncludes: true}, Options{Jobs: 2, Resolver: resolver})
	if err != nil {
		t.Fatal(err)
	}
	if err := result.Err(); err != nil {
		t.Fatalf("result.Err()=%v; want nil", err)
	}
	var got []string
	for _, e := range result.Entries {
		got = append(got, e.Command)
	}
	want := []string{
		"./cc.sh -c x.c -isystem /toolchain/a/include",
		"./cc.sh -c x.c -isystem /toolchain/b/include",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Run entries diff -want +got:\n%s", diff)
	}
}
