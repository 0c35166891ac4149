// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/cdbpatch/runtimex"
	"go.chromium.org/infra/build/cdbpatch/sync/semaphore"
)

// Runner runs a command and returns its stderr.
type Runner interface {
	Run(ctx context.Context, args []string) (stderr []byte, err error)
}

// ExitError is an error of a command that exited with non-zero status.
type ExitError struct {
	ExitCode int
	Stderr   []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit=%d", e.ExitCode)
}

// DefaultTimeout is the default time limit of a toolchain invocation.
const DefaultTimeout = 30 * time.Second

// TimeoutEnv is the environment variable to override DefaultTimeout.
const TimeoutEnv = "CDBPATCH_TOOLCHAIN_TIMEOUT"

// TimeoutFromEnv returns the duration in $CDBPATCH_TOOLCHAIN_TIMEOUT,
// or DefaultTimeout if it is not set or invalid.
func TimeoutFromEnv() time.Duration {
	v := os.Getenv(TimeoutEnv)
	if v == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warnf("ignore %s=%q: %v", TimeoutEnv, v, err)
		return DefaultTimeout
	}
	return d
}

// forkSema limits concurrent child processes.
var forkSema = semaphore.New("toolchain-fork", runtimex.NumCPU())

// LocalRunner runs commands locally with empty stdin and discarded stdout.
type LocalRunner struct {
	// Dir is the working directory of the commands.
	// Empty means the current directory.
	Dir string

	// Timeout is the time limit of a command. Zero means no limit.
	Timeout time.Duration
}

// Run runs args and returns its stderr.
func (r LocalRunner) Run(ctx context.Context, args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, errors.New("no arguments in the command")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.Dir = r.Dir
	c.Stdin = strings.NewReader("")
	c.Stdout = io.Discard
	var stderr bytes.Buffer
	c.Stderr = &stderr
	// don't wait forever for grandchildren holding stderr.
	c.WaitDelay = time.Second

	s := time.Now()
	var wait time.Duration
	err := forkSema.Do(ctx, func(ctx context.Context) error {
		wait = time.Since(s)
		return c.Start()
	})
	if err == nil {
		err = c.Wait()
	}
	log.Debugf("run %q: %v stderr=%d (%s wait:%s serv:%d/%d) %s", args, err, stderr.Len(), forkSema.Name(), wait, forkSema.NumServs(), forkSema.Capacity(), time.Since(s))
	if ctx.Err() != nil {
		return stderr.Bytes(), fmt.Errorf("%q: %w", args, context.Cause(ctx))
	}
	if err != nil {
		var eerr *exec.ExitError
		if errors.As(err, &eerr) {
			return stderr.Bytes(), &ExitError{ExitCode: exitCode(eerr), Stderr: stderr.Bytes()}
		}
		return stderr.Bytes(), err
	}
	return stderr.Bytes(), nil
}

func exitCode(eerr *exec.ExitError) int {
	if w, ok := eerr.ProcessState.Sys().(syscall.WaitStatus); ok {
		return w.ExitStatus()
	}
	return eerr.ExitCode()
}
