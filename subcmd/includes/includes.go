// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package includes provides includes subcommand to show system include
// directories of a compiler.
package includes

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"

	"go.chromium.org/infra/build/cdbpatch/toolchain"
	"go.chromium.org/infra/build/cdbpatch/toolsupport/gccutil"
)

const usage = `show system include directories of a compiler

 $ cdbpatch includes [-lang c|c++] <compiler>

prints system include directories reported by <compiler>, one per line,
in search order.
With -args, prints them as flags used by "cdbpatch patch".
`

// Cmd returns the Command for the `includes` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "includes [-lang c|c++] <compiler>",
		ShortDesc: "show system include directories of a compiler",
		LongDesc:  usage,
		Advanced:  true,
		CommandRun: func() subcommands.CommandRun {
			c := &run{w: os.Stdout}
			c.init()
			return c
		},
	}
}

type run struct {
	subcommands.CommandRunBase
	w io.Writer

	lang             string
	args             bool
	toolchainTimeout time.Duration

	runner toolchain.Runner
}

func (c *run) init() {
	c.Flags.StringVar(&c.lang, "lang", "c++", "language of the compiler: c or c++")
	c.Flags.BoolVar(&c.args, "args", false, "print as -isystem flags")
	c.Flags.DurationVar(&c.toolchainTimeout, "toolchain_timeout", toolchain.TimeoutFromEnv(), "timeout of the compiler invocation. $"+toolchain.TimeoutEnv)
}

func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	err := c.run(ctx, args)
	if err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			fmt.Fprintf(os.Stderr, "%v\n%s\n", err, usage)
			return 2
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		var eerr *toolchain.ExitError
		if errors.As(err, &eerr) {
			os.Stderr.Write(eerr.Stderr)
		}
		return 1
	}
	return 0
}

func (c *run) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("want one compiler, got %d: %w", len(args), flag.ErrHelp)
	}
	lang, ok := gccutil.ParseLang(c.lang)
	if !ok {
		return fmt.Errorf("unknown language %q: %w", c.lang, flag.ErrHelp)
	}
	runner := c.runner
	if runner == nil {
		runner = toolchain.LocalRunner{Timeout: c.toolchainTimeout}
	}
	dirs, err := toolchain.NewResolver(runner).Resolve(ctx, args[0], lang)
	if err != nil {
		return err
	}
	if c.args {
		for _, arg := range gccutil.SystemIncludeArgs(dirs) {
			fmt.Fprintln(c.w, arg)
		}
		return nil
	}
	for _, dir := range dirs {
		fmt.Fprintln(c.w, dir)
	}
	return nil
}
