// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package patchcmd provides patch subcommand.
package patchcmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"

	"go.chromium.org/infra/build/cdbpatch/cdb"
	"go.chromium.org/infra/build/cdbpatch/patch"
	"go.chromium.org/infra/build/cdbpatch/runtimex"
	"go.chromium.org/infra/build/cdbpatch/toolchain"
	"go.chromium.org/infra/build/cdbpatch/ui"
)

const usage = `patch compile commands in compilation database

 $ cdbpatch patch [--use-cc <cc>] [--use-cxx <cxx>] \
     [--resolve-toolchain-includes] [--ccdel <pattern>]... \
     [--ccadd <flag>]... -o <output> <compile_commands.json>

For each entry, it replaces the compiler, deletes flags matching
--ccdel patterns, adds system include directories of the compiler
if --resolve-toolchain-includes is set, and appends --ccadd flags.

--ccdel pattern:
  -mlongcalls          deletes the flag "-mlongcalls".
  -fmacro-prefix-map=  deletes a flag starting with "-fmacro-prefix-map=".
  -I*                  deletes a flag starting with "-I".
  "-include config.h"  deletes the flag "-include" followed by "config.h".
Each pattern deletes at most one flag per entry. Repeat the pattern to
delete more.

Entries failed to patch are written as is, and it exits with 1.
`

// Cmd returns the Command for the `patch` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "patch [flags] <compile_commands.json>",
		ShortDesc: "patch compile commands in compilation database",
		LongDesc:  usage,
		CommandRun: func() subcommands.CommandRun {
			c := &run{w: os.Stdout, ui: ui.Default}
			c.init()
			return c
		},
	}
}

type run struct {
	subcommands.CommandRunBase
	w  io.Writer
	ui ui.UI

	cc              string
	cxx             string
	resolveIncludes bool
	nostdinc        bool
	ccdel           patch.Patterns
	ccadd           stringList

	output           string
	inPlace          bool
	jobs             int
	toolchainTimeout time.Duration
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func (c *run) init() {
	c.Flags.StringVar(&c.cc, "use-cc", "", "compiler to use for C entries")
	c.Flags.StringVar(&c.cxx, "use-cxx", "", "compiler to use for C++ entries")
	c.Flags.BoolVar(&c.resolveIncludes, "resolve-toolchain-includes", false, "add system include directories reported by the compiler")
	c.Flags.BoolVar(&c.nostdinc, "nostdinc", true, "add -nostdinc after resolved toolchain includes")
	c.Flags.Var(&c.ccdel, "ccdel", "flag pattern to delete. can be repeated")
	c.Flags.Var(&c.ccadd, "ccadd", "flag to append. can be repeated")

	c.Flags.StringVar(&c.output, "o", "", "output compilation database")
	c.Flags.BoolVar(&c.inPlace, "in_place", false, "overwrite input compilation database")
	c.Flags.IntVar(&c.jobs, "j", runtimex.NumCPU(), "number of entries to patch in parallel")
	c.Flags.DurationVar(&c.toolchainTimeout, "toolchain_timeout", toolchain.TimeoutFromEnv(), "timeout of a toolchain invocation. $"+toolchain.TimeoutEnv)
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
		return 1
	}
	return 0
}

func (c *run) run(ctx context.Context, args []string) error {
	started := time.Now()
	if len(args) != 1 {
		return fmt.Errorf("want one compilation database, got %d: %w", len(args), flag.ErrHelp)
	}
	input := args[0]
	output := c.output
	switch {
	case c.inPlace && output != "":
		return fmt.Errorf("-o and -in_place are exclusive: %w", flag.ErrHelp)
	case c.inPlace:
		output = input
	case output == "":
		return fmt.Errorf("no output. use -o or -in_place: %w", flag.ErrHelp)
	}

	entries, err := cdb.Load(input)
	if err != nil {
		return err
	}
	plan := patch.Plan{
		CC:              c.cc,
		CXX:             c.cxx,
		Delete:          c.ccdel,
		ResolveIncludes: c.resolveIncludes,
		NoStdInc:        c.nostdinc,
		Add:             c.ccadd,
	}
	opts := patch.Options{Jobs: c.jobs}
	if c.resolveIncludes {
		// relative compilers are resolved against entry's directory
		// by patch.Transform.
		opts.Resolver = toolchain.NewResolver(toolchain.LocalRunner{
			Timeout: c.toolchainTimeout,
		})
	}
	log.Debugf("plan: %#v", plan)

	spin := c.ui.NewSpinner()
	spin.Start("patching %d entries", len(entries))
	result, err := patch.Run(ctx, entries, plan, opts)
	if err != nil {
		spin.Stop(err)
		return err
	}
	runErr := result.Err()
	if runErr != nil {
		spin.Done("%s", ui.SGR(ui.Red, fmt.Sprintf("%d failed", len(result.Failures))))
		c.ui.PrintLines(failureLines(result.Failures)...)
	} else {
		spin.Done("%s", ui.SGR(ui.Green, "ok"))
	}

	err = cdb.Save(output, result.Entries)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.w, "%s %d entries -> %s in %s\n",
		summary(len(result.Entries), len(result.Failures)),
		len(result.Entries), output, ui.FormatDuration(time.Since(started)))
	return runErr
}

// failureLines returns lines to print from the current line, one per failure.
func failureLines(failures []patch.Failure) []string {
	lines := []string{"\n"}
	for _, f := range failures {
		lines = append(lines, fmt.Sprintf("%s %s: %v", ui.SGR(ui.Yellow, "failed"), ui.SGR(ui.Bold, f.File), f.Err))
	}
	return lines
}

func summary(n, failed int) string {
	if failed > 0 {
		msg := fmt.Sprintf("patched %d, failed %d:", n-failed, failed)
		if ui.IsTerminal() {
			return ui.SGR(ui.Red, msg)
		}
		return msg
	}
	if ui.IsTerminal() {
		return ui.SGR(ui.Green, "patched")
	}
	return "patched"
}
