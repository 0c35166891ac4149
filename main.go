// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Cdbpatch patches compilation databases for another compiler or tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/system/signals"

	"go.chromium.org/infra/build/cdbpatch/subcmd/help"
	"go.chromium.org/infra/build/cdbpatch/subcmd/includes"
	"go.chromium.org/infra/build/cdbpatch/subcmd/patchcmd"
	"go.chromium.org/infra/build/cdbpatch/subcmd/version"
	"go.chromium.org/infra/build/cdbpatch/toolchain"
	"go.chromium.org/infra/build/cdbpatch/ui"
)

const cdbpatchVersion = "cdbpatch v1.0.0"

var verbose = flag.Bool("v", false, "verbose logging")

func main() {
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(out, " %s [global flags] <command> [flags] [args]\n", os.Args[0])
		fmt.Fprintf(out, "global flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(out, "Use \"%s help\" for commands.\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	os.Exit(cdbpatchMain(flag.Args()))
}

func cdbpatchMain(args []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer signals.HandleInterrupt(cancel)()

	if *verbose {
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
	}
	ui.Init()
	defer ui.Restore()

	// Print a stack trace when a panic occurs.
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Fatalf("panic: %v\n%s", r, buf)
		}
	}()

	// Print build information to the log.
	if buildinfo, ok := debug.ReadBuildInfo(); ok {
		log.Debugf("main module: %s %s", moduleInfo(&buildinfo.Main), vcsInfo(buildinfo))
	}

	return subcommands.Run(getApplication(ctx), args)
}

func getApplication(ctx context.Context) *cli.Application {
	return &cli.Application{
		Name:  "cdbpatch",
		Title: "Compilation database patcher",
		Context: func(context.Context) context.Context {
			return ctx
		},
		Commands: []*subcommands.Command{
			patchcmd.Cmd(),
			includes.Cmd(),
			version.Cmd(cdbpatchVersion),
			help.Cmd(),
		},
		EnvVars: map[string]subcommands.EnvVarDefinition{
			toolchain.TimeoutEnv: {
				ShortDesc: "default of -toolchain_timeout",
			},
		},
	}
}

func moduleInfo(m *debug.Module) string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("path:%s version:%s sum:%s replace:%s", m.Path, m.Version, m.Sum, moduleInfo(m.Replace))
}

func vcsInfo(buildinfo *debug.BuildInfo) string {
	m := make(map[string]string)
	for _, bs := range buildinfo.Settings {
		if strings.HasPrefix(bs.Key, "vcs.") {
			m[bs.Key] = bs.Value
		}
	}
	return fmt.Sprintf("vcs[revision=%s time=%s modified=%s]", m["vcs.revision"], m["vcs.time"], m["vcs.modified"])
}
