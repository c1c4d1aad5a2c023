package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/wasmkernel/kernel"
)

var rootCmd = &cobra.Command{
	Use:   "wasmkernel [file]",
	Short: "Notebook kernel for a sandboxed WebAssembly Python interpreter",
	Long: `wasmkernel - Run Python in a WebAssembly sandbox behind a notebook kernel.

The interpreter module is loaded from --bootstrap-url (an http(s) URL, a
file:// URL or a path) and runs under wazero with no filesystem or network
access. Enable host capabilities explicitly with flags.

Settings come from the config file, WASMKERNEL_* environment variables and
flags, in increasing precedence.`,
	Version:       kernel.Version,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runRun,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// errReported marks failures whose details were already printed.
var errReported = errors.New("reported")

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default $XDG_CONFIG_HOME/wasmkernel/config.yaml)")
	pf.String("bootstrap-url", "", "Interpreter module: http(s) URL, file:// URL or path")
	pf.String("cache-dir", "", "Download and compilation cache directory")
	pf.Bool("no-cache", false, "Disable the on-disk module cache")
	pf.String("memory", "default", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")
	pf.Duration("timeout", 0, "Execution timeout (default from config, 30s)")
	pf.Duration("boot-timeout", 0, "Interpreter boot timeout (default from config, 2m)")
	pf.Bool("kv", false, "Enable key-value store")
	pf.StringSlice("allow-host", nil, "Allow HTTP to host (repeatable)")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-format", "", "Log format: json, text")
	pf.String("log-file", "", "Write logs to file instead of stderr")

	addRunFlags(rootCmd)
}
