package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/caffeineduck/wasmkernel/hostfunc"
	"github.com/caffeineduck/wasmkernel/internal/config"
	"github.com/caffeineduck/wasmkernel/internal/logging"
	"github.com/caffeineduck/wasmkernel/kernel"
	"github.com/caffeineduck/wasmkernel/language/python"
	"github.com/caffeineduck/wasmkernel/worker"
)

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"bootstrap-url": "worker.bootstrap_url",
	"cache-dir":     "worker.cache_dir",
	"memory":        "worker.memory",
	"timeout":       "kernel.execute_timeout",
	"boot-timeout":  "kernel.boot_timeout",
	"kv":            "hostfunc.kv",
	"allow-host":    "hostfunc.allowed_hosts",
	"http-max-url":  "hostfunc.http_max_url",
	"http-max-body": "hostfunc.http_max_body",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"log-file":      "logging.file",
	"addr":          "server.addr",
	"kernel-ttl":    "server.kernel_ttl",
}

// app holds what every command builds from its flags.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog io.Closer
	lang     *python.Python
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")

	v := viper.New()
	if err := config.Init(v, cfgFile); err != nil {
		return nil, err
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	if cmd.Flags().Changed("no-cache") {
		noCache, _ := cmd.Flags().GetBool("no-cache")
		v.Set("worker.disk_cache", !noCache)
	}

	return config.Load(v)
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, closeLog: closer, lang: python.New()}, nil
}

func (a *app) Close() {
	a.closeLog.Close()
}

// newRuntime creates the wazero runtime and compiles the interpreter module
// up front so boot failures surface before any kernel starts.
func (a *app) newRuntime(ctx context.Context) (*worker.Runtime, error) {
	if err := a.cfg.RequireBootstrap(); err != nil {
		return nil, err
	}

	pages, err := worker.ParseMemoryLimit(a.cfg.Worker.Memory)
	if err != nil {
		return nil, err
	}

	opts := []worker.RuntimeOption{
		worker.WithMaxModuleSize(a.cfg.Worker.MaxModuleSize),
		worker.WithPrecompile(a.cfg.Worker.BootstrapURL),
	}
	if a.cfg.Worker.DiskCache {
		if a.cfg.Worker.CacheDir != "" {
			opts = append(opts, worker.WithDiskCache(a.cfg.Worker.CacheDir))
		} else {
			opts = append(opts, worker.WithDiskCache())
		}
	}
	if pages > 0 {
		opts = append(opts, worker.WithMemoryLimit(pages))
	}

	a.logger.Debug("loading interpreter", "bootstrap_url", a.cfg.Worker.BootstrapURL)
	return worker.NewRuntime(ctx, opts...)
}

// dialer returns a Dialer for the configured interpreter and host functions.
// All channels from one dialer share a single KV store.
func (a *app) dialer(rt *worker.Runtime) worker.Dialer {
	opts := []worker.ChannelOption{
		worker.WithLogger(a.logger),
	}
	if a.cfg.HostFunc.KV {
		opts = append(opts, worker.WithKV(hostfunc.NewKV(hostfunc.DefaultKVConfig())))
	}
	if len(a.cfg.HostFunc.AllowedHosts) > 0 {
		opts = append(opts,
			worker.WithAllowedHosts(a.cfg.HostFunc.AllowedHosts),
			worker.WithHTTPLimits(a.cfg.HostFunc.HTTPMaxURL, a.cfg.HostFunc.HTTPMaxBody),
		)
	}
	return rt.Dialer(a.cfg.Worker.BootstrapURL, a.lang, opts...)
}

func (a *app) kernelOptions(extra ...kernel.Option) []kernel.Option {
	opts := []kernel.Option{
		kernel.WithLanguageInfo(a.lang.LanguageInfo()),
		kernel.WithLogger(a.logger),
	}
	return append(opts, extra...)
}

// startKernel starts a kernel and waits for it to boot.
func (a *app) startKernel(ctx context.Context, dial worker.Dialer, opts ...kernel.Option) (*kernel.Kernel, error) {
	k, err := kernel.New(ctx, dial, a.kernelOptions(opts...)...)
	if err != nil {
		return nil, err
	}

	bootCtx, cancel := context.WithTimeout(ctx, a.cfg.Kernel.BootTimeout)
	defer cancel()
	if err := k.WaitReady(bootCtx); err != nil {
		k.Dispose()
		return nil, fmt.Errorf("boot interpreter: %w", err)
	}
	return k, nil
}
