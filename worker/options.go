package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caffeineduck/wasmkernel/hostfunc"
)

// RuntimeOption configures a Runtime at creation time.
type RuntimeOption func(*runtimeConfig)

type runtimeConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // 0 = wazero default (4GB)
	maxModuleSize    int64
	httpClient       *http.Client
	precompile       []string
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		maxModuleSize: DefaultMaxModuleSize,
	}
}

// WithDiskCache persists compiled modules and downloaded interpreter
// binaries. Optionally provide a directory; otherwise uses
// XDG_CACHE_HOME/wasmkernel or ~/.cache/wasmkernel.
func WithDiskCache(dir ...string) RuntimeOption {
	return func(c *runtimeConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit caps guest memory in 64KB pages.
func WithMemoryLimit(pages uint32) RuntimeOption {
	return func(c *runtimeConfig) {
		c.memoryLimitPages = pages
	}
}

// WithMaxModuleSize bounds the size of a fetched interpreter module.
func WithMaxModuleSize(n int64) RuntimeOption {
	return func(c *runtimeConfig) {
		if n > 0 {
			c.maxModuleSize = n
		}
	}
}

// WithHTTPClient sets the client used to download interpreter modules.
func WithHTTPClient(client *http.Client) RuntimeOption {
	return func(c *runtimeConfig) {
		c.httpClient = client
	}
}

// WithPrecompile fetches and compiles the given bootstrap locations when the
// Runtime is created instead of on first dial.
func WithPrecompile(locations ...string) RuntimeOption {
	return func(c *runtimeConfig) {
		c.precompile = append(c.precompile, locations...)
	}
}

// Memory limit constants in 64KB pages.
const (
	MemoryLimit1MB   uint32 = 16
	MemoryLimit16MB  uint32 = 256
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
	MemoryLimit1GB   uint32 = 16384
)

// ParseMemoryLimit converts a size name such as "256mb" to pages.
// An empty string or "default" returns 0.
func ParseMemoryLimit(s string) (uint32, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return 0, nil
	case "1mb":
		return MemoryLimit1MB, nil
	case "16mb":
		return MemoryLimit16MB, nil
	case "64mb":
		return MemoryLimit64MB, nil
	case "256mb":
		return MemoryLimit256MB, nil
	case "1gb":
		return MemoryLimit1GB, nil
	}
	return 0, fmt.Errorf("invalid memory limit %q (expected 1mb, 16mb, 64mb, 256mb or 1gb)", s)
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "wasmkernel")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "wasmkernel")
	}
	return filepath.Join(os.TempDir(), "wasmkernel-cache")
}

// ChannelOption configures the channels produced by a Dialer.
type ChannelOption func(*channelConfig)

type channelConfig struct {
	registry *hostfunc.Registry
	kv       *hostfunc.KV
	http     hostfunc.HTTPConfig
	env      map[string]string
	logger   *slog.Logger
}

func defaultChannelConfig() channelConfig {
	return channelConfig{
		env:    map[string]string{"WASMKERNEL_WORKER": "1"},
		logger: slog.New(slog.DiscardHandler),
	}
}

// WithRegistry provides base host functions. The dialer clones it, so
// capabilities added per channel do not leak into r.
func WithRegistry(r *hostfunc.Registry) ChannelOption {
	return func(c *channelConfig) {
		c.registry = r
	}
}

// WithKV exposes kv to the guest as kv_get, kv_set, kv_delete and kv_keys.
func WithKV(kv *hostfunc.KV) ChannelOption {
	return func(c *channelConfig) {
		c.kv = kv
	}
}

// WithAllowedHosts enables http_request and http_get for the given hosts.
func WithAllowedHosts(hosts []string) ChannelOption {
	return func(c *channelConfig) {
		c.http.AllowedHosts = hosts
	}
}

// WithHTTPLimits bounds guest HTTP requests. Zero values keep defaults.
func WithHTTPLimits(maxURLLength int, maxBodySize int64) ChannelOption {
	return func(c *channelConfig) {
		c.http.MaxURLLength = maxURLLength
		c.http.MaxBodySize = maxBodySize
	}
}

// WithEnv sets an environment variable in the guest.
func WithEnv(key, value string) ChannelOption {
	return func(c *channelConfig) {
		c.env[key] = value
	}
}

// WithLogger sets the logger for channel diagnostics.
func WithLogger(l *slog.Logger) ChannelOption {
	return func(c *channelConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// buildRegistry assembles the host functions visible to one channel.
func (c channelConfig) buildRegistry() *hostfunc.Registry {
	r := c.registry.Clone()
	r.Register("time_now", func(ctx context.Context, args map[string]any) (any, error) {
		return float64(time.Now().UnixNano()) / 1e9, nil
	})
	if c.kv != nil {
		c.kv.Register(r)
	}
	if len(c.http.AllowedHosts) > 0 {
		hostfunc.NewHTTP(c.http).Register(r)
	}
	return r
}
