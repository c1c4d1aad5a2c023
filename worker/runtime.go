package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

var ErrRuntimeClosed = errors.New("runtime closed")

// Runtime owns a wazero runtime and the interpreter modules compiled on it.
// One Runtime serves any number of channels.
type Runtime struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	loader   *loader
	compiled map[string]wazero.CompiledModule
	mu       sync.RWMutex
	closed   bool
}

// NewRuntime creates a Runtime with WASI preview1 instantiated.
func NewRuntime(ctx context.Context, opts ...RuntimeOption) (*Runtime, error) {
	cfg := defaultRuntimeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cacheDir := cfg.cacheDir
	if cfg.diskCache && cacheDir == "" {
		cacheDir = defaultCacheDir()
	}

	var cache wazero.CompilationCache
	if cfg.diskCache {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(filepath.Join(cacheDir, "compiled"))
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	client := cfg.httpClient
	if client == nil {
		client = &http.Client{Timeout: DefaultDownloadTimeout}
	}
	ld := &loader{client: client, maxSize: cfg.maxModuleSize}
	if cfg.diskCache {
		ld.cacheDir = filepath.Join(cacheDir, "modules")
	}

	r := &Runtime{
		runtime:  rt,
		cache:    cache,
		loader:   ld,
		compiled: make(map[string]wazero.CompiledModule),
	}

	for _, location := range cfg.precompile {
		if _, err := r.compile(ctx, location); err != nil {
			r.Close()
			return nil, fmt.Errorf("precompile %s: %w", location, err)
		}
	}

	return r, nil
}

// compile returns the cached module for location, fetching and compiling it
// on first use.
func (r *Runtime) compile(ctx context.Context, location string) (wazero.CompiledModule, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrRuntimeClosed
	}
	if compiled, ok := r.compiled[location]; ok {
		r.mu.RUnlock()
		return compiled, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRuntimeClosed
	}
	if compiled, ok := r.compiled[location]; ok {
		return compiled, nil
	}

	binary, err := r.loader.fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	compiled, err := r.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", location, err)
	}

	r.compiled[location] = compiled
	return compiled, nil
}

// Dialer returns a Dialer that starts lang's interpreter, loaded from
// location, in a fresh module instance per call.
func (r *Runtime) Dialer(location string, lang Language, opts ...ChannelOption) Dialer {
	cfg := defaultChannelConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(ctx context.Context, h Handler) (Channel, error) {
		compiled, err := r.compile(ctx, location)
		if err != nil {
			return nil, err
		}
		return startChannel(r.runtime, compiled, lang, cfg, h), nil
	}
}

// Close releases the runtime, every compiled module and the compilation
// cache. Channels still running are stopped.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	ctx := context.Background()

	var errs []error
	if err := r.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
