package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/caffeineduck/wasmkernel/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"
)

// wasmChannel is a Channel backed by one running module instance. The guest
// reads requests and host call replies from stdin and reports through stdout
// and framed stderr.
type wasmChannel struct {
	handle   Handler
	logger   *slog.Logger
	registry *hostfunc.Registry

	ctx    context.Context
	cancel context.CancelFunc

	stdinReader *io.PipeReader
	stdin       *io.PipeWriter
	writeMu     sync.Mutex

	stderr *frameReader

	deliverMu sync.Mutex

	done          chan struct{}
	err           error
	terminated    atomic.Bool
	terminateOnce sync.Once
}

func startChannel(rt wazero.Runtime, compiled wazero.CompiledModule, lang Language, cfg channelConfig, h Handler) Channel {
	c := newWasmChannel(lang.Name(), cfg, h)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(stdoutWriter{c}).
		WithStderr(c.stderr).
		WithStdin(c.stdinReader).
		WithArgs(lang.Args(lang.Bootstrap())...).
		WithName("")

	for k, v := range cfg.env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	go c.run(rt, compiled, moduleConfig)

	return c
}

// newWasmChannel wires the pipes and the frame reader. The module attaches
// to them in startChannel.
func newWasmChannel(language string, cfg channelConfig, h Handler) *wasmChannel {
	ctx, cancel := context.WithCancel(context.Background())

	c := &wasmChannel{
		handle:   h,
		logger:   cfg.logger.With("language", language),
		registry: cfg.buildRegistry(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.stdinReader, c.stdin = io.Pipe()

	c.stderr = &frameReader{
		onText:  func(s string) { c.deliver(StderrEvent("", s)) },
		onEvent: c.deliver,
		// Replies go through stdin, which the guest only reads after this
		// write returns.
		onCall: func(req callRequest) { go c.answer(req) },
		onInvalid: func(kind frameKind, payload string, err error) {
			c.logger.Warn("invalid frame from worker", "kind", int(kind), "payload", payload, "error", err)
		},
	}
	return c
}

func (c *wasmChannel) run(rt wazero.Runtime, compiled wazero.CompiledModule, moduleConfig wazero.ModuleConfig) {
	mod, err := rt.InstantiateModule(c.ctx, compiled, moduleConfig)
	if mod != nil {
		mod.Close(context.Background())
	}

	var exitErr *sys.ExitError
	switch {
	case c.terminated.Load():
		err = ErrTerminated
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 0:
		err = nil
	case err != nil:
		err = fmt.Errorf("interpreter exited: %w", err)
	}

	if err != nil && !errors.Is(err, ErrTerminated) {
		c.logger.Warn("worker stopped", "error", err)
	} else {
		c.logger.Debug("worker stopped")
	}

	c.err = err
	c.stdinReader.CloseWithError(ErrTerminated)
	close(c.done)
}

func (c *wasmChannel) deliver(ev Event) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.handle(ev)
}

func (c *wasmChannel) answer(req callRequest) {
	resp := callResponse{}
	result, err := c.registry.Call(c.ctx, req.Fn, req.Args)
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Data = result
	}

	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"error":"internal: failed to marshal response"}`)
	}
	if err := c.writeLine(data); err != nil {
		c.logger.Debug("host call reply dropped", "fn", req.Fn, "error", err)
	}
}

func (c *wasmChannel) Post(req Request) error {
	select {
	case <-c.done:
		return ErrTerminated
	default:
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.writeLine(data)
}

func (c *wasmChannel) writeLine(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, ErrTerminated) {
			return ErrTerminated
		}
		return fmt.Errorf("write to worker: %w", err)
	}
	return nil
}

func (c *wasmChannel) Terminate() error {
	c.terminateOnce.Do(func() {
		c.terminated.Store(true)
		c.cancel()
		// EOF on stdin ends the guest loop if it is idle; cancel stops it
		// if it is running code.
		c.stdinReader.Close()
		c.stdin.Close()
	})
	return nil
}

func (c *wasmChannel) Done() <-chan struct{} {
	return c.done
}

func (c *wasmChannel) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

type stdoutWriter struct {
	c *wasmChannel
}

func (w stdoutWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		w.c.deliver(StdoutEvent("", string(p)))
	}
	return len(p), nil
}
