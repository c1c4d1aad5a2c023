package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/caffeineduck/wasmkernel/worker"
)

// Kernel serves protocol requests against one worker.
type Kernel struct {
	id      string
	info    InfoReply
	logger  *slog.Logger
	stream  StreamHandler
	channel worker.Channel

	queue chan *submission

	ready    chan struct{}
	booted   chan struct{}
	bootErr  error
	disposed chan struct{}

	stopped  chan struct{}
	stopErr  error
	stopOnce sync.Once

	mu        sync.Mutex
	current   *submission
	disposing bool

	executionCount atomic.Int64
}

// submission is one code block waiting for its terminal event.
type submission struct {
	id     string
	code   string
	parent Header
	silent bool

	once     sync.Once
	resolved chan struct{}
	outcome  Outcome
	err      error
}

func newSubmission(code string, parent Header, silent bool) *submission {
	return &submission{
		id:       uuid.NewString(),
		code:     code,
		parent:   parent,
		silent:   silent,
		resolved: make(chan struct{}),
	}
}

func (s *submission) resolve(out Outcome, err error) bool {
	first := false
	s.once.Do(func() {
		s.outcome = out
		s.err = err
		close(s.resolved)
		first = true
	})
	return first
}

// New starts a worker with dial and begins booting it. It returns without
// waiting for the boot to finish; see Ready and WaitReady.
func New(ctx context.Context, dial worker.Dialer, opts ...Option) (*Kernel, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	k := &Kernel{
		id:       uuid.NewString(),
		info:     cfg.info(),
		stream:   cfg.onStream,
		queue:    make(chan *submission),
		ready:    make(chan struct{}),
		booted:   make(chan struct{}),
		disposed: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	k.logger = cfg.logger.With("kernel_id", k.id)

	ch, err := dial(ctx, k.handleEvent)
	if err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	k.channel = ch

	warmup := newSubmission("", Header{}, true)
	go k.awaitBoot(warmup)
	go k.dispatch(warmup)

	return k, nil
}

// ID returns the kernel's unique id.
func (k *Kernel) ID() string {
	return k.id
}

// Ready is closed once the worker has booted.
func (k *Kernel) Ready() <-chan struct{} {
	return k.ready
}

// WaitReady blocks until the worker has booted, the boot failed or ctx is done.
func (k *Kernel) WaitReady(ctx context.Context) error {
	select {
	case <-k.booted:
		return k.bootErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *Kernel) awaitBoot(warmup *submission) {
	<-warmup.resolved

	var execErr *ExecutionError
	switch {
	case warmup.err == nil:
		k.logger.Info("kernel ready")
	case errors.As(warmup.err, &execErr):
		k.logger.Warn("warm-up raised an error", "error", warmup.err)
	default:
		k.bootErr = fmt.Errorf("%w: %w", ErrBootFailed, warmup.err)
		k.logger.Error("kernel boot failed", "error", warmup.err)
		close(k.booted)
		return
	}
	close(k.ready)
	close(k.booted)
}

// KernelInfo returns the kernel_info_reply content.
func (k *Kernel) KernelInfo() InfoReply {
	info := k.info
	info.HelpLinks = append([]HelpLink{}, k.info.HelpLinks...)
	return info
}

// ExecutionCount returns the number of non-silent executions submitted.
func (k *Kernel) ExecutionCount() int {
	return int(k.executionCount.Load())
}

// Execute runs req.Code and waits for its terminal event. Errors raised by
// the code are returned as *ExecutionError. If ctx ends first, Execute
// returns ctx.Err() while the worker keeps running the code; later
// executions wait for it to finish.
func (k *Kernel) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteReply, error) {
	if k.IsDisposed() {
		return nil, ErrDisposed
	}

	var count int64
	if req.Silent {
		count = k.executionCount.Load()
	} else {
		count = k.executionCount.Add(1)
	}

	sub := newSubmission(req.Code, req.Header, req.Silent)
	if err := k.enqueue(ctx, sub); err != nil {
		return nil, err
	}

	select {
	case <-sub.resolved:
	case <-ctx.Done():
		k.logger.Debug("execution abandoned", "request", sub.id, "error", ctx.Err())
		return nil, ctx.Err()
	}
	if sub.err != nil {
		return nil, sub.err
	}
	return &ExecuteReply{
		ExecutionCount: int(count),
		Data:           sub.outcome.Data,
		Metadata:       sub.outcome.Metadata,
	}, nil
}

func (k *Kernel) enqueue(ctx context.Context, sub *submission) error {
	select {
	case k.queue <- sub:
		return nil
	case <-k.stopped:
		return k.stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch posts submissions to the worker one at a time in arrival order.
func (k *Kernel) dispatch(first *submission) {
	next := first
	for {
		select {
		case <-k.disposed:
			k.stop(ErrDisposed)
			return
		case <-k.channel.Done():
			k.stop(k.exitError())
			return
		default:
		}

		if next == nil {
			select {
			case next = <-k.queue:
			case <-k.disposed:
				continue
			case <-k.channel.Done():
				continue
			}
		}
		k.process(next)
		next = nil
	}
}

func (k *Kernel) process(sub *submission) {
	k.mu.Lock()
	k.current = sub
	k.mu.Unlock()

	k.logger.Debug("post request", "request", sub.id, "bytes", len(sub.code))
	if err := k.channel.Post(worker.Request{ID: sub.id, Code: sub.code}); err != nil {
		if k.IsDisposed() {
			err = ErrDisposed
		} else {
			err = fmt.Errorf("post to worker: %w", err)
		}
		k.settle(sub, Outcome{}, err)
		return
	}

	select {
	case <-sub.resolved:
	case <-k.disposed:
		k.settle(sub, Outcome{}, ErrDisposed)
	case <-k.channel.Done():
		k.settle(sub, Outcome{}, k.exitError())
	}
}

func (k *Kernel) stop(err error) {
	k.stopOnce.Do(func() {
		k.stopErr = err
		close(k.stopped)
	})
}

func (k *Kernel) exitError() error {
	k.mu.Lock()
	disposing := k.disposing
	k.mu.Unlock()
	if disposing {
		return ErrDisposed
	}

	err := k.channel.Err()
	if err == nil || errors.Is(err, worker.ErrTerminated) {
		k.logger.Warn("worker exited")
		return ErrWorkerExited
	}
	k.logger.Warn("worker exited", "error", err)
	return fmt.Errorf("%w: %w", ErrWorkerExited, err)
}

// settle resolves sub and clears it as the in-flight submission.
func (k *Kernel) settle(sub *submission, out Outcome, err error) {
	k.mu.Lock()
	if k.current == sub {
		k.current = nil
	}
	k.mu.Unlock()

	if !sub.resolve(out, err) {
		k.logger.Debug("submission already resolved", "request", sub.id)
	}
}

func (k *Kernel) handleEvent(ev worker.Event) {
	k.mu.Lock()
	sub := k.current
	k.mu.Unlock()

	if sub == nil {
		k.logger.Debug("dropping worker event with no pending execution", "type", ev.Type)
		return
	}
	if ev.ID != "" && ev.ID != sub.id {
		k.logger.Debug("dropping stale worker event", "type", ev.Type, "event_id", ev.ID, "request", sub.id)
		return
	}

	switch ev.Type {
	case worker.EventStdout:
		k.emit(sub, StreamStdout, ev.Stdout)
	case worker.EventStderr:
		if ev.Error {
			k.settle(sub, Outcome{}, newExecutionError(ev.Stderr))
			return
		}
		k.emit(sub, StreamStderr, ev.Text())
	case worker.EventResults:
		k.settle(sub, resultOutcome(ev), nil)
	default:
		k.logger.Debug("ignoring worker event", "type", ev.Type)
	}
}

func (k *Kernel) emit(sub *submission, name, text string) {
	if sub.silent || k.stream == nil {
		return
	}
	k.stream(Stream{
		Event:        "stream",
		Name:         name,
		ParentHeader: sub.parent,
		Text:         text,
	})
}

func resultOutcome(ev worker.Event) Outcome {
	data := map[string]any{}
	if ev.Result != nil {
		mime := "text/plain"
		if ev.RenderHTML {
			mime = "text/html"
		}
		data[mime] = *ev.Result
	}
	return Outcome{Data: data, Metadata: map[string]any{}}
}

// Dispose terminates the worker and rejects pending executions with
// ErrDisposed. Repeat calls are no-ops.
func (k *Kernel) Dispose() error {
	k.mu.Lock()
	if k.disposing {
		k.mu.Unlock()
		return nil
	}
	k.disposing = true
	k.mu.Unlock()

	k.logger.Info("dispose worker")
	err := k.channel.Terminate()
	close(k.disposed)
	if err != nil {
		return fmt.Errorf("terminate worker: %w", err)
	}
	return nil
}

// IsDisposed reports whether Dispose has completed.
func (k *Kernel) IsDisposed() bool {
	select {
	case <-k.disposed:
		return true
	default:
		return false
	}
}

// Disposed is closed once Dispose has completed.
func (k *Kernel) Disposed() <-chan struct{} {
	return k.disposed
}
