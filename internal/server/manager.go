package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/caffeineduck/wasmkernel/kernel"
)

// Factory starts a kernel with opts applied. The manager adds its own
// stream handler to opts.
type Factory func(ctx context.Context, opts ...kernel.Option) (*kernel.Kernel, error)

// Manager owns the kernels created through the server and evicts idle ones.
type Manager struct {
	factory Factory
	ttl     time.Duration
	logger  *slog.Logger

	kernels map[string]*managedKernel
	mu      sync.RWMutex

	stop     chan struct{}
	stopOnce sync.Once
}

type managedKernel struct {
	kernel   *kernel.Kernel
	streams  *streamCollector
	lastUsed time.Time
	inflight int
}

// NewManager returns a Manager that creates kernels with factory. A positive
// ttl starts a background loop that disposes kernels idle for longer.
func NewManager(factory Factory, ttl time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		factory: factory,
		ttl:     ttl,
		logger:  logger,
		kernels: make(map[string]*managedKernel),
		stop:    make(chan struct{}),
	}
	if ttl > 0 {
		go m.cleanup(min(ttl/2, time.Minute))
	}
	return m
}

// Create starts a kernel and waits until it is ready or ctx ends.
func (m *Manager) Create(ctx context.Context) (string, error) {
	streams := newStreamCollector()
	k, err := m.factory(ctx, kernel.WithStreamHandler(streams.add))
	if err != nil {
		return "", err
	}
	if err := k.WaitReady(ctx); err != nil {
		k.Dispose()
		return "", err
	}

	m.mu.Lock()
	m.kernels[k.ID()] = &managedKernel{
		kernel:   k,
		streams:  streams,
		lastUsed: time.Now(),
	}
	m.mu.Unlock()

	m.logger.Info("kernel created", "kernel_id", k.ID())
	return k.ID(), nil
}

// get returns the kernel with id and marks it used.
func (m *Manager) get(id string) (*managedKernel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mk, ok := m.kernels[id]
	if !ok {
		return nil, false
	}
	mk.lastUsed = time.Now()
	return mk, true
}

// hold marks an execution in flight on mk so sweep leaves it alone. The
// returned func ends the hold and marks the kernel used.
func (m *Manager) hold(mk *managedKernel) (release func()) {
	m.mu.Lock()
	mk.inflight++
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			mk.inflight--
			mk.lastUsed = time.Now()
			m.mu.Unlock()
		})
	}
}

// Close disposes the kernel with id. It reports whether the kernel existed.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	mk, ok := m.kernels[id]
	delete(m.kernels, id)
	m.mu.Unlock()

	if ok {
		mk.kernel.Dispose()
		m.logger.Info("kernel closed", "kernel_id", id)
	}
	return ok
}

// Len returns the number of live kernels.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.kernels)
}

func (m *Manager) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			m.sweep(now)
		case <-m.stop:
			return
		}
	}
}

// sweep disposes kernels idle since before now minus the ttl. Kernels with
// an execution in flight are never idle.
func (m *Manager) sweep(now time.Time) {
	var expired []*managedKernel

	m.mu.Lock()
	for id, mk := range m.kernels {
		if mk.inflight == 0 && now.Sub(mk.lastUsed) > m.ttl {
			expired = append(expired, mk)
			delete(m.kernels, id)
		}
	}
	m.mu.Unlock()

	for _, mk := range expired {
		m.logger.Info("kernel expired", "kernel_id", mk.kernel.ID())
		mk.kernel.Dispose()
	}
}

// CloseAll disposes every kernel and stops the eviction loop.
func (m *Manager) CloseAll() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	kernels := m.kernels
	m.kernels = make(map[string]*managedKernel)
	m.mu.Unlock()

	for _, mk := range kernels {
		mk.kernel.Dispose()
	}
}

// streamCollector groups stream notifications by parent msg_id while a
// request is being served.
type streamCollector struct {
	mu      sync.Mutex
	pending map[string][]kernel.Stream
}

func newStreamCollector() *streamCollector {
	return &streamCollector{pending: make(map[string][]kernel.Stream)}
}

func (c *streamCollector) begin(msgID string) {
	c.mu.Lock()
	c.pending[msgID] = []kernel.Stream{}
	c.mu.Unlock()
}

func (c *streamCollector) add(s kernel.Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if streams, ok := c.pending[s.ParentHeader.MsgID]; ok {
		c.pending[s.ParentHeader.MsgID] = append(streams, s)
	}
}

func (c *streamCollector) end(msgID string) []kernel.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	streams := c.pending[msgID]
	delete(c.pending, msgID)
	return streams
}
