// Package workertest provides an in-memory worker.Channel for tests.
//
// A Channel answers each posted request through a Responder on its own
// goroutine, which mirrors the asynchronous delivery of a real worker:
//
//	ch := workertest.New(workertest.ByCode(map[string][]worker.Event{
//	    "1 + 1": {worker.ResultEvent("", "2", false)},
//	}))
//	k, err := kernel.New(ctx, ch.Dialer())
package workertest

import (
	"context"
	"errors"
	"sync"

	"github.com/caffeineduck/wasmkernel/worker"
)

// Responder returns the events a worker emits for req, in order.
type Responder func(req worker.Request) []worker.Event

// Channel is a scripted worker.Channel. It is safe for concurrent use.
type Channel struct {
	respond Responder
	dialErr error

	handler   worker.Handler
	deliverMu sync.Mutex

	mu           sync.Mutex
	posts        []worker.Request
	terminations int
	posted       chan worker.Request

	done     chan struct{}
	err      error
	stopOnce sync.Once
}

// New returns a Channel that answers requests with respond. A nil
// Responder never answers; use Emit to drive events by hand.
func New(respond Responder) *Channel {
	return &Channel{
		respond: respond,
		posted:  make(chan worker.Request, 64),
		done:    make(chan struct{}),
	}
}

// FailDial makes the Dialer return err.
func (c *Channel) FailDial(err error) *Channel {
	c.dialErr = err
	return c
}

// Dialer returns a worker.Dialer that installs the handler and yields c.
func (c *Channel) Dialer() worker.Dialer {
	return func(ctx context.Context, h worker.Handler) (worker.Channel, error) {
		if c.dialErr != nil {
			return nil, c.dialErr
		}
		c.mu.Lock()
		c.handler = h
		c.mu.Unlock()
		return c, nil
	}
}

func (c *Channel) Post(req worker.Request) error {
	select {
	case <-c.done:
		return worker.ErrTerminated
	default:
	}

	c.mu.Lock()
	c.posts = append(c.posts, req)
	c.mu.Unlock()

	select {
	case c.posted <- req:
	default:
	}

	if c.respond != nil {
		events := c.respond(req)
		go func() {
			for _, ev := range events {
				c.Emit(ev)
			}
		}()
	}
	return nil
}

// Emit delivers ev to the installed handler as if the worker sent it.
func (c *Channel) Emit(ev worker.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return
	}

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	h(ev)
}

func (c *Channel) Terminate() error {
	c.mu.Lock()
	c.terminations++
	c.mu.Unlock()
	c.stop(worker.ErrTerminated)
	return nil
}

// Exit simulates the interpreter stopping on its own with err.
func (c *Channel) Exit(err error) {
	c.stop(err)
}

func (c *Channel) stop(err error) {
	c.stopOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Posted receives every request as it is posted.
func (c *Channel) Posted() <-chan worker.Request {
	return c.posted
}

// Posts returns a snapshot of all posted requests.
func (c *Channel) Posts() []worker.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]worker.Request(nil), c.posts...)
}

// Terminations reports how many times Terminate was called.
func (c *Channel) Terminations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminations
}

// ByCode answers each request with the events listed for its code, stamped
// with the request id. Unlisted code, including the empty warm-up request,
// gets an empty result.
func ByCode(script map[string][]worker.Event) Responder {
	return func(req worker.Request) []worker.Event {
		events, ok := script[req.Code]
		if !ok {
			return []worker.Event{worker.EmptyResultEvent(req.ID)}
		}
		return Stamp(req.ID, events...)
	}
}

// Echo answers every request with its code as a text/plain result.
func Echo() Responder {
	return func(req worker.Request) []worker.Event {
		if req.Code == "" {
			return []worker.Event{worker.EmptyResultEvent(req.ID)}
		}
		return []worker.Event{worker.ResultEvent(req.ID, req.Code, false)}
	}
}

// Stamp returns copies of events carrying id.
func Stamp(id string, events ...worker.Event) []worker.Event {
	out := make([]worker.Event, len(events))
	for i, ev := range events {
		ev.ID = id
		out[i] = ev
	}
	return out
}

// ErrCrashed is a convenience exit error for crash simulations.
var ErrCrashed = errors.New("worker crashed")
