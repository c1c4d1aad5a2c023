package worker

import (
	"context"
	"errors"
)

// ErrTerminated is returned by Post after Terminate.
var ErrTerminated = errors.New("worker terminated")

// Handler receives worker events in delivery order. Calls are serialized.
// A handler must not block waiting on the worker it is attached to.
type Handler func(Event)

// Channel is a bidirectional message channel to one isolated interpreter.
type Channel interface {
	// Post submits a request. It does not wait for the request to finish.
	Post(Request) error

	// Terminate stops the interpreter and releases its resources. Repeat
	// calls are no-ops.
	Terminate() error

	// Done is closed once the interpreter has stopped, whether by
	// Terminate or on its own.
	Done() <-chan struct{}

	// Err reports why the interpreter stopped. It is nil until Done is
	// closed and nil after a clean exit.
	Err() error
}

// Dialer starts a worker with h installed before any request can be posted.
type Dialer func(ctx context.Context, h Handler) (Channel, error)
