package kernel

import (
	"errors"
	"strings"

	"github.com/caffeineduck/wasmkernel/worker"
)

var (
	// ErrNotImplemented is returned by protocol requests the kernel does
	// not support.
	ErrNotImplemented = errors.New("not implemented")

	// ErrDisposed is returned by requests made on, or pending at the time
	// of, a disposed kernel.
	ErrDisposed = errors.New("kernel disposed")

	// ErrWorkerExited is returned when the interpreter stops on its own.
	ErrWorkerExited = errors.New("worker exited")

	// ErrBootFailed is returned by WaitReady when the warm-up never completes.
	ErrBootFailed = errors.New("kernel boot failed")
)

// ExecutionError is an error raised by the executed code.
type ExecutionError struct {
	Name    string `json:"ename"`
	Message string `json:"evalue"`
	Stack   string `json:"-"`
}

func (e *ExecutionError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// Traceback returns the stack split into lines.
func (e *ExecutionError) Traceback() []string {
	stack := strings.TrimRight(e.Stack, "\n")
	if stack == "" {
		return []string{}
	}
	return strings.Split(stack, "\n")
}

func newExecutionError(p *worker.ErrorPayload) *ExecutionError {
	if p == nil {
		return &ExecutionError{Name: "Error", Message: "worker reported an error without details"}
	}
	return &ExecutionError{Name: p.Name, Message: p.Message, Stack: p.Stack}
}
