// Package kernel bridges notebook-kernel protocol requests to an interpreter
// worker.
//
// # Overview
//
// A [Kernel] owns one [worker.Channel]. It submits code as requests, turns
// the worker's stdout and stderr events into [Stream] notifications and
// resolves each execution when the worker sends its terminal event: a
// "results" event or an error-flagged "stderr" event.
//
// # Basic Usage
//
//	k, err := kernel.New(ctx, dial,
//	    kernel.WithLanguageInfo(python.New().LanguageInfo()),
//	    kernel.WithStreamHandler(func(s kernel.Stream) {
//	        fmt.Print(s.Text)
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer k.Dispose()
//
//	if err := k.WaitReady(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := k.Execute(ctx, kernel.ExecuteRequest{Code: "1 + 1"})
//	var execErr *kernel.ExecutionError
//	if errors.As(err, &execErr) {
//	    fmt.Println(execErr.Name, execErr.Message)
//	}
//
// # Readiness
//
// New returns before the interpreter has booted. The kernel submits an empty
// warm-up request first; [Kernel.Ready] is closed once it completes. Because
// submissions run in FIFO order, executions issued before readiness simply
// wait behind the warm-up.
//
// # Ordering
//
// Executions are serialized: at most one request is in flight on the worker
// and the rest wait in submission order. Stream notifications for an
// execution are delivered before its reply is returned.
//
// # Unsupported requests
//
// Completion returns an empty, successful reply. Inspect, is-complete,
// comm-info and input requests fail with [ErrNotImplemented].
package kernel
