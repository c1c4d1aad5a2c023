// Package worker runs an interpreter inside an isolated WebAssembly instance
// and exposes it as an asynchronous message [Channel].
//
// # Wire format
//
// The host sends one JSON [Request] per line on the guest's stdin:
//
//	{"id":"5f0c...","code":"1 + 1"}
//
// The guest answers with a stream of [Event] values:
//
//   - raw bytes written to stdout become "stdout" events
//   - raw bytes written to stderr become non-error "stderr" events
//   - NUL-delimited frames on stderr carry structured events, for example
//     "\x00WK:{\"type\":\"results\",\"result\":\"2\"}\x00"
//   - "\x00WK_CALL:{\"fn\":\"kv_get\",\"args\":{...}}\x00" frames invoke a
//     host function; the reply is written to stdin as one JSON line
//
// Every submitted request ends with exactly one terminal event: "results" or
// an error-flagged "stderr". Events for one request may carry its id so the
// receiver can discard late output from an abandoned request.
//
// # Runtime
//
// A [Runtime] owns one wazero runtime and caches compiled interpreter
// modules by bootstrap location:
//
//	rt, err := worker.NewRuntime(ctx, worker.WithDiskCache())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	dial := rt.Dialer("https://example.com/python.wasm", python.New(),
//	    worker.WithKV(hostfunc.NewKV(hostfunc.DefaultKVConfig())))
//
//	ch, err := dial(ctx, func(ev worker.Event) { ... })
//
// The [workertest] subpackage provides a scripted in-memory [Channel] for
// tests.
package worker
