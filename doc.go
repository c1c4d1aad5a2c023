// Package wasmkernel bridges notebook kernel requests to an interpreter
// running in a WebAssembly sandbox.
//
// # Overview
//
// A [kernel.Kernel] accepts execute, complete and info requests and drives a
// single interpreter worker over a line-based message channel. The worker
// runs inside wazero with zero default capabilities. Host functions such as
// the key-value store and HTTP must be enabled explicitly.
//
// # Basic Usage
//
//	rt, _ := worker.NewRuntime(ctx, worker.WithDiskCache())
//	defer rt.Close()
//
//	k, _ := kernel.New(ctx, rt.Dialer("python.wasm", python.New()),
//	    kernel.WithLanguageInfo(python.New().LanguageInfo()),
//	    kernel.WithStreamHandler(func(s kernel.Stream) {
//	        fmt.Print(s.Text)
//	    }))
//	defer k.Dispose()
//
//	reply, err := k.Execute(ctx, kernel.ExecuteRequest{Code: "x = 41\nx + 1"})
//	// reply.Data["text/plain"] == "42"
//
// # Enabling Capabilities
//
//	// Key-value store
//	rt.Dialer(loc, python.New(), worker.WithKV(hostfunc.NewKV(hostfunc.DefaultKVConfig())))
//
//	// HTTP access
//	rt.Dialer(loc, python.New(), worker.WithAllowedHosts([]string{"api.example.com"}))
//
// The wasmkernel command wraps all of this in run, repl and serve
// subcommands. See the [kernel], [worker], [hostfunc] and [language/python]
// packages for detailed API documentation.
package wasmkernel
