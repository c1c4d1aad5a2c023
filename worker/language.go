package worker

// Language adapts an interpreter module to the worker wire format.
// Implement this interface to run another interpreter build.
type Language interface {
	// Name returns a unique identifier such as "python".
	Name() string

	// Bootstrap returns the guest-side source of the request loop: read a
	// Request line from stdin, run it, emit events.
	Bootstrap() string

	// Args returns the command line for the module given the bootstrap
	// source. For Python: []string{"python", "-c", bootstrap}.
	Args(bootstrap string) []string
}
