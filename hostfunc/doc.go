// Package hostfunc provides the host functions a kernel exposes to code
// running inside its interpreter worker.
//
// Sandboxed code starts with no access to the outside world. Every
// capability is an explicit [Func] registered on a [Registry], and the
// worker routes the guest's call frames to it:
//
//	registry := hostfunc.NewRegistry()
//	hostfunc.NewKV(hostfunc.DefaultKVConfig()).Register(registry)
//	hostfunc.NewHTTP(hostfunc.HTTPConfig{
//	    AllowedHosts: []string{"api.example.com"},
//	}).Register(registry)
//
// # Limits
//
// The KV store bounds key size, encoded value size and entry count. HTTP
// requests are limited to allow-listed hosts (and their subdomains), a
// maximum URL length, a response body cap and a per-request timeout.
package hostfunc
