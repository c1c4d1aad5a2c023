// Package python provides the Python language adapter for wasmkernel.
//
// The adapter targets a WASI build of the Python interpreter that accepts
// "-c <source>". The embedded bootstrap script runs the request loop inside
// the interpreter; the module itself is fetched from the configured
// bootstrap location.
package python

import (
	_ "embed"

	"github.com/caffeineduck/wasmkernel/kernel"
)

//go:embed worker.py
var bootstrap string

// Version is the Python language version reported in kernel info.
const Version = "3.12"

// Python implements worker.Language for Python.
type Python struct{}

// New returns a Python language adapter.
func New() *Python {
	return &Python{}
}

// Name returns "python".
func (p *Python) Name() string {
	return "python"
}

// Bootstrap returns the guest request loop.
func (p *Python) Bootstrap() string {
	return bootstrap
}

// Args returns the command-line arguments for the Python interpreter.
func (p *Python) Args(bootstrap string) []string {
	return []string{"python", "-c", bootstrap}
}

// LanguageInfo describes Python for kernel_info replies.
func (p *Python) LanguageInfo() kernel.LanguageInfo {
	return kernel.LanguageInfo{
		Name:              "python",
		Version:           Version,
		MIMEType:          "text/x-python",
		FileExtension:     ".py",
		PygmentsLexer:     "ipython3",
		CodeMirrorMode:    &kernel.CodeMirrorMode{Name: "python", Version: 3},
		NBConvertExporter: "python",
	}
}
