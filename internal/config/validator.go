package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caffeineduck/wasmkernel/internal/logging"
	"github.com/caffeineduck/wasmkernel/worker"
)

// ErrNoBootstrap is returned by RequireBootstrap when no interpreter module
// is configured.
var ErrNoBootstrap = errors.New("worker.bootstrap_url is not set (use --bootstrap-url or WASMKERNEL_WORKER_BOOTSTRAP_URL)")

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Validate reports every invalid value in c.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if _, err := worker.ParseMemoryLimit(c.Worker.Memory); err != nil {
		errs = append(errs, ValidationError{
			Field:   "worker.memory",
			Value:   c.Worker.Memory,
			Message: "must be one of: 1mb, 16mb, 64mb, 256mb, 1gb, default",
		})
	}
	if c.Worker.MaxModuleSize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "worker.max_module_size",
			Value:   c.Worker.MaxModuleSize,
			Message: "must be positive",
		})
	}

	if c.Kernel.BootTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "kernel.boot_timeout",
			Value:   c.Kernel.BootTimeout,
			Message: "must be positive",
		})
	}
	if c.Kernel.ExecuteTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "kernel.execute_timeout",
			Value:   c.Kernel.ExecuteTimeout,
			Message: "must be positive",
		})
	}

	if c.HostFunc.HTTPMaxURL < 0 {
		errs = append(errs, ValidationError{
			Field:   "hostfunc.http_max_url",
			Value:   c.HostFunc.HTTPMaxURL,
			Message: "must be non-negative",
		})
	}
	if c.HostFunc.HTTPMaxBody < 0 {
		errs = append(errs, ValidationError{
			Field:   "hostfunc.http_max_body",
			Value:   c.HostFunc.HTTPMaxBody,
			Message: "must be non-negative",
		})
	}

	if !logging.IsValidLevel(c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidLevels(), ", ")),
		})
	}
	if !logging.IsValidFormat(c.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidFormats(), ", ")),
		})
	}

	if c.Server.KernelTTL < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.kernel_ttl",
			Value:   c.Server.KernelTTL,
			Message: "must be non-negative",
		})
	}

	return errs
}

// RequireBootstrap checks the settings needed to boot a worker.
func (c *Config) RequireBootstrap() error {
	if strings.TrimSpace(c.Worker.BootstrapURL) == "" {
		return ErrNoBootstrap
	}
	return nil
}
