package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if !cfg.Worker.DiskCache {
		t.Error("Worker.DiskCache should be true by default")
	}
	if cfg.Kernel.ExecuteTimeout != 30*time.Second {
		t.Errorf("Kernel.ExecuteTimeout = %v, want 30s", cfg.Kernel.ExecuteTimeout)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("defaults should validate, got %v", ValidationErrors(errs))
	}
	if err := cfg.RequireBootstrap(); !errors.Is(err, ErrNoBootstrap) {
		t.Errorf("expected ErrNoBootstrap, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	v := viper.New()
	if err := Init(v, ""); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Kernel.BootTimeout != Default().Kernel.BootTimeout {
		t.Errorf("BootTimeout = %v", cfg.Kernel.BootTimeout)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
worker:
  bootstrap_url: https://example.com/python.wasm
  memory: 256mb
kernel:
  execute_timeout: 5s
hostfunc:
  kv: true
  allowed_hosts:
    - api.example.com
logging:
  level: debug
server:
  kernel_ttl: 1m
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	v := viper.New()
	if err := Init(v, path); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Worker.BootstrapURL != "https://example.com/python.wasm" {
		t.Errorf("BootstrapURL = %q", cfg.Worker.BootstrapURL)
	}
	if cfg.Kernel.ExecuteTimeout != 5*time.Second {
		t.Errorf("ExecuteTimeout = %v, want 5s", cfg.Kernel.ExecuteTimeout)
	}
	if !cfg.HostFunc.KV || len(cfg.HostFunc.AllowedHosts) != 1 {
		t.Errorf("unexpected hostfunc config: %+v", cfg.HostFunc)
	}
	if cfg.Server.KernelTTL != time.Minute {
		t.Errorf("KernelTTL = %v, want 1m", cfg.Server.KernelTTL)
	}
	// Unset keys keep their defaults.
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
	if err := cfg.RequireBootstrap(); err != nil {
		t.Errorf("RequireBootstrap failed: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("WASMKERNEL_WORKER_BOOTSTRAP_URL", "/opt/python.wasm")
	t.Setenv("WASMKERNEL_LOGGING_LEVEL", "error")

	v := viper.New()
	if err := Init(v, ""); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Worker.BootstrapURL != "/opt/python.wasm" {
		t.Errorf("BootstrapURL = %q", cfg.Worker.BootstrapURL)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestInitMissingExplicitFile(t *testing.T) {
	v := viper.New()
	if err := Init(v, filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"memory", func(c *Config) { c.Worker.Memory = "3gb" }, "worker.memory"},
		{"module size", func(c *Config) { c.Worker.MaxModuleSize = 0 }, "worker.max_module_size"},
		{"boot timeout", func(c *Config) { c.Kernel.BootTimeout = 0 }, "kernel.boot_timeout"},
		{"execute timeout", func(c *Config) { c.Kernel.ExecuteTimeout = -time.Second }, "kernel.execute_timeout"},
		{"http url", func(c *Config) { c.HostFunc.HTTPMaxURL = -1 }, "hostfunc.http_max_url"},
		{"http body", func(c *Config) { c.HostFunc.HTTPMaxBody = -1 }, "hostfunc.http_max_body"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"ttl", func(c *Config) { c.Server.KernelTTL = -time.Minute }, "server.kernel_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %v", ValidationErrors(errs))
			}
			if errs[0].Field != tt.field {
				t.Errorf("field = %q, want %q", errs[0].Field, tt.field)
			}
		})
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	msg := errs.Error()
	if !strings.HasPrefix(msg, "2 validation errors:") {
		t.Errorf("unexpected message: %q", msg)
	}
	if !strings.Contains(msg, "b: worse (got: 2)") {
		t.Errorf("message missing entry: %q", msg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("WASMKERNEL_WORKER_MEMORY", "lots")

	v := viper.New()
	if err := Init(v, ""); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	_, err := Load(v)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
}
