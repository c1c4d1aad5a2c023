// Package config loads wasmkernel settings from a YAML file, WASMKERNEL_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: worker.bootstrap_url is read
// from WASMKERNEL_WORKER_BOOTSTRAP_URL.
const EnvPrefix = "WASMKERNEL"

// Config is the complete wasmkernel configuration.
type Config struct {
	Worker   WorkerConfig   `mapstructure:"worker"`
	Kernel   KernelConfig   `mapstructure:"kernel"`
	HostFunc HostFuncConfig `mapstructure:"hostfunc"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
}

// WorkerConfig controls how interpreter modules are fetched and run.
type WorkerConfig struct {
	// BootstrapURL locates the interpreter module: an http(s) URL, a
	// file:// URL or a path.
	BootstrapURL string `mapstructure:"bootstrap_url"`
	// CacheDir holds downloads and compiled modules. Empty means
	// $XDG_CACHE_HOME/wasmkernel.
	CacheDir  string `mapstructure:"cache_dir"`
	DiskCache bool   `mapstructure:"disk_cache"`
	// Memory is the guest memory limit: 1mb, 16mb, 64mb, 256mb, 1gb or default.
	Memory        string `mapstructure:"memory"`
	MaxModuleSize int64  `mapstructure:"max_module_size"`
}

// KernelConfig bounds kernel operations.
type KernelConfig struct {
	BootTimeout    time.Duration `mapstructure:"boot_timeout"`
	ExecuteTimeout time.Duration `mapstructure:"execute_timeout"`
}

// HostFuncConfig controls the host functions exposed to guest code.
type HostFuncConfig struct {
	KV           bool     `mapstructure:"kv"`
	AllowedHosts []string `mapstructure:"allowed_hosts"`
	HTTPMaxURL   int      `mapstructure:"http_max_url"`
	HTTPMaxBody  int64    `mapstructure:"http_max_body"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// KernelTTL evicts kernels idle for longer. Zero disables eviction.
	KernelTTL time.Duration `mapstructure:"kernel_ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			DiskCache:     true,
			Memory:        "default",
			MaxModuleSize: 256 << 20,
		},
		Kernel: KernelConfig{
			BootTimeout:    2 * time.Minute,
			ExecuteTimeout: 30 * time.Second,
		},
		HostFunc: HostFuncConfig{
			AllowedHosts: []string{},
			HTTPMaxURL:   8192,
			HTTPMaxBody:  1 << 20,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "json",
		},
		Server: ServerConfig{
			Addr:      ":8080",
			KernelTTL: 30 * time.Minute,
		},
	}
}

// SetDefaults registers the built-in values with v.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("worker.bootstrap_url", defaults.Worker.BootstrapURL)
	v.SetDefault("worker.cache_dir", defaults.Worker.CacheDir)
	v.SetDefault("worker.disk_cache", defaults.Worker.DiskCache)
	v.SetDefault("worker.memory", defaults.Worker.Memory)
	v.SetDefault("worker.max_module_size", defaults.Worker.MaxModuleSize)

	v.SetDefault("kernel.boot_timeout", defaults.Kernel.BootTimeout)
	v.SetDefault("kernel.execute_timeout", defaults.Kernel.ExecuteTimeout)

	v.SetDefault("hostfunc.kv", defaults.HostFunc.KV)
	v.SetDefault("hostfunc.allowed_hosts", defaults.HostFunc.AllowedHosts)
	v.SetDefault("hostfunc.http_max_url", defaults.HostFunc.HTTPMaxURL)
	v.SetDefault("hostfunc.http_max_body", defaults.HostFunc.HTTPMaxBody)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.file", defaults.Logging.File)

	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("server.kernel_ttl", defaults.Server.KernelTTL)
}

// Init prepares v: defaults, environment overrides and the config file.
// With an empty cfgFile the file is looked up in ConfigDir and may be absent.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ConfigDir returns the user's wasmkernel config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wasmkernel")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wasmkernel"
	}
	return filepath.Join(home, ".config", "wasmkernel")
}

// ConfigFile returns the default config file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
