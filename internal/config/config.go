// Package config provides unified configuration loading for nervepipe.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DirName is the per-user configuration directory under $HOME.
const DirName = ".nervepipe"

// PipelineConfig contains all nervepipe configuration settings.
type PipelineConfig struct {
	// Solver describes how the external solver is launched.
	Solver SolverConfig `json:"solver" yaml:"solver"`

	// Cache controls checkpoint reuse and the status database.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Mirror configures the optional object-store copy of checkpoints.
	Mirror MirrorConfig `json:"mirror" yaml:"mirror"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SolverConfig configures the handoff to the finite-element solver.
type SolverConfig struct {
	// Command is the solver executable and its leading arguments. The
	// project path and run config path are appended. Supports ${VAR}.
	Command []string `json:"command" yaml:"command"`

	// ServerCommand is started in the background for the duration of the
	// handoff, e.g. a solver license/compute server. Supports ${VAR}.
	ServerCommand []string `json:"server_command,omitempty" yaml:"server_command,omitempty"`

	// ComsolPath and JDKPath are exported to the solver as COMSOL_PATH and
	// JDK_PATH.
	ComsolPath string `json:"comsol_path,omitempty" yaml:"comsol_path,omitempty"`
	JDKPath    string `json:"jdk_path,omitempty" yaml:"jdk_path,omitempty"`
}

// Env returns the extra environment passed to the solver.
func (c SolverConfig) Env() []string {
	var env []string
	if c.ComsolPath != "" {
		env = append(env, "COMSOL_PATH="+c.ComsolPath)
	}
	if c.JDKPath != "" {
		env = append(env, "JDK_PATH="+c.JDKPath)
	}
	return env
}

// CacheConfig configures checkpoint reuse.
type CacheConfig struct {
	// Smart reuses verified checkpoints from earlier runs. The --smart
	// flag overrides it.
	Smart bool `json:"smart" yaml:"smart"`

	// Backend is the status database: "sqlite" (default) or "postgres".
	Backend string `json:"backend" yaml:"backend"`

	// DSN is the postgres connection string. Supports ${VAR}.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// MirrorConfig configures the S3-compatible checkpoint mirror.
type MirrorConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl"`
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// Redacted returns a copy with the secret key masked.
func (c MirrorConfig) Redacted() MirrorConfig {
	switch {
	case c.SecretKey == "":
	case len(c.SecretKey) < 12:
		c.SecretKey = "(set)"
	default:
		c.SecretKey = c.SecretKey[:4] + "..." + c.SecretKey[len(c.SecretKey)-4:]
	}
	return c
}

// String implements fmt.Stringer to prevent accidental secret logging.
func (c MirrorConfig) String() string {
	r := c.Redacted()
	return fmt.Sprintf("MirrorConfig{Enabled:%t, Endpoint:%s, Bucket:%s, SecretKey:%s}",
		r.Enabled, r.Endpoint, r.Bucket, r.SecretKey)
}

// LoggingConfig configures nervepipe's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "error", "warn", "info" (default),
	// "debug" or "trace". "debug" and "trace" also write stage events to
	// .nervepipe/events.jsonl; "trace" includes solver output.
	Level string `json:"level" yaml:"level"`
}

// Default returns a PipelineConfig with sensible defaults.
func Default() *PipelineConfig {
	return &PipelineConfig{
		Cache: CacheConfig{
			Backend: "sqlite",
		},
		Mirror: MirrorConfig{
			UseSSL: true,
			Prefix: "nervepipe",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.nervepipe/config.yaml, or "" when there is no
// home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DirName, "config.yaml")
}

// Load loads configuration from path, or from the default location when
// path is empty, then applies environment variable overrides.
// Order: defaults -> config file -> environment variables
func Load(path string) (*PipelineConfig, error) {
	config := Default()

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	} else if def := DefaultPath(); def != "" {
		if _, statErr := os.Stat(def); statErr == nil {
			fileConfig, err := LoadFromFile(def)
			if err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Solver.Command = expandAll(config.Solver.Command)
	config.Solver.ServerCommand = expandAll(config.Solver.ServerCommand)
	config.Solver.ComsolPath = expandEnvVars(config.Solver.ComsolPath)
	config.Solver.JDKPath = expandEnvVars(config.Solver.JDKPath)
	config.Cache.DSN = expandEnvVars(config.Cache.DSN)
	config.Mirror.AccessKey = expandEnvVars(config.Mirror.AccessKey)
	config.Mirror.SecretKey = expandEnvVars(config.Mirror.SecretKey)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *PipelineConfig) Validate() error {
	switch c.Cache.Backend {
	case "", "sqlite":
	case "postgres":
		if c.Cache.DSN == "" {
			return fmt.Errorf("cache.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (valid: sqlite, postgres)", c.Cache.Backend)
	}

	if c.Mirror.Enabled {
		if c.Mirror.Endpoint == "" || c.Mirror.Bucket == "" {
			return fmt.Errorf("mirror.endpoint and mirror.bucket are required when the mirror is enabled")
		}
		if c.Mirror.AccessKey == "" || c.Mirror.SecretKey == "" {
			return fmt.Errorf("mirror.access_key and mirror.secret_key are required when the mirror is enabled")
		}
	}

	validLevels := map[string]bool{"error": true, "warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: error, warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *PipelineConfig) {
	if v := os.Getenv("NERVEPIPE_SOLVER_COMMAND"); v != "" {
		config.Solver.Command = strings.Fields(v)
	}
	if v := os.Getenv("NERVEPIPE_COMSOL_PATH"); v != "" {
		config.Solver.ComsolPath = v
	}
	if v := os.Getenv("NERVEPIPE_JDK_PATH"); v != "" {
		config.Solver.JDKPath = v
	}

	if v := os.Getenv("NERVEPIPE_SMART"); v != "" {
		config.Cache.Smart = v == "true" || v == "1"
	}
	if v := os.Getenv("NERVEPIPE_CACHE_BACKEND"); v != "" {
		config.Cache.Backend = v
	}
	if v := os.Getenv("NERVEPIPE_CACHE_DSN"); v != "" {
		config.Cache.DSN = v
	}

	if v := os.Getenv("NERVEPIPE_MIRROR_ENABLED"); v != "" {
		config.Mirror.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("NERVEPIPE_MIRROR_ENDPOINT"); v != "" {
		config.Mirror.Endpoint = v
	}
	if v := os.Getenv("NERVEPIPE_MIRROR_BUCKET"); v != "" {
		config.Mirror.Bucket = v
	}
	if v := os.Getenv("NERVEPIPE_MIRROR_ACCESS_KEY"); v != "" {
		config.Mirror.AccessKey = v
	}
	if v := os.Getenv("NERVEPIPE_MIRROR_SECRET_KEY"); v != "" {
		config.Mirror.SecretKey = v
	}

	if v := os.Getenv("NERVEPIPE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

func expandAll(args []string) []string {
	for i, a := range args {
		args[i] = expandEnvVars(a)
	}
	return args
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
