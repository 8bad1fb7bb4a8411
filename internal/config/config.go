// Package config loads the pagenode-shell configuration.
//
// Values are layered, later layers winning:
//  1. Built-in defaults (Default)
//  2. An optional config file: .json/.jsonc parsed with
//     github.com/tidwall/jsonc, .yaml/.yml parsed with gopkg.in/yaml.v3
//  3. PAGENODE_* environment variables via github.com/kelseyhightower/envconfig
//
// An optional dotenv file (--env-file) is loaded into the process
// environment before step 3, so it can carry PAGENODE_BACKEND_PORT during
// development.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/pagenode/pagenode-shell/internal/model"
)

// EnvPrefix is the prefix of every environment variable the shell reads.
const EnvPrefix = "PAGENODE"

// DefaultSidecarName is the logical name of the backend executable.
const DefaultSidecarName = "pagenode-backend"

// Config holds all pagenode-shell configuration.
type Config struct {
	// BackendPort is the raw dev override (PAGENODE_BACKEND_PORT). Nil when
	// the variable is absent. It is environment-only: config files cannot
	// set it.
	BackendPort *string `json:"-" yaml:"-" split_words:"true"`

	Sidecar   SidecarConfig   `json:"sidecar" yaml:"sidecar"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`
	Endpoint  EndpointConfig  `json:"endpoint" yaml:"endpoint"`
	Logging   LogConfig       `json:"logging" yaml:"logging"`
}

// SidecarConfig describes the backend executable and how to find it.
type SidecarConfig struct {
	// Name is the logical name resolved by the sidecar locator.
	Name string `json:"name" yaml:"name"`

	// Args are passed to the sidecar verbatim.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// SearchDirs are probed before the directory of the shell executable.
	SearchDirs []string `json:"searchDirs,omitempty" yaml:"searchDirs,omitempty" split_words:"true"`

	// Env is added to the inherited environment of the sidecar.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// LogDir, when set, receives the sidecar's stdout and stderr as files
	// instead of pipes.
	LogDir string `json:"logDir,omitempty" yaml:"logDir,omitempty" split_words:"true"`
}

// DiscoveryConfig tunes the announcement scan.
type DiscoveryConfig struct {
	// ScanTimeout bounds how long the scanner waits for PORT=. Zero keeps
	// the wait unbounded.
	ScanTimeout Duration `json:"scanTimeout" yaml:"scanTimeout" split_words:"true"`
}

// EndpointConfig configures the HTTP listener serving the port query.
type EndpointConfig struct {
	// Listen is the host:port to bind. Port 0 picks a free port.
	Listen string `json:"listen" yaml:"listen"`

	// AllowOrigins lists the webview origins allowed by CORS.
	AllowOrigins []string `json:"allowOrigins,omitempty" yaml:"allowOrigins,omitempty" split_words:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Sidecar: SidecarConfig{
			Name: DefaultSidecarName,
		},
		Endpoint: EndpointConfig{
			Listen: "127.0.0.1:0",
			AllowOrigins: []string{
				"tauri://localhost",
				"http://tauri.localhost",
				"http://localhost:1420",
			},
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the optional file at path
// and the environment. An empty path skips the file layer.
//
// All failures are returned as model.CLIError with ExitConfigError.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, model.WrapCLIError(model.ExitConfigError,
				fmt.Sprintf("failed to load config file %q", path), err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError,
			"failed to read PAGENODE_* environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "invalid configuration", err)
	}

	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables that are already set are left untouched, so an
// exported PAGENODE_BACKEND_PORT beats the file.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return model.WrapCLIError(model.ExitConfigError,
			fmt.Sprintf("failed to load env file %q", path), err)
	}
	return nil
}

// loadFile decodes the file at path into cfg, choosing the format by
// extension. Unknown keys are rejected so typos do not silently fall back
// to defaults.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
		return nil

	default:
		// jsonc.ToJSON strips comments and trailing commas, producing
		// standard JSON for encoding/json.
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
		return nil
	}
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	name := strings.TrimSpace(c.Sidecar.Name)
	if name == "" {
		return fmt.Errorf("sidecar.name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("sidecar.name %q must be a logical name, not a path (use sidecar.searchDirs)", name)
	}
	if c.Discovery.ScanTimeout < 0 {
		return fmt.Errorf("discovery.scanTimeout must not be negative, got %s", c.Discovery.ScanTimeout)
	}
	if _, _, err := net.SplitHostPort(c.Endpoint.Listen); err != nil {
		return fmt.Errorf("endpoint.listen %q: %w", c.Endpoint.Listen, err)
	}
	for _, origin := range c.Endpoint.AllowOrigins {
		if origin != "*" && !strings.Contains(origin, "://") {
			return fmt.Errorf("endpoint.allowOrigins: %q is not an origin (want scheme://host)", origin)
		}
	}
	return nil
}

// OverrideValue returns the raw PAGENODE_BACKEND_PORT value and whether the
// variable was present at all.
func (c *Config) OverrideValue() (string, bool) {
	if c.BackendPort == nil {
		return "", false
	}
	return *c.BackendPort, true
}
