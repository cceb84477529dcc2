// Package ippcfg defines the proxy's configuration struct and its TOML
// persistence, grounded on the teacher's AgentConfig/DefaultAgentConfig
// split. Command-line flag parsing remains an external collaborator; this
// package only owns the struct, its tags, and its defaulting.
package ippcfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the full set of proxy settings (§6 Command surface plus the
// ambient fields a real deployment needs).
type Config struct {
	InfrastructureURI     string `toml:"infrastructure_uri"`
	DeviceURI             string `toml:"device_uri"`
	PreferredOutputFormat string `toml:"preferred_output_format"`
	RequestingUser        string `toml:"requesting_user"`

	Username        string `toml:"username"`
	Password        string `toml:"password"`
	PasswordEnvVar  string `toml:"password_env_var"`

	Verbosity  string `toml:"verbosity"`
	VerboseIPP bool   `toml:"verbose_ipp"`

	StateDir string `toml:"state_dir"`

	Service ServiceConfig `toml:"service"`

	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
}

// ServiceConfig holds the fields github.com/kardianos/service needs to
// install/run the proxy as a platform service.
type ServiceConfig struct {
	Name        string `toml:"name"`
	DisplayName string `toml:"display_name"`
	Description string `toml:"description"`
}

// DiagnosticsConfig configures the loopback diagnostic dashboard (C8,
// §13), which is off by default since it is observability-only.
type DiagnosticsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Default returns a Config with sensible defaults, mirroring the teacher's
// DefaultAgentConfig.
func Default() *Config {
	return &Config{
		RequestingUser: "ippproxy",
		Verbosity:             "INFO",
		StateDir:              defaultStateDir(),
		Service: ServiceConfig{
			Name:        "ippproxy",
			DisplayName: "IPP Infrastructure Proxy",
			Description: "Bridges an IPP Infrastructure Printer to a local output device",
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9631",
		},
	}
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "ippproxy")
	}
	return "."
}

// Load reads configPath into a freshly defaulted Config, then resolves the
// password from PasswordEnvVar if set (§6: password prompting itself stays
// an external collaborator; this only wires an env-var binding).
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("ippcfg: config file not found: %w", err)
	}
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("ippcfg: parse %s: %w", configPath, err)
	}

	if cfg.PasswordEnvVar != "" {
		if v := os.Getenv(cfg.PasswordEnvVar); v != "" {
			cfg.Password = v
		}
	}

	return cfg, nil
}

// WriteDefault writes a default configuration file to configPath, failing
// if one already exists.
func WriteDefault(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("ippcfg: %s already exists", configPath)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("ippcfg: create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("ippcfg: create %s: %w", configPath, err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(Default()); err != nil {
		return fmt.Errorf("ippcfg: write %s: %w", configPath, err)
	}
	return nil
}

// Validate reports the missing-required-field errors the Command surface
// (§6) must refuse to start with.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.InfrastructureURI) == "" {
		missing = append(missing, "infrastructure_uri")
	}
	if strings.TrimSpace(c.DeviceURI) == "" {
		missing = append(missing, "device_uri")
	}
	if len(missing) > 0 {
		return fmt.Errorf("ippcfg: missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
