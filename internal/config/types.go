package config

import "time"

// Config represents the complete unitd configuration.
type Config struct {
	Include []string      `yaml:"include,omitempty"`
	Service ServiceConfig `yaml:"service"`
	Session SessionConfig `yaml:"session"`
	Host    HostConfig    `yaml:"host"`
	State   StateConfig   `yaml:"state"`
	API     APIConfig     `yaml:"api,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`

	// SourcePath is the absolute path of the root config file.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// SessionConfig describes the root unit and how children are launched.
type SessionConfig struct {
	// Prefix is the session's terminal prefix and the root command name.
	Prefix string `yaml:"prefix"`
	// Root is a shell-style command line for the root unit. When set it
	// takes precedence over RootArgs.
	Root     string   `yaml:"root,omitempty"`
	RootArgs []string `yaml:"root_args,omitempty"`
	// Allowlist restricts which commands may be spawned without a
	// manifest. Empty allows all.
	Allowlist   []string      `yaml:"allowlist,omitempty"`
	MountPoint  string        `yaml:"mount_point"`
	StorageURL  string        `yaml:"storage_url"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	Cols        int           `yaml:"cols"`
	Rows        int           `yaml:"rows"`
	AltHTTP     bool          `yaml:"alt_http,omitempty"`
	WaitTimeout time.Duration `yaml:"wait_timeout,omitempty"`
}

// HostConfig selects the unit substrate.
type HostConfig struct {
	Kind   string `yaml:"kind"`
	BinDir string `yaml:"bin_dir"`
	Arch   string `yaml:"arch"`
}

// Host kinds.
const (
	HostExec = "exec"
	HostMem  = "mem"
)

// StateConfig defines journal storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the single admin bearer token. Prefer Tokens for scoped
	// access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "unitd",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Session: SessionConfig{
			Prefix:     "bash",
			MountPoint: "/mnt/html5",
			StorageURL: "/storage/",
			Cols:       80,
			Rows:       24,
		},
		Host: HostConfig{
			Kind:   HostExec,
			BinDir: "./bin",
			Arch:   "x86-64",
		},
		State: StateConfig{
			Path: "./data/unitd.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
