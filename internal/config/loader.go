package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, merges, defaults and validates configuration from a file or
// from a directory containing config.yaml. Files named in include are
// overlaid in order; later files win field by field.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg := Defaults()
	visited := map[string]bool{}
	if err := loadInto(cfg, absPath, visited); err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	if err := resolveRoot(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadInto unmarshals path onto cfg and then follows its includes.
func loadInto(cfg *Config, path string, visited map[string]bool) error {
	if visited[path] {
		return fmt.Errorf("include cycle detected at %s", path)
	}
	visited[path] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	includes := cfg.Include
	cfg.Include = nil
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	own := cfg.Include
	cfg.Include = append(includes, own...)

	baseDir := filepath.Dir(path)
	for i, inc := range own {
		inc = interpolateEnv(inc)
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(baseDir, inc)
		}
		if _, err := os.Stat(inc); err != nil {
			return fmt.Errorf("include[%d]: file not found: %s\n"+
				"Hint: Include paths are resolved relative to %s", i, inc, baseDir)
		}
		if err := loadInto(cfg, inc, visited); err != nil {
			return err
		}
	}
	return nil
}

// resolveRoot splits session.root into RootArgs.
func resolveRoot(cfg *Config) error {
	if cfg.Session.Root == "" {
		return nil
	}
	args, err := shlex.Split(cfg.Session.Root)
	if err != nil {
		return fmt.Errorf("session.root: %w", err)
	}
	cfg.Session.RootArgs = args
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables are left in place so validation can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}
