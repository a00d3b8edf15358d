package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mattjoyce/unitd/internal/auth"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate performs basic validation on the configuration.
func Validate(cfg *Config) error {
	if !slices.Contains(validLogLevels, strings.ToLower(cfg.Service.LogLevel)) {
		return fmt.Errorf("service.log_level must be one of: %s (got %q)",
			strings.Join(validLogLevels, ", "), cfg.Service.LogLevel)
	}
	if f := cfg.Service.LogFormat; f != "" && f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", f)
	}

	if cfg.Session.Prefix == "" {
		return fmt.Errorf("session.prefix is required")
	}
	if cfg.Session.Cols < 0 || cfg.Session.Rows < 0 {
		return fmt.Errorf("session.cols and session.rows must not be negative")
	}
	if cfg.Session.WaitTimeout < 0 {
		return fmt.Errorf("session.wait_timeout must not be negative")
	}
	if err := unresolved("session.storage_url", cfg.Session.StorageURL); err != nil {
		return err
	}

	switch cfg.Host.Kind {
	case HostExec:
		if cfg.Host.BinDir == "" {
			return fmt.Errorf("host.bin_dir is required for the exec host")
		}
	case HostMem:
	default:
		return fmt.Errorf("host.kind must be %q or %q (got %q)", HostExec, HostMem, cfg.Host.Kind)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if err := unresolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
			return err
		}
		for i, tok := range cfg.API.Auth.Tokens {
			field := fmt.Sprintf("api.auth.tokens[%d]", i)
			if tok.Token == "" {
				return fmt.Errorf("%s.token is required", field)
			}
			if err := unresolved(field+".token", tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("%s.scopes must be non-empty", field)
			}
			for _, s := range tok.Scopes {
				if !auth.KnownScope(strings.TrimSpace(s)) {
					return fmt.Errorf("%s: unknown scope %q", field, s)
				}
			}
		}
	}
	return nil
}

func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}
