package main

import (
	"fmt"

	"github.com/mattjoyce/unitd/internal/auth"
	"github.com/mattjoyce/unitd/internal/config"
	"github.com/mattjoyce/unitd/internal/dispatch"
	"github.com/mattjoyce/unitd/internal/host"
	"github.com/mattjoyce/unitd/internal/host/exechost"
	"github.com/mattjoyce/unitd/internal/host/memhost"
	"github.com/mattjoyce/unitd/internal/manifest"
)

// newHost builds the unit substrate named by the config.
func newHost(cfg *config.Config) (host.Host, error) {
	switch cfg.Host.Kind {
	case config.HostExec:
		return exechost.New(cfg.Host.BinDir, cfg.Host.Arch), nil
	case config.HostMem:
		h := memhost.New()
		h.AutoLoad = true
		return h, nil
	default:
		return nil, fmt.Errorf("unknown host kind %q", cfg.Host.Kind)
	}
}

func sessionConfig(cfg *config.Config, onExit func(int)) dispatch.Config {
	s := cfg.Session
	return dispatch.Config{
		Prefix:    s.Prefix,
		RootArgs:  s.RootArgs,
		Allowlist: s.Allowlist,
		Rewriter: manifest.Rewriter{
			MountPoint: s.MountPoint,
			StorageURL: s.StorageURL,
			BaseURL:    s.BaseURL,
		},
		Cols:        s.Cols,
		Rows:        s.Rows,
		AltHTTP:     s.AltHTTP,
		WaitTimeout: s.WaitTimeout,
		OnExit:      onExit,
	}
}

func apiTokens(cfg *config.Config) []auth.TokenConfig {
	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{
			Token:  t.Token,
			Scopes: t.Scopes,
		})
	}
	return tokens
}

// exitCode maps a root unit status onto a process exit code.
func exitCode(status int) int {
	if status < 0 {
		return 1
	}
	return status & 0xff
}
