// Package doctor checks a unitd configuration against the machine it will
// run on: binaries, state directory and API exposure.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattjoyce/unitd/internal/auth"
	"github.com/mattjoyce/unitd/internal/config"
	"github.com/mattjoyce/unitd/internal/host"
	"github.com/mattjoyce/unitd/internal/host/exechost"
	"github.com/mattjoyce/unitd/internal/storage"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a configuration.
type Doctor struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	if err := config.Validate(d.cfg); err != nil {
		d.addError(r, "config", "", err.Error())
	}
	d.validateSession(r)
	d.validateHost(r)
	d.validateState(r)
	d.validateAPI(r)
	d.validateTokenScopes(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateSession(r *Result) {
	s := d.cfg.Session
	if s.MountPoint != "" && !strings.HasPrefix(s.MountPoint, "/") {
		d.addError(r, "session", "session.mount_point", "mount_point must be an absolute path")
	}
	if s.StorageURL != "" && !strings.HasSuffix(s.StorageURL, "/") {
		d.addWarning(r, "session", "session.storage_url",
			fmt.Sprintf("storage_url %q does not end in '/'; rewritten urls will be joined without a separator", s.StorageURL))
	}
	if len(s.RootArgs) == 0 {
		d.addWarning(r, "session", "session.root", fmt.Sprintf("no root command set; %q will be launched", s.Prefix))
	}
	if s.Cols == 0 || s.Rows == 0 {
		d.addWarning(r, "session", "session.cols", "terminal size is zero; the root starts on the first resize")
	}
}

// validateHost resolves the root and every allowlisted command against the
// exec host's bin_dir.
func (d *Doctor) validateHost(r *Result) {
	if d.cfg.Host.Kind != config.HostExec {
		return
	}
	info, err := os.Stat(d.cfg.Host.BinDir)
	if err != nil || !info.IsDir() {
		d.addError(r, "host", "host.bin_dir", fmt.Sprintf("bin_dir %q is not a directory", d.cfg.Host.BinDir))
		return
	}

	h := exechost.New(d.cfg.Host.BinDir, d.cfg.Host.Arch)
	root := d.cfg.Session.Prefix
	if len(d.cfg.Session.RootArgs) > 0 {
		root = d.cfg.Session.RootArgs[0]
	}
	if _, err := h.Resolve(host.LaunchSpec{Executable: root}); err != nil {
		d.addError(r, "host", "session.root", fmt.Sprintf("root %q: %v", root, resolveReason(err)))
	}
	for i, name := range d.cfg.Session.Allowlist {
		if _, err := h.Resolve(host.LaunchSpec{Executable: name}); err != nil {
			d.addWarning(r, "host", fmt.Sprintf("session.allowlist[%d]", i),
				fmt.Sprintf("allowlisted %q: %v", name, resolveReason(err)))
		}
	}
}

func resolveReason(err error) string {
	if errors.Is(err, host.ErrNotFound) {
		return "not found in bin_dir"
	}
	return err.Error()
}

func (d *Doctor) validateState(r *Result) {
	path := d.cfg.State.Path
	if path == storage.MemoryPath {
		d.addWarning(r, "state", "state.path", "history is kept in memory and lost on exit")
		return
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		d.addWarning(r, "state", "state.path", fmt.Sprintf("directory %q will be created", dir))
	case err != nil:
		d.addError(r, "state", "state.path", err.Error())
	case !info.IsDir():
		d.addError(r, "state", "state.path", fmt.Sprintf("%q is not a directory", dir))
	}
}

func (d *Doctor) validateAPI(r *Result) {
	api := d.cfg.API
	if !api.Enabled {
		if d.cfg.Metrics.Enabled {
			d.addWarning(r, "metrics", "metrics.enabled", "metrics are served by the API listener, which is disabled")
		}
		return
	}
	noAuth := api.Auth.APIKey == "" && len(api.Auth.Tokens) == 0
	if noAuth {
		d.addWarning(r, "api", "api.auth", "API enabled but no authentication configured; every protected route will answer 401")
	}
	if hostPart, _, err := net.SplitHostPort(api.Listen); err == nil {
		ip := net.ParseIP(hostPart)
		if hostPart == "" || (ip != nil && !ip.IsLoopback()) {
			d.addWarning(r, "api", "api.listen",
				fmt.Sprintf("listening on %q exposes the terminal beyond this host", api.Listen))
		}
	} else {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", api.Listen, err))
	}
}

func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		for j, scope := range token.Scopes {
			field := fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j)
			if !auth.KnownScope(strings.TrimSpace(scope)) {
				d.addError(r, "token_scopes", field, fmt.Sprintf("unknown scope %q", scope))
			}
		}
	}
}

// warnMissingEnvVars flags placeholders that interpolation left in place.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	fields := map[string]string{
		"session.storage_url": d.cfg.Session.StorageURL,
		"session.base_url":    d.cfg.Session.BaseURL,
		"session.root":        d.cfg.Session.Root,
		"host.bin_dir":        d.cfg.Host.BinDir,
		"state.path":          d.cfg.State.Path,
	}
	for field, v := range fields {
		if m := envVarPattern.FindStringSubmatch(v); len(m) > 1 {
			d.addWarning(r, "env", field, fmt.Sprintf("environment variable ${%s} is not set", m[1]))
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
