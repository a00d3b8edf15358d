package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/unitd/internal/api"
	"github.com/mattjoyce/unitd/internal/config"
	"github.com/mattjoyce/unitd/internal/dispatch"
	"github.com/mattjoyce/unitd/internal/host/memhost"
	"github.com/mattjoyce/unitd/internal/journal"
	"github.com/mattjoyce/unitd/internal/storage"
	"github.com/mattjoyce/unitd/internal/tty"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	stdoutCh := make(chan []byte, 1)
	stderrCh := make(chan []byte, 1)
	go func() { b, _ := io.ReadAll(stdoutR); stdoutCh <- b }()
	go func() { b, _ := io.ReadAll(stderrR); stderrCh <- b }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes := <-stdoutCh
	stderrBytes := <-stderrCh

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func writeConfig(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	statePath := filepath.Join(dir, "unitd.db")
	path := filepath.Join(dir, "config.yaml")
	content := "state:\n  path: " + statePath + "\n" + body
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path, statePath
}

func seedJournal(t *testing.T, statePath string) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, statePath)
	require.NoError(t, err)
	defer db.Close()

	store := journal.NewStore(db)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.BeginSession(ctx, "sess-one", "bash", at))
	require.NoError(t, store.Spawned(ctx, "sess-one", 1, 0, "bash", "", at))
	require.NoError(t, store.Loaded(ctx, "sess-one", 1, at.Add(time.Millisecond)))
	require.NoError(t, store.Spawned(ctx, "sess-one", 2, 1, "ls", "abc123", at.Add(time.Second)))
	require.NoError(t, store.Exited(ctx, "sess-one", 2, 0, false, at.Add(2*time.Second)))
	require.NoError(t, store.Reaped(ctx, "sess-one", 2, at.Add(3*time.Second)))
}

func TestRunDispatch(t *testing.T) {
	t.Run("no args prints usage", func(t *testing.T) {
		code, _, stderr := captureOutputWithExitCode(t, func() int { return run(nil) })
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "Usage:")
	})

	t.Run("unknown command", func(t *testing.T) {
		code, _, stderr := captureOutputWithExitCode(t, func() int { return run([]string{"frobnicate"}) })
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "Unknown command: frobnicate")
	})

	t.Run("version", func(t *testing.T) {
		code, stdout, _ := captureOutputWithExitCode(t, func() int { return run([]string{"version"}) })
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, version)
	})

	t.Run("help", func(t *testing.T) {
		code, stdout, _ := captureOutputWithExitCode(t, func() int { return run([]string{"help"}) })
		assert.Equal(t, 0, code)
		assert.Contains(t, stdout, "config check")
	})

	t.Run("unknown config action", func(t *testing.T) {
		code, _, stderr := captureOutputWithExitCode(t, func() int { return run([]string{"config", "rotate"}) })
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "Unknown config action: rotate")
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(0))
	assert.Equal(t, 3, exitCode(3))
	assert.Equal(t, 1, exitCode(-1))
	assert.Equal(t, 1, exitCode(257))
}

func TestNewHost(t *testing.T) {
	cfg := config.Defaults()
	cfg.Host.Kind = config.HostMem
	h, err := newHost(cfg)
	require.NoError(t, err)
	mem, ok := h.(*memhost.Host)
	require.True(t, ok)
	assert.True(t, mem.AutoLoad)

	cfg.Host.Kind = config.HostExec
	h, err = newHost(cfg)
	require.NoError(t, err)
	assert.Equal(t, "exec", h.Name())

	cfg.Host.Kind = "vm"
	_, err = newHost(cfg)
	assert.Error(t, err)
}

func TestSessionConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Session.RootArgs = []string{"sh", "-c", "true"}
	cfg.Session.BaseURL = "https://example.test"

	called := 0
	dc := sessionConfig(cfg, func(int) { called++ })
	assert.Equal(t, "bash", dc.Prefix)
	assert.Equal(t, []string{"sh", "-c", "true"}, dc.RootArgs)
	assert.Equal(t, "/mnt/html5", dc.Rewriter.MountPoint)
	assert.Equal(t, "/storage/", dc.Rewriter.StorageURL)
	assert.Equal(t, "https://example.test", dc.Rewriter.BaseURL)
	assert.Equal(t, 80, dc.Cols)
	dc.OnExit(0)
	assert.Equal(t, 1, called)
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	path, _ := writeConfig(t, `host:
  kind: mem
api:
  enabled: true
  listen: 127.0.0.1:9999
  auth:
    api_key: super-secret
    tokens:
      - token: scoped-secret
        scopes: ["procs:ro"]
`)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return run([]string{"config", "show", "--config", path})
	})
	require.Equal(t, 0, code, stderr)
	assert.NotContains(t, stdout, "super-secret")
	assert.NotContains(t, stdout, "scoped-secret")
	assert.Contains(t, stdout, redacted)
	assert.Contains(t, stdout, "procs:ro")
	assert.Contains(t, stdout, "127.0.0.1:9999")
}

func TestConfigCheck(t *testing.T) {
	t.Run("valid mem host", func(t *testing.T) {
		path, _ := writeConfig(t, "host:\n  kind: mem\nsession:\n  root: sh -c true\n")
		code, stdout, stderr := captureOutputWithExitCode(t, func() int {
			return run([]string{"config", "check", "--config", path})
		})
		assert.Equal(t, 0, code, stderr)
		assert.NotEmpty(t, stdout)
	})

	t.Run("strict fails on warnings", func(t *testing.T) {
		// No root command is a warning.
		path, _ := writeConfig(t, "host:\n  kind: mem\n")
		code, _, _ := captureOutputWithExitCode(t, func() int {
			return run([]string{"config", "check", "--config", path, "--strict"})
		})
		assert.Equal(t, 2, code)
	})

	t.Run("missing bin_dir is an error", func(t *testing.T) {
		path, _ := writeConfig(t, "host:\n  kind: exec\n  bin_dir: /nonexistent/unitd-bin\n")
		code, stdout, _ := captureOutputWithExitCode(t, func() int {
			return run([]string{"config", "check", "--config", path, "--json"})
		})
		assert.Equal(t, 1, code)
		var result map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &result))
		assert.Equal(t, false, result["valid"])
	})
}

func TestHistory(t *testing.T) {
	path, statePath := writeConfig(t, "host:\n  kind: mem\n")
	seedJournal(t, statePath)

	t.Run("table", func(t *testing.T) {
		code, stdout, stderr := captureOutputWithExitCode(t, func() int {
			return run([]string{"history", "--config", path})
		})
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "ls")
		assert.Contains(t, stdout, "reaped")
	})

	t.Run("json filtered by session", func(t *testing.T) {
		code, stdout, stderr := captureOutputWithExitCode(t, func() int {
			return run([]string{"history", "--config", path, "--session", "sess-one", "--json"})
		})
		require.Equal(t, 0, code, stderr)
		var records []journal.Record
		require.NoError(t, json.Unmarshal([]byte(stdout), &records))
		require.Len(t, records, 2)
		assert.Equal(t, 2, records[0].PID)
	})

	t.Run("unknown session is empty", func(t *testing.T) {
		code, stdout, _ := captureOutputWithExitCode(t, func() int {
			return run([]string{"history", "--config", path, "--session", "nope", "--json"})
		})
		require.Equal(t, 0, code)
		assert.Equal(t, "[]", strings.TrimSpace(stdout))
	})

	t.Run("sessions", func(t *testing.T) {
		code, stdout, _ := captureOutputWithExitCode(t, func() int {
			return run([]string{"history", "--config", path, "--sessions"})
		})
		require.Equal(t, 0, code)
		assert.Contains(t, stdout, "sess-one")
	})
}

func TestInspect(t *testing.T) {
	path, statePath := writeConfig(t, "host:\n  kind: mem\n")
	seedJournal(t, statePath)

	t.Run("latest session with flags after pid", func(t *testing.T) {
		code, stdout, stderr := captureOutputWithExitCode(t, func() int {
			return run([]string{"inspect", "2", "--config", path})
		})
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "sess-one")
		assert.Contains(t, stdout, "ls")
	})

	t.Run("json", func(t *testing.T) {
		code, stdout, stderr := captureOutputWithExitCode(t, func() int {
			return run([]string{"inspect", "2", "--config", path, "--session", "sess-one", "--json"})
		})
		require.Equal(t, 0, code, stderr)
		var report map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &report))
		assert.Equal(t, "sess-one", report["session_id"])
	})

	t.Run("unknown pid", func(t *testing.T) {
		code, _, stderr := captureOutputWithExitCode(t, func() int {
			return run([]string{"inspect", "42", "--config", path})
		})
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "Failed to inspect unit 42")
	})

	t.Run("bad pid", func(t *testing.T) {
		code, _, stderr := captureOutputWithExitCode(t, func() int {
			return run([]string{"inspect", "abc", "--config", path})
		})
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "Invalid pid")
	})
}

func TestPs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := dispatch.New(dispatch.Config{Prefix: "bash"}, memhost.New(), tty.NewBroadcast(0), nil, nil)
	go func() { _ = sess.Run(ctx) }()
	sess.Resize(80, 24)
	sess.Sync()

	srv := httptest.NewServer(api.New(api.Config{APIKey: "k"}, api.Deps{Session: sess}, nil).Handler())
	defer srv.Close()

	t.Run("table", func(t *testing.T) {
		code, stdout, stderr := captureOutputWithExitCode(t, func() int {
			return run([]string{"ps", "--api", srv.URL, "--token", "k"})
		})
		require.Equal(t, 0, code, stderr)
		assert.Contains(t, stdout, "bash")
	})

	t.Run("json", func(t *testing.T) {
		code, stdout, stderr := captureOutputWithExitCode(t, func() int {
			return run([]string{"ps", "--api", srv.URL, "--token", "k", "--json"})
		})
		require.Equal(t, 0, code, stderr)
		var procs api.ProcessesResponse
		require.NoError(t, json.Unmarshal([]byte(stdout), &procs))
		require.Len(t, procs.Processes, 1)
		assert.Equal(t, 1, procs.Processes[0].PID)
		assert.Equal(t, sess.ID(), procs.SessionID)
	})

	t.Run("bad token", func(t *testing.T) {
		code, _, stderr := captureOutputWithExitCode(t, func() int {
			return run([]string{"ps", "--api", srv.URL, "--token", "wrong"})
		})
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "Failed to query processes")
	})
}
