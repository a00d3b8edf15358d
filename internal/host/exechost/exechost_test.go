package exechost

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/unitd/internal/host"
)

type chanSink chan host.Event

func (c chanSink) Deliver(ev host.Event) { c <- ev }

func (c chanSink) next(t *testing.T) host.Event {
	t.Helper()
	select {
	case ev := <-c:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for host event")
		return host.Event{}
	}
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0o755))
}

func TestLaunchRelaysMessages(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "hello", `echo '"vim>hello"'
echo 'not json'
echo '"exited:3"'
`)
	h := New(dir, "x86-64")
	sink := make(chanSink, 16)

	u, err := h.Launch(context.Background(), host.LaunchSpec{PID: 7, Command: "hello", Executable: "hello", Args: []string{"hello"}}, sink)
	require.NoError(t, err)
	assert.Equal(t, 7, u.PID())

	assert.Equal(t, host.EventLoad, sink.next(t).Kind)

	ev := sink.next(t)
	assert.Equal(t, host.EventMessage, ev.Kind)
	assert.JSONEq(t, `"vim>hello"`, string(ev.Message))

	ev = sink.next(t)
	assert.JSONEq(t, `"not json"`, string(ev.Message))

	ev = sink.next(t)
	assert.JSONEq(t, `"exited:3"`, string(ev.Message))

	// The unit announced its exit, so no synthetic exit follows.
	select {
	case ev := <-sink:
		t.Fatalf("unexpected event %v", ev.Kind)
	case <-time.After(200 * time.Millisecond):
	}
	require.NoError(t, u.Close())
}

func TestLaunchSynthesizesExit(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "quit", "exit 4\n")
	sink := make(chanSink, 4)

	_, err := New(dir, "").Launch(context.Background(), host.LaunchSpec{PID: 2, Executable: "quit"}, sink)
	require.NoError(t, err)

	assert.Equal(t, host.EventLoad, sink.next(t).Kind)
	ev := sink.next(t)
	assert.Equal(t, host.EventExit, ev.Kind)
	assert.Equal(t, 4, ev.Status)
}

func TestLaunchReportsCrash(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "boom", "kill -9 $$\n")
	sink := make(chanSink, 4)

	_, err := New(dir, "").Launch(context.Background(), host.LaunchSpec{PID: 2, Executable: "boom"}, sink)
	require.NoError(t, err)

	assert.Equal(t, host.EventLoad, sink.next(t).Kind)
	ev := sink.next(t)
	assert.Equal(t, host.EventCrash, ev.Kind)
	assert.Equal(t, -1, ev.Status)
}

func TestLaunchMissingProgram(t *testing.T) {
	sink := make(chanSink, 4)
	u, err := New(t.TempDir(), "").Launch(context.Background(), host.LaunchSpec{PID: 3, Executable: "nope"}, sink)
	require.NoError(t, err)

	ev := sink.next(t)
	assert.Equal(t, host.EventError, ev.Kind)
	assert.Equal(t, 3, ev.PID)
	assert.Equal(t, "No such file or directory", ev.Err)
	assert.Error(t, u.Post(map[string]string{"x": "y"}))
}

func TestPostWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "echo", `read line
printf '%s\n' "$line"
`)
	sink := make(chanSink, 4)
	u, err := New(dir, "").Launch(context.Background(), host.LaunchSpec{PID: 1, Executable: "echo"}, sink)
	require.NoError(t, err)
	assert.Equal(t, host.EventLoad, sink.next(t).Kind)

	require.NoError(t, u.Post(map[string][2]int{"tty_resize": {80, 24}}))
	ev := sink.next(t)
	assert.JSONEq(t, `{"tty_resize":[80,24]}`, string(ev.Message))
	assert.Equal(t, host.EventExit, sink.next(t).Kind)
}

func TestResolveFromManifest(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "prog", "exit 0\n")
	h := New(t.TempDir(), "x86-64")

	path, err := h.Resolve(host.LaunchSpec{
		Executable: "ignored",
		Manifest:   []byte(`{"program":{"x86-64":{"url":"file://` + filepath.Join(dir, "prog") + `"}}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "prog"), path)

	_, err = h.Resolve(host.LaunchSpec{Manifest: []byte(`{"program":{"x86-64":{"url":"http://h/prog"}}}`)})
	assert.ErrorIs(t, err, host.ErrNotFound)

	_, err = h.Resolve(host.LaunchSpec{Executable: "../etc/passwd"})
	assert.ErrorIs(t, err, host.ErrNotFound)
}

func TestEnvList(t *testing.T) {
	assert.Equal(t, []string{"A=1", "B=2"}, envList(map[string]string{"B": "2", "A": "1"}))
}
