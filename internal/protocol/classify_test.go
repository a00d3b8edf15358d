package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind Kind
	}{
		{"spawn", `{"command":"spawn","id":"1","args":["ls"],"envs":[],"cwd":"/"}`, KindSpawn},
		{"legacy spawn", `{"command":"nacl_spawn","id":"1","args":["ls"]}`, KindSpawn},
		{"wait", `{"command":"wait","id":"2","pid":3,"options":1}`, KindWait},
		{"legacy wait", `{"command":"nacl_wait","id":"2","pid":-1,"options":0}`, KindWait},
		{"setfg", `{"command":"setfg","id":"3","pid":4}`, KindSetForeground},
		{"output", `"vimsome text"`, KindOutput},
		{"exit", `"exited:3"`, KindExit},
		{"exit without code", `"exited"`, KindExit},
		{"unknown command", `{"command":"reboot"}`, KindUnknown},
		{"unknown string", `"hello"`, KindUnknown},
		{"number", `42`, KindUnknown},
		{"empty", ``, KindUnknown},
		{"malformed spawn", `{"command":"spawn","args":"notalist"}`, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Classify(json.RawMessage(tt.raw), "vim")
			assert.Equal(t, tt.kind, msg.Kind)
		})
	}
}

func TestClassifyOutputStripsPrefix(t *testing.T) {
	msg := Classify(json.RawMessage(`"vim\u001b[1mbold"`), "vim")
	require.Equal(t, KindOutput, msg.Kind)
	assert.Equal(t, "\x1b[1mbold", msg.Text)
}

func TestClassifyPrefixWinsOverExit(t *testing.T) {
	// A session whose prefix collides with the exit marker sees output first.
	msg := Classify(json.RawMessage(`"exited:1"`), "exit")
	assert.Equal(t, KindOutput, msg.Kind)
	assert.Equal(t, "ed:1", msg.Text)
}

func TestClassifySpawnFields(t *testing.T) {
	raw := `{"command":"spawn","id":17,"args":["grep","-n","x"],"envs":["HOME=/home/user"],"cwd":"/tmp","nmf":{"program":{}}}`
	msg := Classify(json.RawMessage(raw), "vim")
	require.Equal(t, KindSpawn, msg.Kind)
	req := msg.Spawn
	assert.Equal(t, RequestID("17"), req.ID)
	assert.Equal(t, "grep", req.Executable())
	assert.Equal(t, []string{"HOME=/home/user"}, req.Envs)
	assert.Equal(t, "/tmp", req.Cwd)
	assert.True(t, req.HasManifest())
}

func TestSpawnRequestWithoutManifest(t *testing.T) {
	for _, raw := range []string{
		`{"command":"spawn","id":"1","args":["ls"]}`,
		`{"command":"spawn","id":"1","args":["ls"],"nmf":null}`,
		`{"command":"spawn","id":"1","args":["ls"],"nmf":""}`,
	} {
		msg := Classify(json.RawMessage(raw), "vim")
		require.Equal(t, KindSpawn, msg.Kind, raw)
		assert.False(t, msg.Spawn.HasManifest(), raw)
	}

	empty := &SpawnRequest{}
	assert.Equal(t, "", empty.Executable())
}

func TestWaitNoHang(t *testing.T) {
	msg := Classify(json.RawMessage(`{"command":"wait","id":"a","pid":5,"options":1}`), "vim")
	require.Equal(t, KindWait, msg.Kind)
	assert.True(t, msg.Wait.NoHang())
	assert.Equal(t, 5, msg.Wait.PID)

	msg = Classify(json.RawMessage(`{"command":"wait","id":"a","pid":5,"options":2}`), "vim")
	assert.False(t, msg.Wait.NoHang())
}

func TestParseExitCode(t *testing.T) {
	cases := map[string]int{
		"exited:0":     0,
		"exited:3":     3,
		"exited:-1":    -1,
		"exited: 42":   42,
		"exited:12abc": 12,
		"exited:abc":   0,
		"exited":       0,
		"exited:":      0,
		"exited:1:2":   1,
		"exited:-":     0,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseExitCode(in), in)
	}
}

func TestRequestIDNormalization(t *testing.T) {
	var req WaitRequest
	require.NoError(t, json.Unmarshal([]byte(`{"id":12}`), &req))
	assert.Equal(t, RequestID("12"), req.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"x-1"}`), &req))
	assert.Equal(t, RequestID("x-1"), req.ID)

	var nullID WaitRequest
	require.NoError(t, json.Unmarshal([]byte(`{"id":null}`), &nullID))
	assert.Equal(t, RequestID(""), nullID.ID)

	var bad WaitRequest
	assert.Error(t, json.Unmarshal([]byte(`{"id":[1]}`), &bad))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "spawn", KindSpawn.String())
	assert.Equal(t, "wait", KindWait.String())
	assert.Equal(t, "setfg", KindSetForeground.String())
	assert.Equal(t, "output", KindOutput.String())
	assert.Equal(t, "exit", KindExit.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}
