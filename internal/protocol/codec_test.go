package protocol

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLine(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{
			name: "spawn reply",
			v:    Envelope("7", PIDReply(3)),
			want: `{"7":{"pid":3}}` + "\n",
		},
		{
			name: "wait reply",
			v:    Envelope("req-1", StatusReply(3, 0)),
			want: `{"req-1":{"pid":3,"status":0}}` + "\n",
		},
		{
			name: "errno reply",
			v:    Envelope("9", ErrnoReply(ECHILD)),
			want: `{"9":{"pid":-10}}` + "\n",
		},
		{
			name: "resize",
			v:    ResizeMessage(80, 24),
			want: `{"tty_resize":[80,24]}` + "\n",
		},
		{
			name: "keystroke",
			v:    KeystrokeMessage("vim", "i"),
			want: `{"vim":"i"}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, EncodeLine(&buf, tt.v))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestEncodeLineUnsupportedValue(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeLine(&buf, map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestLineReader(t *testing.T) {
	input := strings.Join([]string{
		`{"command":"wait","id":1,"pid":-1,"options":0}`,
		``,
		`"vimhello"`,
		`not json at all`,
	}, "\n")

	r := NewLineReader(strings.NewReader(input))

	first, err := r.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"wait","id":1,"pid":-1,"options":0}`, string(first))

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, `"vimhello"`, string(second))

	third, err := r.Next()
	require.NoError(t, err)
	var s string
	require.NoError(t, json.Unmarshal(third, &s))
	assert.Equal(t, "not json at all", s)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}
