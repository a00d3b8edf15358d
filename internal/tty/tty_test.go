package tty

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterAutoCR(t *testing.T) {
	var buf bytes.Buffer
	d := NewWriter(&buf, true)
	d.Print("a\nb\r\nc")
	d.Print("\n")
	assert.Equal(t, "a\r\nb\r\nc\r\n", buf.String())

	buf.Reset()
	NewWriter(&buf, false).Print("x\n")
	assert.Equal(t, "x\n", buf.String())
}

func TestMulti(t *testing.T) {
	var a, b bytes.Buffer
	Multi{NewWriter(&a, false), NewWriter(&b, false)}.Print("hi")
	assert.Equal(t, "hi", a.String())
	assert.Equal(t, "hi", b.String())
}

func TestBroadcastScrollback(t *testing.T) {
	b := NewBroadcast(5)
	b.Print("abc")
	b.Print("defg")
	assert.Equal(t, "cdefg", b.Scrollback())
}

func TestBroadcastAttach(t *testing.T) {
	b := NewBroadcast(0)
	b.Print("before ")

	replay, ch, detach := b.Attach()
	assert.Equal(t, "before ", replay)

	b.Print("after")
	assert.Equal(t, "after", <-ch)

	detach()
	_, ok := <-ch
	assert.False(t, ok)
	detach()
	b.Print("ignored by detached client")
}
