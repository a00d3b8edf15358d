package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	b strings.Builder
}

func (r *recorder) Print(s string) { r.b.WriteString(s) }

func TestMuxBuffersUntilReady(t *testing.T) {
	rec := &recorder{}
	m := NewMux(rec)

	m.Write(1, "a")
	m.Write(1, "b")
	assert.Empty(t, rec.b.String())
	assert.Equal(t, 2, m.Buffered(1))

	m.MarkReady(1)
	m.Write(1, "c")
	m.Write(1, "d")
	assert.Equal(t, "abcd", rec.b.String())
	assert.Zero(t, m.Buffered(1))
}

func TestMuxBuffersPerUnit(t *testing.T) {
	rec := &recorder{}
	m := NewMux(rec)

	m.MarkReady(1)
	m.Write(2, "child-early ")
	m.Write(1, "root ")
	assert.Equal(t, "root ", rec.b.String())

	m.MarkReady(2)
	assert.Equal(t, "root child-early ", rec.b.String())
}

func TestMuxForgetDiscards(t *testing.T) {
	rec := &recorder{}
	m := NewMux(rec)

	m.Write(3, "lost")
	m.Forget(3)
	m.MarkReady(3)
	assert.Empty(t, rec.b.String())

	m.Write(3, "")
	m.Print("status\n")
	assert.Equal(t, "status\n", rec.b.String())
}
