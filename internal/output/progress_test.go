package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressUpdate(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		loaded int64
		total  int64
		width  int
		want   string
	}{
		{
			name: "with total",
			url:  "http://host/pkg/vim.pexe", loaded: 512 * 1024, total: 1024 * 1024, width: 80,
			want: "\rLoading vim.pexe [512 KiB/1024 KiB 50%]",
		},
		{
			name: "unknown total",
			url:  "vim.pexe", width: 80,
			want: "\rLoading vim.pexe",
		},
		{
			name: "truncated to the last columns",
			url:  "vim.pexe", width: 6,
			want: "\rm.pexe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Progress
			assert.Equal(t, tt.want, p.Update(tt.url, tt.loaded, tt.total, tt.width))
		})
	}
}

func TestProgressURLChangeFinishesLine(t *testing.T) {
	var p Progress
	p.Update("/a/first.nmf", 1024, 2048, 10)

	got := p.Update("/a/second.pexe", 0, 0, 10)
	assert.True(t, strings.HasPrefix(got, "\r"+strings.Repeat(" ", 10)+"\rLoaded fi\n"), got)
	assert.True(t, strings.HasSuffix(got, "\rLoading second.pexe"[len("\rLoading second.pexe")-10:]), got)
	assert.Equal(t, "second.pexe", p.LastURL())
}

func TestProgressDone(t *testing.T) {
	var p Progress
	assert.Equal(t, "Loaded.\n"+ANSIReset, p.Done(80))

	p.Update("x/vim.pexe", 2048, 2048, 80)
	done := p.Done(80)
	assert.Equal(t, "\r"+strings.Repeat(" ", 80)+"\rLoaded vim.pexe [2 KiB]\n"+ANSIReset, done)
}
