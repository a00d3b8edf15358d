package inspect

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/unitd/internal/journal"
	"github.com/mattjoyce/unitd/internal/storage"
)

func seededStore(t *testing.T) *journal.Store {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "unitd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := journal.NewStore(db)
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.BeginSession(ctx, "sess", "bash", at))
	require.NoError(t, s.Spawned(ctx, "sess", 1, 0, "bash", "", at))
	require.NoError(t, s.Spawned(ctx, "sess", 2, 1, "make", "blake3:aa", at.Add(time.Second)))
	require.NoError(t, s.Spawned(ctx, "sess", 3, 2, "cc", "", at.Add(2*time.Second)))
	require.NoError(t, s.Spawned(ctx, "sess", 4, 2, "ld", "", at.Add(3*time.Second)))
	require.NoError(t, s.Exited(ctx, "sess", 3, 0, false, at.Add(2500*time.Millisecond)))
	require.NoError(t, s.LoadFailed(ctx, "sess", 4, "No such file or directory", at.Add(3*time.Second)))
	return s
}

func TestBuildReport(t *testing.T) {
	s := seededStore(t)

	out, err := BuildReport(context.Background(), s, "sess", 2)
	require.NoError(t, err)

	assert.Contains(t, out, "PID         : 2\n")
	assert.Contains(t, out, "Manifest    : blake3:aa\n")
	assert.Contains(t, out, "Depth       : 1\n")
	assert.Contains(t, out, "  1 bash (running)\n")
	assert.Contains(t, out, "  - 3 cc (exited, status=0, ran 500ms)\n")
	assert.Contains(t, out, "  - 4 ld (load failed: No such file or directory)\n")
}

func TestBuildJSONReport(t *testing.T) {
	s := seededStore(t)

	out, err := BuildJSONReport(context.Background(), s, "sess", 3)
	require.NoError(t, err)

	var r Report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 3, r.Unit.PID)
	require.Len(t, r.Ancestors, 2)
	assert.Equal(t, 1, r.Ancestors[0].PID, "ancestors are root first")
	assert.Equal(t, 2, r.Ancestors[1].PID)
	assert.Empty(t, r.Children)
}

func TestBuildReportRoot(t *testing.T) {
	s := seededStore(t)

	out, err := BuildReport(context.Background(), s, "sess", 1)
	require.NoError(t, err)
	assert.Contains(t, out, "Ancestors\n  <none>\n")
	assert.Contains(t, out, "  - 2 make")
}

func TestBuildReportUnknownUnit(t *testing.T) {
	s := seededStore(t)

	_, err := BuildReport(context.Background(), s, "sess", 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unit 42 not found")
}
