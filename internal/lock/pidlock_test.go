package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquirePIDLockWritesPID(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "state", "unitd.lock")
	l, err := AcquirePIDLock(lockPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Release() })

	b, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(b)))
	assert.Equal(t, lockPath, l.Path())
}

func TestSecondAcquireFails(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "unitd.lock")
	l, err := AcquirePIDLock(lockPath)
	require.NoError(t, err)

	// flock locks belong to the open file description, so a second open in
	// the same process conflicts too.
	_, err = AcquirePIDLock(lockPath)
	assert.ErrorIs(t, err, ErrHeld)

	pid, err := Holder(lockPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, l.Release())
	require.NoError(t, l.Release())

	pid, err = Holder(lockPath)
	require.NoError(t, err)
	assert.Zero(t, pid)
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "unitd.lock"), PathFor(filepath.Join("data", "unitd.db")))
}

func TestAcquireEmptyPath(t *testing.T) {
	_, err := AcquirePIDLock("")
	assert.Error(t, err)
}
