package load

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

func TestDirLock_AcquireRelease(t *testing.T) {
	dir := t.TempDir()

	lock := NewDirLock(dir)
	require.NoError(t, lock.TryLock())
	assert.FileExists(t, filepath.Join(dir, ".load.lock"))
	require.NoError(t, lock.Unlock())

	// Reacquirable after release.
	require.NoError(t, lock.TryLock())
	require.NoError(t, lock.Unlock())
}

func TestDirLock_SecondLoaderRejected(t *testing.T) {
	dir := t.TempDir()

	first := NewDirLock(dir)
	require.NoError(t, first.TryLock())
	defer first.Unlock()

	second := NewDirLock(dir)
	err := second.TryLock()
	require.Error(t, err)
	assert.ErrorIs(t, err, ragerr.New(ragerr.ErrCodeStoreLocked, "", nil))

	// Released lock can be picked up by the other loader.
	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestDirLock_UnlockWithoutLock(t *testing.T) {
	lock := NewDirLock(t.TempDir())
	assert.NoError(t, lock.Unlock())
}

func TestDirLock_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "nested")

	lock := NewDirLock(dir)
	require.NoError(t, lock.TryLock())
	require.NoError(t, lock.Unlock())
}
