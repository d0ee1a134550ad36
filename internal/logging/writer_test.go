package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter_WritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ragload.log")

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRotatingWriter_RotatesAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ragload.log")

	// 1MB max; write two payloads that together exceed it
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	big := strings.Repeat("x", 700*1024)
	_, err = w.Write([]byte(big))
	require.NoError(t, err)
	_, err = w.Write([]byte(big))
	require.NoError(t, err)

	// First payload rotated to .1, second lives in the fresh file
	_, err = os.Stat(path + ".1")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(big)), info.Size())
}

func TestRotatingWriter_DropsOldestBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ragload.log")

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	big := strings.Repeat("y", 700*1024)
	for i := 0; i < 5; i++ {
		_, err = w.Write([]byte(big))
		require.NoError(t, err)
	}

	// Only maxFiles backups are kept
	_, err = os.Stat(path + ".1")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".2")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}

func TestSetup_CreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log", "ragload.log")

	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path})
	require.NoError(t, err)
	defer cleanup()

	logger.Info("load_started", "documents", 3)
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "load_started")
	assert.Contains(t, string(data), `"documents":3`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warning").String())
	assert.Equal(t, "INFO", parseLevel("unknown").String())
}
