package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seongho-dev/ragload/internal/config"
)

// chtemp runs the test from a temp directory so default paths
// (ragload.yaml, .ragload) stay isolated.
func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	oldDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldDir) })
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_Help(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "ragload")
	assert.Contains(t, out, "load")
	assert.Contains(t, out, "verify")
}

func TestVersionCmd_Short(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info["version"])
}

func TestInitCmd_WritesTemplate(t *testing.T) {
	chtemp(t)

	out, err := execute(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, config.DefaultConfigFile)

	data, err := os.ReadFile(config.DefaultConfigFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunking:")

	// Template values are commented out, so loading it yields defaults.
	cfg, err := config.Load(config.DefaultConfigFile)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Chunking, cfg.Chunking)
}

func TestInitCmd_RefusesOverwrite(t *testing.T) {
	chtemp(t)

	_, err := execute(t, "init")
	require.NoError(t, err)

	_, err = execute(t, "init")
	require.Error(t, err)

	_, err = execute(t, "init", "--force")
	require.NoError(t, err)
}

func TestLoadCmd_RequiresManifest(t *testing.T) {
	chtemp(t)

	_, err := execute(t, "load")
	require.Error(t, err)
}

// writeManifest writes markdown sources plus a manifest referencing them.
func writeManifest(t *testing.T, dir string) string {
	t.Helper()

	guide := filepath.Join(dir, "guide.md")
	require.NoError(t, os.WriteFile(guide, []byte(
		"# Setup\nInstall the loader and point it at your manifest.\n\n"+
			"# Usage\nRun the load command with the manifest flag to index documents.\n"), 0o644))

	manifest := filepath.Join(dir, "manifest.json")
	items := []map[string]any{
		{"files": []string{guide}, "metadata": map[string]string{"category": "docs"}},
	}
	data, err := json.Marshal(items)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifest, data, 0o644))

	return manifest
}

func TestLoadCmd_EndToEnd(t *testing.T) {
	dir := chtemp(t)
	manifest := writeManifest(t, dir)

	out, err := execute(t, "load", "--manifest", manifest, "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "guide.md")
	assert.Contains(t, out, "Loaded 1 documents")

	// The three stores exist on disk.
	assert.DirExists(t, filepath.Join(dir, ".ragload", "lexical.bleve"))
	assert.FileExists(t, filepath.Join(dir, ".ragload", "vectors.hnsw"))
	assert.FileExists(t, filepath.Join(dir, ".ragload", "documents.db"))

	// A fresh verify over the written stores passes.
	out, err = execute(t, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "consistent")
}

func TestLoadCmd_MissingSourceFails(t *testing.T) {
	dir := chtemp(t)

	manifest := filepath.Join(dir, "manifest.json")
	items := []map[string]any{
		{"files": []string{filepath.Join(dir, "nope.md")}},
	}
	data, err := json.Marshal(items)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifest, data, 0o644))

	out, err := execute(t, "load", "--manifest", manifest, "--offline")
	require.Error(t, err)
	assert.Contains(t, out, "nope.md")
}
