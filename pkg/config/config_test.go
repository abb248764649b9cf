package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// ===== Load =====

func TestLoad_DefaultsApplied(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeConfigFile(t, tmpDir, `
listen_port: 2401
hash: md5
collections:
  - name: main
    release: rcs
    prefix: `+yamlSafePath(tmpDir)+`/main
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	require.Len(t, cfg.Collections, 1)
	assert.Equal(t, "abort", cfg.Collections[0].ErrorMode)
	assert.Equal(t, yamlSafePath(tmpDir)+"/main", cfg.Collections[0].ScanPath)
}

func TestLoad_MissingFileIsError(t *testing.T) {
	tmpDir := t.TempDir()
	_, err := Load(filepath.Join(tmpDir, "nonexistent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidConfigFailsValidation(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeConfigFile(t, tmpDir, `
listen_port: 2401
hash: md5
collections: []
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_DurationParsedFromString(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeConfigFile(t, tmpDir, `
listen_port: 2401
hash: md5
shutdown_timeout: 90s
collections:
  - name: main
    release: rcs
    prefix: `+yamlSafePath(tmpDir)+`
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.ShutdownTimeout)
}

// ===== SaveConfig =====

func TestSaveConfigRoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out", "config.yaml")

	cfg := GetDefaultConfig()
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Hash, loaded.Hash)
	assert.Equal(t, cfg.Collections[0].Name, loaded.Collections[0].Name)
}

// ===== BuildCollections =====

func TestBuildCollectionsResolvesSuper(t *testing.T) {
	entries := []CollectionConfig{
		{Name: "root", Release: "rcs", Prefix: "/srv/repo", ScanPath: "/srv/repo"},
		{Name: "child", Release: "rcs", Prefix: "sub", Super: "root", ScanPath: "/srv/repo/sub"},
	}

	built, err := BuildCollections(entries)
	require.NoError(t, err)
	require.Contains(t, built, "child")

	child := built["child"]
	require.NotNil(t, child.Super)
	assert.Equal(t, "/srv/repo/sub", child.ResolvedPrefix())
}

func TestBuildCollectionsRejectsUnknownSuper(t *testing.T) {
	entries := []CollectionConfig{
		{Name: "child", Release: "rcs", Prefix: "sub", Super: "ghost", ScanPath: "/tmp"},
	}
	_, err := BuildCollections(entries)
	assert.Error(t, err)
}

func TestBuildCollectionsRejectsDuplicateNames(t *testing.T) {
	entries := []CollectionConfig{
		{Name: "dup", Release: "rcs", Prefix: "/a", ScanPath: "/a"},
		{Name: "dup", Release: "rcs", Prefix: "/b", ScanPath: "/b"},
	}
	_, err := BuildCollections(entries)
	assert.Error(t, err)
}
