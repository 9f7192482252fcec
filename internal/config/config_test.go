package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfig, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cipherstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: data/records.db
listen: 0.0.0.0:9000
identity: /etc/cipherstore/id.key
log_level: debug
use_keyring: false
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data/records.db"), cfg.Database)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "/etc/cipherstore/id.key", cfg.Identity)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.False(t, cfg.UseKeyring)
}

func TestLoadFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 127.0.0.1:1\n"), 0600))
	t.Setenv(EnvConfig, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1", cfg.Listen)
	assert.Equal(t, DefaultIdentity, filepath.Base(cfg.Identity))
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultListen, cfg.Listen)
}

func TestLoadRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("databse: x\n"), 0600))
	_, err := Load(unknown)
	assert.Error(t, err)

	level := filepath.Join(dir, "level.yaml")
	require.NoError(t, os.WriteFile(level, []byte("log_level: loud\n"), 0600))
	_, err = Load(level)
	assert.ErrorContains(t, err, "unknown log level")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
