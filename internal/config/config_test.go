package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	conf, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":4242", conf.ListenAddr)
	assert.Equal(t, "./data", conf.DataPath)
	assert.Equal(t, 2048, conf.KeyBits)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: \":9000\"\ndataPath: /var/lib/reviewd\nkeyBits: 512\ndebug: true\n"), 0o600))

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", conf.ListenAddr)
	assert.Equal(t, "/var/lib/reviewd", conf.DataPath)
	assert.Equal(t, 512, conf.KeyBits)
	assert.True(t, conf.Debug)
}

func TestLoad_BadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: [\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
