package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiln.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[application]
name = "Demo"
width = 1920
height = 1080

[renderer]
present_mode = "mailbox"
require_stencil = true
validation = false
log_level = "debug"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Demo", cfg.Application.Name)
	assert.Equal(t, uint32(1920), cfg.Application.Width)
	assert.Equal(t, uint32(1080), cfg.Application.Height)
	assert.Equal(t, "mailbox", cfg.Renderer.PresentMode)
	assert.True(t, cfg.Renderer.RequireStencil)
	assert.False(t, cfg.Renderer.Validation)
	assert.Equal(t, "debug", cfg.Renderer.LogLevel)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiln.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[renderer]
present_mode = "fifo"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fifo", cfg.Renderer.PresentMode)
	assert.Equal(t, Default().Application, cfg.Application)
	assert.Equal(t, Default().Renderer.LogLevel, cfg.Renderer.LogLevel)
}

func TestLoadRejectsZeroWindowSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiln.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[application]
width = 0
height = 720
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiln.toml")
	require.NoError(t, os.WriteFile(path, []byte("[application\nname="), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
