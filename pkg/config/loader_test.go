package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults_only", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
		require.Error(t, err, "an explicit missing file is an error")
		assert.Nil(t, cfg)

		cfg = Default()
		assert.Equal(t, "/", cfg.Paths.Root)
		assert.Equal(t, "/etc/portage", cfg.Paths.PortageConfigDir)
		assert.Equal(t, 7000, cfg.Overlays.Priority)
		assert.True(t, cfg.Cruft.PythonBytecode)
		assert.Equal(t, []string{".pyc", ".pyo"}, cfg.Cruft.BytecodeSuffixes)

		require.NotEmpty(t, cfg.PortageConfig.Dirs)
		assert.Equal(t, "package.mask", cfg.PortageConfig.Dirs[0].Name)
		assert.Equal(t, Link{Slot: "0?-base", Target: "base"}, cfg.PortageConfig.Dirs[0].Links[0])
	})

	t.Run("file_overrides_defaults", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "fmsys.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
[paths]
root = "/mnt/gentoo"

[overlays]
priority = 8000

[patch]
manifest_jobs = 4
`), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/mnt/gentoo", cfg.Paths.Root)
		assert.Equal(t, 8000, cfg.Overlays.Priority)
		assert.Equal(t, 4, cfg.Patch.ManifestJobs)
		assert.Equal(t, "/var/db/repos", cfg.Paths.ReposDir)
	})

	t.Run("env_overrides_file", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "fmsys.toml")
		require.NoError(t, os.WriteFile(path, []byte("[paths]\nroot = \"/mnt/a\"\n"), 0644))
		t.Setenv("FMSYS_PATHS__ROOT", "/mnt/b")
		t.Setenv("FMSYS_LOCALE__LANG", "de_DE.UTF-8")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "/mnt/b", cfg.Paths.Root)
		assert.Equal(t, "de_DE.UTF-8", cfg.Locale.Lang)
	})

	t.Run("relative_path_rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fmsys.toml")
		require.NoError(t, os.WriteFile(path, []byte("[paths]\nrepos_dir = \"var/db/repos\"\n"), 0644))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be absolute")
	})
}

func TestGenerateConfig(t *testing.T) {
	out, err := GenerateConfig(Default())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# fmsys configuration"))
	assert.Contains(t, out, "portage_config_dir = '/etc/portage'")
	assert.Contains(t, out, "[overlays]")

	// The generated file must load back to the same configuration
	path := filepath.Join(t.TempDir(), "fmsys.toml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Paths, cfg.Paths)
}
