package paths

import (
	"path/filepath"
	"testing"

	"github.com/fmtools/fmsys/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestPaths(t *testing.T) {
	cfg := config.Default().Paths

	t.Run("system_root", func(t *testing.T) {
		p := New(cfg)
		assert.Equal(t, "/etc/portage/repos.conf/repo-gentoo.conf", p.RepoFragmentPath("gentoo"))
		assert.Equal(t, "/var/db/repos/guru", p.RepoDir("guru"))
		assert.Equal(t, "/etc/portage/repos.conf/overlay-foo.conf", p.OverlayFragmentPath("foo"))
		assert.Equal(t, "/var/cache/fmsys/overlay-files/foo", p.OverlayFilesDir("foo"))
		assert.Equal(t, "/proc/self/mounts", p.Proc("self", "mounts"))
		assert.Equal(t, "/etc/passwd", p.Unroot("/etc/passwd"))
	})

	t.Run("prefixed_root", func(t *testing.T) {
		root := t.TempDir()
		c := cfg
		c.Root = root
		p := New(c)

		assert.Equal(t, filepath.Join(root, "var/db/overlays/foo"), p.OverlayDir("foo"))
		assert.Equal(t, "/var/db/overlays/foo", p.SysOverlayDir("foo"))
		assert.Equal(t, "/usr/share/fmsys/portage/package.use", p.DataTemplateDir("package.use"))
		assert.Equal(t, "/var/db/pkg/x", p.Unroot(filepath.Join(root, "var/db/pkg/x")))
		assert.Equal(t, "/elsewhere", p.Unroot("/elsewhere"))
		assert.Equal(t, []string{
			filepath.Join(root, "usr/share/fmsys/patches/gentoo-n-patch"),
			filepath.Join(root, "usr/share/fmsys/patches/gentoo-s-patch"),
		}, p.PatchTrees("gentoo"))
	})
}
