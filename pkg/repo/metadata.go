package repo

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/paths"
	"github.com/google/shlex"
	"gopkg.in/ini.v1"
)

var confLoadOptions = ini.LoadOptions{
	SkipUnrecognizableLines: true,
	IgnoreInlineComment:     true,
}

// RepoName returns the repo-name of a checkout, read from
// profiles/repo_name or else metadata/layout.conf. It returns "" when
// neither declares one.
func RepoName(fsys filesystem.FS, dir string) string {
	if data, err := filesystem.ReadFile(fsys, filepath.Join(dir, "profiles", "repo_name")); err == nil {
		if line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0]); line != "" {
			return line
		}
	}

	layout, err := LoadLayout(fsys, dir)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(layout.Section("").Key("repo-name").String())
}

// LoadLayout parses metadata/layout.conf of a checkout
func LoadLayout(fsys filesystem.FS, dir string) (*ini.File, error) {
	return loadConf(fsys, filepath.Join(dir, "metadata", "layout.conf"))
}

func loadConf(fsys filesystem.FS, path string) (*ini.File, error) {
	data, err := filesystem.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	return ini.LoadSources(confLoadOptions, data)
}

// SelectMirror returns the first rsync:// entry of GENTOO_MIRRORS, taken
// from the environment or else from make.conf, falling back to def
func SelectMirror(fsys filesystem.FS, p *paths.Paths, def string) string {
	mirrors := os.Getenv("GENTOO_MIRRORS")
	if mirrors == "" {
		mirrors = makeConfValue(fsys, p, "GENTOO_MIRRORS")
	}
	words, err := shlex.Split(mirrors)
	if err != nil {
		return def
	}
	for _, w := range words {
		if strings.HasPrefix(w, "rsync://") {
			return w
		}
	}
	return def
}

// makeConfValue reads one plain variable from /etc/portage/make.conf.
// Values built from other variables are returned unexpanded.
func makeConfValue(fsys filesystem.FS, p *paths.Paths, key string) string {
	f, err := loadConf(fsys, filepath.Join(p.PortageConfigDir(), "make.conf"))
	if err != nil {
		return ""
	}
	return f.Section("").Key(key).String()
}
