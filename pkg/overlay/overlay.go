// Package overlay manages user-added ebuild overlays.
//
// An overlay comes in one of three variants:
//
//   - static: a hand-authored directory, never synced
//   - trusted: a VCS checkout used as-is
//   - transient: a VCS checkout kept in the overlay files cache, from which
//     the live overlay directory is derived. Only packages explicitly
//     enabled are copied into the live tree.
//
// Every overlay has a repos.conf fragment named overlay-<name>.conf that
// declares its repo-name, priority, location, variant and sync source.
// The live tree of a transient overlay is always recomputed from the files
// checkout and the enabled package set, never patched incrementally.
package overlay

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fmtools/fmsys/pkg/config"
	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/execx"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/patch"
	"github.com/fmtools/fmsys/pkg/paths"
	"github.com/fmtools/fmsys/pkg/repo"
	"gopkg.in/ini.v1"
)

// Variant of an overlay
type Variant string

const (
	Static    Variant = "static"
	Trusted   Variant = "trusted"
	Transient Variant = "transient"
)

// Valid reports whether v is a known variant
func (v Variant) Valid() bool {
	switch v {
	case Static, Trusted, Transient:
		return true
	}
	return false
}

// Synced reports whether the variant has a VCS source
func (v Variant) Synced() bool {
	return v == Trusted || v == Transient
}

// Overlay is the parsed form of an overlay fragment
type Overlay struct {
	Name     string
	RepoName string
	Priority int
	// Location is the system form of the live directory
	Location string
	Variant  Variant
	SyncType string
	SyncURI  string
}

// Manager manages overlays
type Manager struct {
	fs      filesystem.FS
	cfg     *config.Config
	paths   *paths.Paths
	exec    execx.Runner
	patcher *patch.Runner
	repos   *repo.Manager
	out     io.Writer
}

// NewManager creates a Manager. repos provides the repositories overlays
// must not duplicate packages of.
func NewManager(fsys filesystem.FS, cfg *config.Config, p *paths.Paths, runner execx.Runner, patcher *patch.Runner, repos *repo.Manager) *Manager {
	return &Manager{fs: fsys, cfg: cfg, paths: p, exec: runner, patcher: patcher, repos: repos, out: io.Discard}
}

// WithOutput returns a copy of m writing progress and notices to w
func (m *Manager) WithOutput(w io.Writer) *Manager {
	c := *m
	c.out = w
	return &c
}

// List returns the names of every configured overlay, sorted
func (m *Manager) List() ([]string, error) {
	entries, err := m.fs.ReadDir(m.paths.ReposConfDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrInternal, "cannot read %s", m.paths.ReposConfDir())
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, paths.OverlayFragmentPrefix) || !strings.HasSuffix(n, paths.FragmentSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(n, paths.OverlayFragmentPrefix), paths.FragmentSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether an overlay fragment exists
func (m *Manager) Exists(name string) bool {
	return filesystem.Exists(m.fs, m.paths.OverlayFragmentPath(name))
}

// Dir returns the live directory of an overlay
func (m *Manager) Dir(name string) string {
	return m.paths.OverlayDir(name)
}

// FilesDir returns the files checkout of a transient overlay
func (m *Manager) FilesDir(name string) string {
	return m.paths.OverlayFilesDir(name)
}

// SourceDir returns the directory a synced overlay's VCS checkout lives in
func (m *Manager) SourceDir(o *Overlay) string {
	if o.Variant == Transient {
		return m.FilesDir(o.Name)
	}
	return m.Dir(o.Name)
}

// Get parses the fragment of an overlay
func (m *Manager) Get(name string) (*Overlay, error) {
	path := m.paths.OverlayFragmentPath(name)
	if !filesystem.Exists(m.fs, path) {
		return nil, errors.Newf(errors.ErrNotFound, "overlay %s does not exist", name)
	}
	data, err := filesystem.ReadFile(m.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "overlay %s: cannot read %s", name, path)
	}
	f, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrOverlayCheck, "overlay %s: cannot parse %s", name, path)
	}

	var sections []*ini.Section
	for _, s := range f.Sections() {
		if s.Name() != ini.DefaultSection {
			sections = append(sections, s)
		}
	}
	if len(sections) != 1 {
		return nil, errors.Newf(errors.ErrOverlayCheck, "overlay %s: %s must contain exactly one section", name, path)
	}
	sec := sections[0]

	o := &Overlay{
		Name:     name,
		RepoName: sec.Name(),
		Location: sec.Key("location").String(),
		Variant:  Variant(sec.Key("overlay-type").String()),
		SyncType: sec.Key("sync-type").String(),
		SyncURI:  sec.Key("sync-uri").String(),
	}
	if o.Priority, err = sec.Key("priority").Int(); err != nil {
		return o, errors.Newf(errors.ErrOverlayCheck, "overlay %s: invalid priority in %s", name, path)
	}
	if !o.Variant.Valid() {
		return o, errors.Newf(errors.ErrOverlayCheck, "overlay %s: invalid overlay-type %q", name, o.Variant)
	}
	return o, nil
}

// Fragment renders the canonical fragment of an overlay
func Fragment(o *Overlay) string {
	var b strings.Builder
	b.WriteString(repo.Fragment(o.RepoName, o.Priority, o.Location))
	fmt.Fprintf(&b, "overlay-type = %s\n", o.Variant)
	if o.Variant.Synced() {
		fmt.Fprintf(&b, "sync-type = %s\n", o.SyncType)
		fmt.Fprintf(&b, "sync-uri = %s\n", o.SyncURI)
	}
	return b.String()
}

func (m *Manager) writeFragment(o *Overlay) error {
	if err := m.fs.MkdirAll(m.paths.ReposConfDir(), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot create %s", m.paths.ReposConfDir())
	}
	path := m.paths.OverlayFragmentPath(o.Name)
	if err := m.fs.WriteFile(path, []byte(Fragment(o)), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot write %s", path)
	}
	return nil
}

// newOverlay fills the fields every overlay of this installation shares
func (m *Manager) newOverlay(name string, v Variant, vcsType, url string) *Overlay {
	return &Overlay{
		Name:     name,
		RepoName: name,
		Priority: m.cfg.Overlays.Priority,
		Location: m.paths.SysOverlayDir(name),
		Variant:  v,
		SyncType: vcsType,
		SyncURI:  url,
	}
}

// Sources returns the live directory of every overlay that has one, for
// duplicate detection
func (m *Manager) Sources() ([]repo.Source, error) {
	names, err := m.List()
	if err != nil {
		return nil, err
	}
	var out []repo.Source
	for _, n := range names {
		if d := m.Dir(n); filesystem.IsDir(m.fs, d) {
			out = append(out, repo.Source{Name: "overlay " + n, Dir: d})
		}
	}
	return out, nil
}

// repoPackages returns every package provided by a repository, mapped to
// the repository providing it
func (m *Manager) repoPackages() (map[string]string, error) {
	out := map[string]string{}
	for _, src := range m.repos.Sources() {
		dirs, err := repo.EbuildDirs(m.fs, src.Dir)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrInternal, "cannot scan repository %s", src.Name)
		}
		for pkg := range dirs {
			if _, ok := out[pkg]; !ok {
				out[pkg] = src.Name
			}
		}
	}
	return out, nil
}

func validPackage(pkg string) bool {
	parts := strings.Split(pkg, "/")
	return len(parts) == 2 && parts[0] != "" && parts[1] != "" && !strings.HasPrefix(parts[0], ".")
}

func categoryOf(dir, pkg string) string {
	return filepath.Join(dir, strings.SplitN(pkg, "/", 2)[0])
}
