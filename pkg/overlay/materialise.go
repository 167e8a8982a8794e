package overlay

import (
	"bufio"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/fmtools/fmsys/pkg/repo"
)

// RemovedManifest records the packages dropped from an overlay checkout
// because a repository already provides them
const RemovedManifest = "packages.removed"

// fixup is a literal substitution applied to a live transient overlay
type fixup struct {
	file string
	old  string
	new  string
}

// fixups holds known breakages of specific upstream overlays that are
// corrected after every refresh
var fixups = map[string][]fixup{
	"gentoo-zh": {
		{file: "metadata/layout.conf", old: "masters = gentoo guru", new: "masters = gentoo"},
	},
	"steam-overlay": {
		{file: "metadata/layout.conf", old: "thin-manifests = true", new: "thin-manifests = false"},
	},
	"vmware": {
		{file: "profiles/repo_name", old: "vmware-overlay", new: "vmware"},
	},
}

// LivePackages returns the category/package directories of a live
// overlay, whether or not they still hold an ebuild
func LivePackages(fsys filesystem.FS, dir string) ([]string, error) {
	cats, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, cat := range cats {
		if !cat.IsDir() || !isCategory(cat.Name()) {
			continue
		}
		pkgs, err := filesystem.SubDirs(fsys, filepath.Join(dir, cat.Name()))
		if err != nil {
			return nil, err
		}
		for _, p := range pkgs {
			out = append(out, cat.Name()+"/"+p)
		}
	}
	sort.Strings(out)
	return out, nil
}

func isCategory(name string) bool {
	switch name {
	case "profiles", "metadata", "eclass", "licenses", "scripts":
		return false
	}
	return !strings.HasPrefix(name, ".")
}

// Refresh recomputes the live tree of a transient overlay from its files
// checkout. The enabled package set is the set of packages currently in
// the live tree; packages that vanished upstream are dropped and returned.
func (m *Manager) Refresh(name string) ([]string, error) {
	live, files := m.Dir(name), m.FilesDir(name)
	if !filesystem.IsDir(m.fs, files) {
		return nil, errors.Newf(errors.ErrOverlayCheck, "overlay %s: files directory %s does not exist", name, files)
	}
	if err := m.fs.MkdirAll(live, 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "cannot create %s", live)
	}
	logger := logging.GetLogger("overlay")

	enabled, err := LivePackages(m.fs, live)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "cannot read %s", live)
	}

	if err := m.recreate(live, files, "profiles", map[string]string{"repo_name": name + "\n"}); err != nil {
		return nil, err
	}
	if err := m.recreate(live, files, "metadata", map[string]string{"layout.conf": "masters = gentoo\n"}); err != nil {
		return nil, err
	}
	if err := m.recreate(live, files, "eclass", nil); err != nil {
		return nil, err
	}

	var vanished []string
	for _, pkg := range enabled {
		src, dst := filepath.Join(files, pkg), filepath.Join(live, pkg)
		if !filesystem.IsDir(m.fs, src) {
			logger.Info().Str("overlay", name).Str("package", pkg).Msg("package vanished upstream")
			if err := m.fs.RemoveAll(dst); err != nil {
				return vanished, errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", dst)
			}
			vanished = append(vanished, pkg)
			continue
		}
		if err := filesystem.CopyTree(m.fs, src, dst); err != nil {
			return vanished, errors.Wrapf(err, errors.ErrInternal, "cannot copy %s", pkg)
		}
	}

	if err := m.pruneCategories(live); err != nil {
		return vanished, err
	}
	return vanished, m.applyFixups(name, live)
}

// recreate wipes live/sub and copies it from files/sub. When upstream has
// no such directory, the defaults are written instead; nil defaults leave
// the directory absent.
func (m *Manager) recreate(live, files, sub string, defaults map[string]string) error {
	dst := filepath.Join(live, sub)
	if err := m.fs.RemoveAll(dst); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", dst)
	}
	if src := filepath.Join(files, sub); filesystem.IsDir(m.fs, src) {
		if err := filesystem.CopyTree(m.fs, src, dst); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot copy %s", src)
		}
		return nil
	}
	if defaults == nil {
		return nil
	}
	if err := m.fs.MkdirAll(dst, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot create %s", dst)
	}
	for f, content := range defaults {
		if err := m.fs.WriteFile(filepath.Join(dst, f), []byte(content), 0644); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot write %s", f)
		}
	}
	return nil
}

func (m *Manager) pruneCategories(live string) error {
	cats, err := filesystem.SubDirs(m.fs, live)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot read %s", live)
	}
	for _, c := range cats {
		if !isCategory(c) {
			continue
		}
		if _, err := filesystem.RemoveIfEmpty(m.fs, filepath.Join(live, c)); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", c)
		}
	}
	return nil
}

func (m *Manager) applyFixups(name, live string) error {
	for _, f := range fixups[name] {
		path := filepath.Join(live, f.file)
		data, err := filesystem.ReadFile(m.fs, path)
		if err != nil {
			continue
		}
		fixed := strings.ReplaceAll(string(data), f.old, f.new)
		if fixed == string(data) {
			continue
		}
		if err := m.fs.WriteFile(path, []byte(fixed), 0644); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot fix %s", path)
		}
	}
	return nil
}

// removeDuplicatePackages deletes from dir every package a repository
// already provides and appends it to the removal record
func (m *Manager) removeDuplicatePackages(name, dir string) ([]string, error) {
	provided, err := m.repoPackages()
	if err != nil {
		return nil, err
	}
	pkgs, err := repo.EbuildDirs(m.fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "cannot scan %s", dir)
	}

	var removed []string
	for pkg := range pkgs {
		if _, ok := provided[pkg]; ok {
			removed = append(removed, pkg)
		}
	}
	sort.Strings(removed)
	if len(removed) == 0 {
		return nil, nil
	}

	logger := logging.GetLogger("overlay")
	for _, pkg := range removed {
		logger.Info().Str("overlay", name).Str("package", pkg).Str("repository", provided[pkg]).
			Msg("removing package duplicated by repository")
		if err := m.fs.RemoveAll(filepath.Join(dir, pkg)); err != nil {
			return nil, errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", pkg)
		}
		if _, err := filesystem.RemoveIfEmpty(m.fs, categoryOf(dir, pkg)); err != nil {
			return nil, errors.Wrapf(err, errors.ErrInternal, "cannot remove category of %s", pkg)
		}
	}
	return removed, m.recordRemoved(dir, removed)
}

// recordRemoved merges pkgs into the removal record of dir
func (m *Manager) recordRemoved(dir string, pkgs []string) error {
	path := filepath.Join(dir, RemovedManifest)
	all := map[string]bool{}
	for _, p := range ReadRemoved(m.fs, dir) {
		all[p] = true
	}
	for _, p := range pkgs {
		all[p] = true
	}
	lines := make([]string, 0, len(all))
	for p := range all {
		lines = append(lines, p)
	}
	sort.Strings(lines)
	if err := m.fs.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot write %s", path)
	}
	return nil
}

// ReadRemoved returns the packages recorded as removed from dir
func ReadRemoved(fsys filesystem.FS, dir string) []string {
	f, err := fsys.Open(filepath.Join(dir, RemovedManifest))
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out
}
