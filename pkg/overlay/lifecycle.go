package overlay

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/fmtools/fmsys/pkg/repo"
)

// AddStaticOverlay registers an existing hand-authored directory, creating
// a minimal skeleton when it is missing
func (m *Manager) AddStaticOverlay(name string) error {
	if m.Exists(name) {
		return errors.Newf(errors.ErrAlreadyExists, "overlay %s already exists", name)
	}
	o := m.newOverlay(name, Static, "", "")
	if err := m.ensureSkeleton(name); err != nil {
		return err
	}
	return m.register(o, m.Dir(name))
}

func (m *Manager) ensureSkeleton(name string) error {
	dir := m.Dir(name)
	if filesystem.IsDir(m.fs, dir) {
		return nil
	}
	skeleton := map[string]string{
		"profiles/repo_name":   name + "\n",
		"metadata/layout.conf": "masters = gentoo\n",
	}
	for f, content := range skeleton {
		path := filepath.Join(dir, f)
		if err := m.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot create %s", filepath.Dir(path))
		}
		if err := m.fs.WriteFile(path, []byte(content), 0644); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot write %s", path)
		}
	}
	return nil
}

// AddTrustedOverlay clones an overlay that is used as-is. On failure the
// partial checkout is removed.
func (m *Manager) AddTrustedOverlay(ctx context.Context, name, vcsType, url string) (err error) {
	if err := m.validateNew(name, vcsType, url); err != nil {
		return err
	}
	defer logging.LogOperationStart(logging.GetLogger("overlay"), "add trusted "+name)()

	dir := m.Dir(name)
	defer func() {
		if err != nil {
			_ = m.fs.RemoveAll(dir)
		}
	}()

	if err := m.fs.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", dir)
	}
	o := m.newOverlay(name, Trusted, vcsType, url)
	if err := m.materialiseSource(ctx, o); err != nil {
		return err
	}
	return m.register(o, dir)
}

// AddTransientOverlay clones an overlay into the files cache and derives
// an empty live overlay from it. On failure the live directory is removed;
// the files cache is kept so a retry need not clone again.
func (m *Manager) AddTransientOverlay(ctx context.Context, name, vcsType, url string) (err error) {
	if err := m.validateNew(name, vcsType, url); err != nil {
		return err
	}
	defer logging.LogOperationStart(logging.GetLogger("overlay"), "add transient "+name)()

	live := m.Dir(name)
	defer func() {
		if err != nil {
			_ = m.fs.RemoveAll(live)
		}
	}()

	o := m.newOverlay(name, Transient, vcsType, url)
	if err := m.materialiseSource(ctx, o); err != nil {
		return err
	}
	if err := m.fs.RemoveAll(live); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", live)
	}
	if _, err := m.Refresh(name); err != nil {
		return err
	}
	return m.register(o, live)
}

// register adopts the repo-name dir declares and writes the fragment. A
// repo-name some repository or other overlay already uses is refused.
func (m *Manager) register(o *Overlay, dir string) error {
	if n := repo.RepoName(m.fs, dir); n != "" {
		o.RepoName = n
	}
	if owner := m.repoNameOwner(o.Name, o.RepoName); owner != "" {
		return errors.Newf(errors.ErrAlreadyExists, "repo-name %s of overlay %s is already used by %s", o.RepoName, o.Name, owner)
	}
	return m.writeFragment(o)
}

// repoNameOwner returns the repository or overlay other than name that
// uses repoName, or ""
func (m *Manager) repoNameOwner(name, repoName string) string {
	if owner := m.repos.ClaimedBy(repoName); owner != "" {
		return "repository " + owner
	}
	names, _ := m.List()
	for _, n := range names {
		if n == name {
			continue
		}
		if o, err := m.Get(n); err == nil && o.RepoName == repoName {
			return "overlay " + n
		}
		if repo.RepoName(m.fs, m.Dir(n)) == repoName {
			return "overlay " + n
		}
	}
	return ""
}

func (m *Manager) validateNew(name, vcsType, url string) error {
	if name == "" || filepath.Base(name) != name {
		return errors.Newf(errors.ErrInvalidInput, "invalid overlay name %q", name)
	}
	if m.Exists(name) {
		return errors.Newf(errors.ErrAlreadyExists, "overlay %s already exists", name)
	}
	if !validVCS(vcsType) {
		return errors.Newf(errors.ErrInvalidInput, "unsupported vcs type %s", vcsType)
	}
	if url == "" {
		return errors.New(errors.ErrInvalidInput, "overlay url is empty")
	}
	return nil
}

// materialiseSource brings the VCS checkout of a synced overlay up to date,
// applies its patches and drops packages a repository provides. An
// existing checkout with the right remote is updated, anything else is
// cloned afresh.
func (m *Manager) materialiseSource(ctx context.Context, o *Overlay) error {
	dir := m.SourceDir(o)
	_, _ = fmt.Fprintf(m.out, "Syncing overlay %s\n", o.Name)

	if m.remoteMatches(ctx, o, dir) {
		if err := m.vcsUpdate(ctx, o.Name, o.SyncType, dir); err != nil {
			return err
		}
	} else {
		if err := m.fs.RemoveAll(dir); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", dir)
		}
		if err := m.fs.MkdirAll(filepath.Dir(dir), 0755); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot create %s", filepath.Dir(dir))
		}
		if err := m.vcsClone(ctx, o.Name, o.SyncType, o.SyncURI, dir); err != nil {
			return err
		}
	}

	res, err := m.patcher.Apply(ctx, dir, m.paths.PatchTrees(o.Name)...)
	if res != nil {
		for _, s := range res.Outdated {
			_, _ = fmt.Fprintf(m.out, "WARNING: patch %s for overlay %s is outdated\n", s, o.Name)
		}
	}
	if err != nil {
		return err
	}

	removed, err := m.removeDuplicatePackages(o.Name, dir)
	for _, pkg := range removed {
		_, _ = fmt.Fprintf(m.out, "Removed %s from overlay %s, a repository provides it\n", pkg, o.Name)
	}
	return err
}

func (m *Manager) remoteMatches(ctx context.Context, o *Overlay, dir string) bool {
	if !filesystem.IsDir(m.fs, dir) {
		return false
	}
	remote, err := m.vcsRemote(ctx, o.SyncType, dir)
	return err == nil && remote == o.SyncURI
}

// RemoveOverlay deletes the files cache, the live directory and the
// fragment. Each part may already be missing.
func (m *Manager) RemoveOverlay(name string) error {
	var errs []error
	for _, p := range []string{m.FilesDir(name), m.Dir(name), m.paths.OverlayFragmentPath(name)} {
		if err := m.fs.RemoveAll(p); err != nil {
			errs = append(errs, errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", p))
		}
	}
	logger := logging.GetLogger("overlay")
	logger.Info().Str("overlay", name).Msg("overlay removed")
	return errors.Join(errs...)
}

// SyncOverlay updates the source of an overlay and re-derives its live
// tree. An overlay whose private source cannot be reached only produces a
// notice.
func (m *Manager) SyncOverlay(ctx context.Context, name string) error {
	o, err := m.Get(name)
	if err != nil {
		return err
	}
	if !o.Variant.Synced() {
		_, _ = fmt.Fprintf(m.out, "Overlay %s is static, nothing to sync\n", name)
		return nil
	}

	err = m.materialiseSource(ctx, o)
	if err == nil && o.Variant == Transient {
		var vanished []string
		vanished, err = m.Refresh(name)
		for _, pkg := range vanished {
			_, _ = fmt.Fprintf(m.out, "Package %s vanished from overlay %s\n", pkg, name)
		}
	}
	if errors.IsErrorCode(err, errors.ErrPrivateOverlayInaccessible) {
		logger := logging.GetLogger("overlay")
		logger.Warn().Err(err).Str("overlay", name).Msg("private overlay not accessible")
		_, _ = fmt.Fprintf(m.out, "NOTICE: overlay %s is private and not accessible, skipped\n", name)
		return nil
	}
	return err
}

// EnableOverlayPackage copies one package of a transient overlay into its
// live tree
func (m *Manager) EnableOverlayPackage(name, pkg string) error {
	o, err := m.transient(name, pkg)
	if err != nil {
		return err
	}
	live, src := filepath.Join(m.Dir(o.Name), pkg), filepath.Join(m.FilesDir(o.Name), pkg)

	if filesystem.Exists(m.fs, live) {
		return errors.Newf(errors.ErrAlreadyExists, "package %s is already enabled in overlay %s", pkg, name)
	}
	if !filesystem.IsDir(m.fs, src) {
		return errors.Newf(errors.ErrNotFound, "package %s does not exist in overlay %s", pkg, name)
	}
	provided, err := m.repoPackages()
	if err != nil {
		return err
	}
	if r, ok := provided[pkg]; ok {
		return errors.Newf(errors.ErrAlreadyExists, "package %s is already provided by repository %s", pkg, r)
	}

	if err := filesystem.CopyTree(m.fs, src, live); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot copy %s", pkg)
	}
	logger := logging.GetLogger("overlay")
	logger.Info().Str("overlay", name).Str("package", pkg).Msg("package enabled")
	return nil
}

// DisableOverlayPackage removes one package from the live tree of a
// transient overlay
func (m *Manager) DisableOverlayPackage(name, pkg string) error {
	o, err := m.transient(name, pkg)
	if err != nil {
		return err
	}
	live := filepath.Join(m.Dir(o.Name), pkg)
	if !filesystem.Exists(m.fs, live) {
		return errors.Newf(errors.ErrNotFound, "package %s is not enabled in overlay %s", pkg, name)
	}
	if err := m.fs.RemoveAll(live); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", pkg)
	}
	if _, err := filesystem.RemoveIfEmpty(m.fs, categoryOf(m.Dir(o.Name), pkg)); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot remove category of %s", pkg)
	}
	logger := logging.GetLogger("overlay")
	logger.Info().Str("overlay", name).Str("package", pkg).Msg("package disabled")
	return nil
}

func (m *Manager) transient(name, pkg string) (*Overlay, error) {
	if !validPackage(pkg) {
		return nil, errors.Newf(errors.ErrInvalidInput, "invalid package name %q", pkg)
	}
	o, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	if o.Variant != Transient {
		return nil, errors.Newf(errors.ErrInvalidInput, "overlay %s is %s, only transient overlays select packages", name, o.Variant)
	}
	return o, nil
}
