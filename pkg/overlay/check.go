package overlay

import (
	"context"
	"path/filepath"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/fmtools/fmsys/pkg/repo"
)

// CheckOverlay verifies an overlay. Without autofix nothing changes and
// the violations are returned as ErrOverlayCheck errors joined together;
// structural problems stop the check early, content problems are collected
// per package. With autofix the overlay is converged instead. A transient
// overlay left without any enabled package is removed entirely.
func (m *Manager) CheckOverlay(ctx context.Context, name string, checkContent, autofix bool) error {
	o, err := m.checkFragment(name, autofix)
	if err != nil {
		return err
	}
	if err := m.checkDirs(ctx, o, autofix); err != nil {
		return err
	}
	if err := m.checkRepoName(o, autofix); err != nil {
		return err
	}
	if owner := m.repoNameOwner(o.Name, o.RepoName); owner != "" {
		// which of the two should give way is for the administrator to decide
		return errors.Newf(errors.ErrOverlayCheck, "overlay %s: repo-name %s is also used by %s", o.Name, o.RepoName, owner)
	}
	if !checkContent || o.Variant != Transient {
		return nil
	}
	return m.checkContent(o, autofix)
}

func (m *Manager) checkFragment(name string, autofix bool) (*Overlay, error) {
	path := m.paths.OverlayFragmentPath(name)
	o, err := m.Get(name)
	if errors.IsErrorCode(err, errors.ErrNotFound) {
		return nil, errors.Newf(errors.ErrOverlayCheck, "overlay %s: config file %s does not exist", name, path)
	}
	if err != nil {
		// a fragment too broken to tell the variant and source cannot be
		// rebuilt
		return nil, err
	}

	want := *o
	want.Priority = m.cfg.Overlays.Priority
	want.Location = m.paths.SysOverlayDir(name)
	if !want.Variant.Synced() {
		want.SyncType, want.SyncURI = "", ""
	} else if !validVCS(want.SyncType) || want.SyncURI == "" {
		return nil, errors.Newf(errors.ErrOverlayCheck, "overlay %s: %s needs a valid sync-type and sync-uri", name, path)
	}

	content, _ := filesystem.ReadFile(m.fs, path)
	if string(content) == Fragment(&want) {
		return o, nil
	}
	if !autofix {
		return nil, errors.Newf(errors.ErrOverlayCheck, "overlay %s: config file %s has invalid content", name, path)
	}
	logger := logging.GetLogger("overlay")
	logger.Info().Str("overlay", name).Msg("rewriting fragment")
	if err := m.writeFragment(&want); err != nil {
		return nil, err
	}
	return &want, nil
}

func (m *Manager) checkDirs(ctx context.Context, o *Overlay, autofix bool) error {
	live := m.Dir(o.Name)

	switch o.Variant {
	case Static:
		if filesystem.IsDir(m.fs, live) {
			return nil
		}
		if !autofix {
			return errors.Newf(errors.ErrOverlayCheck, "overlay %s: directory %s does not exist", o.Name, live)
		}
		if filesystem.Exists(m.fs, live) {
			if err := m.fs.Remove(live); err != nil {
				return errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", live)
			}
		}
		return m.ensureSkeleton(o.Name)

	case Trusted, Transient:
		src := m.SourceDir(o)
		if violation := m.sourceViolation(ctx, o, src); violation != nil {
			if !autofix {
				return violation
			}
			logger := logging.GetLogger("overlay")
			logger.Info().Err(violation).Msg("recreating overlay source")
			if err := m.materialiseSource(ctx, o); err != nil {
				return err
			}
			if o.Variant == Transient {
				if _, err := m.Refresh(o.Name); err != nil {
					return err
				}
			}
		}
		if o.Variant == Transient && !filesystem.IsDir(m.fs, live) {
			if !autofix {
				return errors.Newf(errors.ErrOverlayCheck, "overlay %s: directory %s does not exist", o.Name, live)
			}
			_ = m.fs.Remove(live)
			if _, err := m.Refresh(o.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) sourceViolation(ctx context.Context, o *Overlay, dir string) error {
	info, err := m.fs.Lstat(dir)
	if err != nil {
		return errors.Newf(errors.ErrOverlayCheck, "overlay %s: directory %s does not exist", o.Name, dir)
	}
	if !info.IsDir() {
		return errors.Newf(errors.ErrOverlayCheck, "overlay %s: %s is not a directory", o.Name, dir)
	}
	remote, err := m.vcsRemote(ctx, o.SyncType, dir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrOverlayCheck, "overlay %s: cannot read remote of %s", o.Name, dir)
	}
	if remote != o.SyncURI {
		return errors.Newf(errors.ErrOverlayCheck, "overlay %s: remote is %s instead of %s", o.Name, remote, o.SyncURI)
	}
	return nil
}

func (m *Manager) checkRepoName(o *Overlay, autofix bool) error {
	actual := repo.RepoName(m.fs, m.Dir(o.Name))
	if actual == "" {
		return errors.Newf(errors.ErrOverlayCheck, "overlay %s: cannot determine repo-name of %s", o.Name, m.Dir(o.Name))
	}
	if actual == o.RepoName {
		return nil
	}
	if !autofix {
		return errors.Newf(errors.ErrOverlayCheck, "overlay %s: repo-name is %s but the config file declares %s", o.Name, actual, o.RepoName)
	}
	o.RepoName = actual
	return m.writeFragment(o)
}

// checkContent compares every enabled package of a transient overlay with
// its files checkout
func (m *Manager) checkContent(o *Overlay, autofix bool) error {
	live, files := m.Dir(o.Name), m.FilesDir(o.Name)
	logger := logging.GetLogger("overlay")

	pkgs, err := LivePackages(m.fs, live)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot read %s", live)
	}
	provided, err := m.repoPackages()
	if err != nil {
		return err
	}

	var errs []error
	remaining := 0
	for _, pkg := range pkgs {
		dst, src := filepath.Join(live, pkg), filepath.Join(files, pkg)

		if r, ok := provided[pkg]; ok {
			if !autofix {
				errs = append(errs, errors.Newf(errors.ErrOverlayCheck, "overlay %s: package %s is also provided by repository %s", o.Name, pkg, r))
				remaining++
				continue
			}
			logger.Info().Str("overlay", o.Name).Str("package", pkg).Msg("removing package duplicated by repository")
			if err := m.dropPackage(live, pkg); err != nil {
				return err
			}
			continue
		}

		if !filesystem.IsDir(m.fs, src) {
			if !autofix {
				errs = append(errs, errors.Newf(errors.ErrOverlayCheck, "overlay %s: package %s no longer exists upstream", o.Name, pkg))
				remaining++
				continue
			}
			logger.Info().Str("overlay", o.Name).Str("package", pkg).Msg("removing package vanished upstream")
			if err := m.dropPackage(live, pkg); err != nil {
				return err
			}
			continue
		}

		remaining++
		same, err := filesystem.SameTree(m.fs, src, dst)
		if err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot compare %s", pkg)
		}
		if same {
			continue
		}
		if !autofix {
			errs = append(errs, errors.Newf(errors.ErrOverlayCheck, "overlay %s: package %s differs from upstream", o.Name, pkg))
			continue
		}
		if err := filesystem.CopyTree(m.fs, src, dst); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot copy %s", pkg)
		}
	}

	cats, err := filesystem.SubDirs(m.fs, live)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot read %s", live)
	}
	for _, c := range cats {
		if !isCategory(c) || !filesystem.IsEmptyDir(m.fs, filepath.Join(live, c)) {
			continue
		}
		if !autofix {
			errs = append(errs, errors.Newf(errors.ErrOverlayCheck, "overlay %s: category %s is empty", o.Name, c))
			continue
		}
		if _, err := filesystem.RemoveIfEmpty(m.fs, filepath.Join(live, c)); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", c)
		}
	}

	if remaining == 0 {
		if !autofix {
			errs = append(errs, errors.Newf(errors.ErrOverlayCheck, "overlay %s has no enabled package", o.Name))
		} else {
			logger.Info().Str("overlay", o.Name).Msg("removing overlay without enabled packages")
			return m.RemoveOverlay(o.Name)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) dropPackage(live, pkg string) error {
	if err := m.fs.RemoveAll(filepath.Join(live, pkg)); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", pkg)
	}
	if _, err := filesystem.RemoveIfEmpty(m.fs, categoryOf(live, pkg)); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot remove category of %s", pkg)
	}
	return nil
}

// CheckAll checks every overlay, each one independently
func (m *Manager) CheckAll(ctx context.Context, checkContent, autofix bool) []error {
	names, err := m.List()
	if err != nil {
		return []error{err}
	}
	var errs []error
	for _, n := range names {
		errs = append(errs, errors.Split(m.CheckOverlay(ctx, n, checkContent, autofix))...)
	}
	return errs
}
