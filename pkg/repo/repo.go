// Package repo manages the fixed set of ebuild repositories fmsys knows
// about: the primary gentoo tree, mirrored over rsync, and git-hosted
// repositories cloned from a fixed URL.
//
// Each repository has a checkout under the repos dir and a repos.conf
// fragment whose content is fully determined by the repository table.
// Check is side-effect free; with autofix it recreates the repository from
// scratch instead of patching individual defects.
package repo

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fmtools/fmsys/pkg/config"
	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/execx"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/fmtools/fmsys/pkg/patch"
	"github.com/fmtools/fmsys/pkg/paths"
)

// Sync types
const (
	SyncRsync = "rsync"
	SyncGit   = "git"
)

// Repository is one entry of the repository table
type Repository struct {
	Name     string
	Priority int
	SyncType string
	// URL is empty for the primary repository, whose mirror is chosen at
	// sync time
	URL     string
	Primary bool
}

// Known is the table of managed repositories
var Known = []Repository{
	{Name: "gentoo", Priority: 5000, SyncType: SyncRsync, Primary: true},
	{Name: "guru", Priority: 5100, SyncType: SyncGit, URL: "https://github.com/gentoo/guru.git"},
}

// Manager manages the known repositories
type Manager struct {
	fs      filesystem.FS
	cfg     *config.Config
	paths   *paths.Paths
	exec    execx.Runner
	patcher *patch.Runner
	out     io.Writer
}

// NewManager creates a Manager working on checkouts through fsys
func NewManager(fsys filesystem.FS, cfg *config.Config, p *paths.Paths, runner execx.Runner, patcher *patch.Runner) *Manager {
	return &Manager{fs: fsys, cfg: cfg, paths: p, exec: runner, patcher: patcher, out: io.Discard}
}

// WithOutput returns a copy of m writing progress and command output to w
func (m *Manager) WithOutput(w io.Writer) *Manager {
	c := *m
	c.out = w
	return &c
}

// List returns the names of the known repositories in table order
func (m *Manager) List() []string {
	names := make([]string, 0, len(Known))
	for _, r := range Known {
		names = append(names, r.Name)
	}
	return names
}

// Get returns the table entry of a repository
func (m *Manager) Get(name string) (Repository, error) {
	for _, r := range Known {
		if r.Name == name {
			return r, nil
		}
	}
	return Repository{}, errors.Newf(errors.ErrNotFound, "unknown repository %s", name)
}

// Exists reports whether the repository is configured, i.e. its fragment
// exists
func (m *Manager) Exists(name string) bool {
	return filesystem.Exists(m.fs, m.FragmentPath(name))
}

// Directory returns the checkout directory of a repository
func (m *Manager) Directory(name string) string {
	return m.paths.RepoDir(name)
}

// FragmentPath returns the repos.conf fragment of a repository
func (m *Manager) FragmentPath(name string) string {
	return m.paths.RepoFragmentPath(name)
}

// Fragment renders the canonical repos.conf fragment of a repository
func (m *Manager) Fragment(r Repository) string {
	return Fragment(r.Name, r.Priority, m.paths.SysRepoDir(r.Name))
}

// Fragment renders a repos.conf fragment
func Fragment(repoName string, priority int, location string) string {
	return fmt.Sprintf("[%s]\nauto-sync = no\npriority = %d\nlocation = %s\n", repoName, priority, location)
}

// Create materialises a repository from scratch: fresh checkout, patches,
// then the fragment
func (m *Manager) Create(ctx context.Context, name string) error {
	r, err := m.Get(name)
	if err != nil {
		return err
	}
	logger := logging.GetLogger("repo")
	defer logging.LogOperationStart(logger, "create "+name)()
	dir := m.Directory(name)

	// rsync updates the primary checkout in place, so only something that
	// is not a directory is cleared first
	if !r.Primary || !filesystem.IsDir(m.fs, dir) {
		if err := m.fs.RemoveAll(dir); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", dir)
		}
	}
	if r.Primary {
		if err := m.fs.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot create %s", dir)
		}
	}

	if err := m.fetch(ctx, r, dir, false); err != nil {
		return err
	}
	if err := m.applyPatches(ctx, name, dir); err != nil {
		return err
	}

	if err := m.fs.MkdirAll(m.paths.ReposConfDir(), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot create %s", m.paths.ReposConfDir())
	}
	if err := m.fs.WriteFile(m.FragmentPath(name), []byte(m.Fragment(r)), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot write %s", m.FragmentPath(name))
	}
	logger.Info().Str("repository", name).Msg("repository created")
	return nil
}

// Sync updates an existing checkout and re-applies the patches. The
// fragment is left alone.
func (m *Manager) Sync(ctx context.Context, name string) error {
	r, err := m.Get(name)
	if err != nil {
		return err
	}
	dir := m.Directory(name)
	if !filesystem.IsDir(m.fs, dir) {
		return errors.Newf(errors.ErrRepositoryCheck, "repository directory %s does not exist", dir)
	}
	defer logging.LogOperationStart(logging.GetLogger("repo"), "sync "+name)()

	if err := m.fetch(ctx, r, dir, true); err != nil {
		return err
	}
	return m.applyPatches(ctx, name, dir)
}

func (m *Manager) fetch(ctx context.Context, r Repository, dir string, update bool) error {
	_, _ = fmt.Fprintf(m.out, "Syncing repository %s\n", r.Name)

	var cmds []execx.Cmd
	switch r.SyncType {
	case SyncRsync:
		args, err := execx.Split(m.cfg.Mirror.RsyncArgs)
		if err != nil {
			return err
		}
		mirror := strings.TrimSuffix(SelectMirror(m.fs, m.paths, m.cfg.Mirror.Default), "/")
		args = append(args, mirror+"/", dir+"/")
		cmds = append(cmds, execx.Command("rsync", args...))
	case SyncGit:
		if update {
			cmds = append(cmds,
				execx.Command("git", "-C", dir, "reset", "--hard", "-q"),
				execx.Command("git", "-C", dir, "clean", "-fdq"),
				execx.Command("git", "-C", dir, "pull", "-q"))
		} else {
			cmds = append(cmds, execx.Command("git", "clone", "-q", r.URL, dir))
		}
	default:
		return errors.Newf(errors.ErrInternal, "repository %s has unknown sync type %s", r.Name, r.SyncType)
	}

	for _, c := range cmds {
		out, err := m.exec.Run(ctx, c)
		_, _ = m.out.Write(out)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) applyPatches(ctx context.Context, name, dir string) error {
	res, err := m.patcher.Apply(ctx, dir, m.paths.PatchTrees(name)...)
	if res != nil {
		for _, s := range res.Outdated {
			_, _ = fmt.Fprintf(m.out, "WARNING: patch %s for %s is outdated\n", s, name)
		}
	}
	return err
}

// Check verifies the fragment and checkout of a repository. Without
// autofix the first violation is returned as an ErrRepositoryCheck error;
// with autofix any violation makes the repository be created again.
func (m *Manager) Check(ctx context.Context, name string, autofix bool) error {
	r, err := m.Get(name)
	if err != nil {
		return err
	}

	violation := m.verify(ctx, r)
	if violation == nil {
		return nil
	}
	if !autofix {
		return violation
	}
	logger := logging.GetLogger("repo")
	logger.Info().Err(violation).Str("repository", name).Msg("recreating repository")
	return m.Create(ctx, name)
}

func (m *Manager) verify(ctx context.Context, r Repository) error {
	fragment := m.FragmentPath(r.Name)
	content, err := filesystem.ReadFile(m.fs, fragment)
	if err != nil {
		return errors.Newf(errors.ErrRepositoryCheck, "repository %s: config file %s does not exist", r.Name, fragment)
	}
	if string(content) != m.Fragment(r) {
		return errors.Newf(errors.ErrRepositoryCheck, "repository %s: config file %s has invalid content", r.Name, fragment)
	}

	dir := m.Directory(r.Name)
	info, err := m.fs.Lstat(dir)
	if err != nil {
		return errors.Newf(errors.ErrRepositoryCheck, "repository %s: directory %s does not exist", r.Name, dir)
	}
	if !info.IsDir() {
		return errors.Newf(errors.ErrRepositoryCheck, "repository %s: %s is not a directory", r.Name, dir)
	}

	if r.SyncType == SyncGit {
		url, err := GitRemote(ctx, m.exec, dir)
		if err != nil {
			return errors.Wrapf(err, errors.ErrRepositoryCheck, "repository %s: cannot read remote of %s", r.Name, dir)
		}
		if url != r.URL {
			return errors.Newf(errors.ErrRepositoryCheck, "repository %s: remote is %s instead of %s", r.Name, url, r.URL)
		}
	}
	return nil
}

// GitRemote returns the origin URL of a git checkout
func GitRemote(ctx context.Context, runner execx.Runner, dir string) (string, error) {
	out, err := runner.Run(ctx, execx.Command("git", "-C", dir, "config", "--get", "remote.origin.url"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// CheckAll checks every repository and returns the violations found. Each
// repository is checked even when another one failed.
func (m *Manager) CheckAll(ctx context.Context, autofix bool) []error {
	var errs []error
	for _, name := range m.List() {
		if err := m.Check(ctx, name, autofix); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
