// Package patch applies trees of one-shot patch scripts to a repository or
// overlay checkout.
//
// A patch tree mirrors the layout of the checkout it targets:
//
//	<tree>/eclass/<script>
//	<tree>/profiles/<sub>/<script>
//	<tree>/<category>/<package>/<script>
//
// Every script runs as its own process with the matching checkout
// directory as working directory. Its standard output decides the outcome:
// nothing means applied, exactly "outdated" means the checkout moved on and
// the script skipped itself, anything else is a failure. Standard error is
// only logged.
package patch

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fmtools/fmsys/pkg/config"
	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/execx"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/logging"
	"golang.org/x/sync/errgroup"
)

// Outdated is the output of a script that no longer applies
const Outdated = "outdated"

// Result describes one Apply run. Paths are relative to the patch tree or
// checkout.
type Result struct {
	Applied  []string
	Outdated []string
	// Removed lists packages deleted because no ebuild was left
	Removed []string
	// Manifested lists packages whose manifest was regenerated
	Manifested []string
}

// Runner applies patch trees
type Runner struct {
	fs              filesystem.FS
	exec            execx.Runner
	manifestCommand string
	jobs            int
}

// NewRunner creates a Runner
func NewRunner(fsys filesystem.FS, runner execx.Runner, cfg config.Patch) *Runner {
	return &Runner{
		fs:              fsys,
		exec:            runner,
		manifestCommand: cfg.ManifestCommand,
		jobs:            cfg.ManifestJobs,
	}
}

// Apply runs every script of every tree against checkoutDir, then
// regenerates the manifest of every package a script touched. Missing
// trees are skipped. The first failing script or manifest aborts.
func (r *Runner) Apply(ctx context.Context, checkoutDir string, trees ...string) (*Result, error) {
	logger := logging.GetLogger("patch")
	res := &Result{}
	touched := map[string]bool{}

	for _, tree := range trees {
		if !filesystem.IsDir(r.fs, tree) {
			logger.Debug().Str("tree", tree).Msg("no patch tree")
			continue
		}
		dirs, err := r.scriptDirs(tree)
		if err != nil {
			return res, errors.Wrapf(err, errors.ErrInternal, "cannot read patch tree %s", tree)
		}

		for _, rel := range dirs {
			scripts, err := r.scriptsIn(filepath.Join(tree, rel))
			if err != nil {
				return res, errors.Wrapf(err, errors.ErrInternal, "cannot read %s", rel)
			}
			target := filepath.Join(checkoutDir, rel)
			if !filesystem.IsDir(r.fs, target) {
				// the directory the scripts were written for is gone upstream
				for _, s := range scripts {
					res.Outdated = append(res.Outdated, filepath.Join(rel, s))
				}
				logger.Warn().Str("dir", rel).Msg("patch target does not exist")
				continue
			}

			for _, s := range scripts {
				relScript := filepath.Join(rel, s)
				out, err := r.exec.Run(ctx, execx.Command(filepath.Join(tree, relScript)).InDir(target).OnlyStdout())
				output := strings.TrimSpace(string(out))
				switch {
				case err != nil:
					return res, errors.Wrapf(err, errors.ErrPatchFailed, "patch script %s failed", relScript).
						WithDetail("script", relScript).
						WithDetail("output", string(out)).
						WithDetail("stderr", execx.Stderr(err))
				case output == "":
					res.Applied = append(res.Applied, relScript)
				case output == Outdated:
					logger.Warn().Str("script", relScript).Msg("patch is outdated")
					res.Outdated = append(res.Outdated, relScript)
				default:
					return res, errors.Newf(errors.ErrPatchFailed, "patch script %s failed: %s", relScript, output).
						WithDetail("script", relScript).
						WithDetail("output", output)
				}
			}
			if isPackageDir(rel) {
				touched[rel] = true
			}
		}
	}

	var manifest []string
	for _, pkg := range sortedKeys(touched) {
		pkgDir := filepath.Join(checkoutDir, pkg)
		ebuilds, err := Ebuilds(r.fs, pkgDir)
		if err != nil {
			return res, errors.Wrapf(err, errors.ErrInternal, "cannot read %s", pkg)
		}
		if len(ebuilds) > 0 {
			manifest = append(manifest, pkg)
			continue
		}
		logger.Info().Str("package", pkg).Msg("removing package left without ebuilds")
		if err := r.fs.RemoveAll(pkgDir); err != nil {
			return res, errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", pkg)
		}
		if _, err := filesystem.RemoveIfEmpty(r.fs, filepath.Dir(pkgDir)); err != nil {
			return res, errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", filepath.Dir(pkg))
		}
		res.Removed = append(res.Removed, pkg)
	}

	if err := r.regenerateManifests(ctx, checkoutDir, manifest); err != nil {
		return res, err
	}
	res.Manifested = manifest
	return res, nil
}

// regenerateManifests runs the manifest command once per package, at most
// r.jobs at a time
func (r *Runner) regenerateManifests(ctx context.Context, checkoutDir string, pkgs []string) error {
	if len(pkgs) == 0 {
		return nil
	}
	defer logging.LogOperationStart(logging.GetLogger("patch"), "manifest")()

	g, ctx := errgroup.WithContext(ctx)
	if r.jobs > 0 {
		g.SetLimit(r.jobs)
	}
	for _, pkg := range pkgs {
		pkgDir := filepath.Join(checkoutDir, pkg)
		g.Go(func() error {
			ebuilds, err := Ebuilds(r.fs, pkgDir)
			if err != nil || len(ebuilds) == 0 {
				return errors.Newf(errors.ErrInternal, "no ebuild in %s", pkg)
			}
			cmd, err := execx.Expand(r.manifestCommand, map[string]string{
				"ebuild": filepath.Join(pkgDir, ebuilds[0]),
				"dir":    pkgDir,
			})
			if err != nil {
				return err
			}
			if _, err := r.exec.Run(ctx, cmd.InDir(pkgDir)); err != nil {
				return errors.Wrapf(err, errors.ErrCommandFailed, "cannot regenerate manifest for %s", pkg)
			}
			return nil
		})
	}
	return g.Wait()
}

// scriptDirs returns the directories of a tree that directly hold scripts,
// relative to the tree, in lexical order
func (r *Runner) scriptDirs(tree string) ([]string, error) {
	dirs := map[string]bool{}
	err := filesystem.Walk(r.fs, tree, func(path string, info fs.FileInfo) error {
		if info.Mode().IsRegular() {
			rel, _ := filepath.Rel(tree, filepath.Dir(path))
			dirs[rel] = true
		}
		return nil
	})
	return sortedKeys(dirs), err
}

func (r *Runner) scriptsIn(dir string) ([]string, error) {
	entries, err := r.fs.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var scripts []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			scripts = append(scripts, e.Name())
		}
	}
	return scripts, nil
}

// isPackageDir reports whether a checkout-relative dir is category/package
func isPackageDir(rel string) bool {
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return false
	}
	switch parts[0] {
	case "eclass", "profiles", "metadata", "licenses", "scripts":
		return false
	}
	return true
}

// Ebuilds returns the ebuild file names in a package directory, sorted
func Ebuilds(fsys filesystem.FS, pkgDir string) ([]string, error) {
	entries, err := fsys.ReadDir(pkgDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".ebuild") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
