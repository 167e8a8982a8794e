package fsh

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fmtools/fmsys/pkg/config"
	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/fmtools/fmsys/pkg/paths"
	"github.com/fmtools/fmsys/pkg/pkgdb"
)

// Hierarchy checks a system against Rules
type Hierarchy struct {
	fs    filesystem.FS
	paths *paths.Paths
	rules *Rules
	cruft config.Cruft
	db    *pkgdb.DB
}

// New creates a Hierarchy. db supplies the package-owned files for the
// sweep.
func New(fsys filesystem.FS, p *paths.Paths, rules *Rules, cruft config.Cruft, db *pkgdb.DB) *Hierarchy {
	return &Hierarchy{fs: fsys, paths: p, rules: rules, cruft: cruft, db: db}
}

// owned holds every path installed packages account for, in system form
type owned struct {
	paths     map[string]bool
	canonical map[string]string
	h         *Hierarchy
}

// Sweep reports every file matching the swept wildcards, outside the
// excluded ones, that no installed package explains. With autofix, dangling symlinks among them
// are deleted; any other leftover is only reported.
func (h *Hierarchy) Sweep(ctx context.Context, autofix bool) []error {
	logger := logging.GetLogger("fsh")
	defer logging.LogOperationStart(logger, "cruft sweep")()

	excluded, own, err := h.collect(ctx)
	if err != nil {
		return []error{err}
	}
	excluded = append(excluded, h.cruft.Exempt...)

	var errs []error
	seen := map[string]bool{}
	for _, pattern := range h.rules.Swept() {
		base, _ := doublestar.SplitPattern(pattern)
		err := filesystem.Walk(h.fs, h.paths.Sys(base), func(host string, info fs.FileInfo) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sys := h.paths.Unroot(host)
			if info.IsDir() {
				if matchAny(sys, excluded) {
					return fs.SkipDir
				}
				return nil
			}
			if seen[sys] || !match(pattern, sys) || matchAny(sys, excluded) || own.has(sys) {
				return nil
			}
			seen[sys] = true

			if info.Mode()&fs.ModeSymlink != 0 {
				if _, err := h.fs.Stat(host); err != nil {
					if !autofix {
						errs = append(errs, errors.Newf(errors.ErrCruft, "dangling symlink %s", sys).WithDetail("path", sys))
						return nil
					}
					logger.Info().Str("path", sys).Msg("removing dangling symlink")
					if err := h.fs.Remove(host); err != nil {
						errs = append(errs, errors.Wrapf(err, errors.ErrCruft, "cannot remove dangling symlink %s", sys))
					}
					return nil
				}
			}
			errs = append(errs, errors.Newf(errors.ErrCruft, "unexplained file %s", sys).WithDetail("path", sys))
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			errs = append(errs, errors.Wrapf(err, errors.ErrInternal, "cannot sweep %s", base))
		}
	}
	return errs
}

// collect gathers the wildcards of every package's extra files and the
// set of package-owned paths
func (h *Hierarchy) collect(ctx context.Context) ([]string, *owned, error) {
	excluded := h.rules.Excluded()
	own := &owned{paths: map[string]bool{}, canonical: map[string]string{}, h: h}

	pkgs, err := h.db.Packages()
	if err != nil {
		return nil, nil, err
	}
	for _, pkg := range pkgs {
		extra, err := h.db.ExtraFiles(ctx, pkg)
		if err != nil {
			return nil, nil, err
		}
		excluded = append(excluded, extra...)

		entries, err := h.db.Contents(pkg)
		if errors.IsErrorCode(err, errors.ErrContentsMissing) {
			// reported by the integrity check
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		for _, e := range entries {
			own.add(e.Path)
			if e.Type == pkgdb.Sym {
				target := e.Target
				if !filepath.IsAbs(target) {
					target = filepath.Join(filepath.Dir(e.Path), target)
				}
				own.add(filepath.Clean(target))
			}
		}
	}
	return excluded, own, nil
}

func (o *owned) add(path string) {
	o.paths[path] = true
	o.paths[o.canonicalise(path)] = true
}

// canonicalise resolves the symlinks in the directory part of path, so a
// file recorded below /lib64 is found below the directory /lib64 points to
func (o *owned) canonicalise(path string) string {
	dir, name := filepath.Split(path)
	dir = filepath.Clean(dir)
	resolved, ok := o.canonical[dir]
	if !ok {
		resolved = dir
		if host, err := filepath.EvalSymlinks(o.h.paths.Sys(dir)); err == nil {
			resolved = o.h.paths.Unroot(host)
		}
		o.canonical[dir] = resolved
	}
	return filepath.Join(resolved, name)
}

func (o *owned) has(path string) bool {
	if o.paths[path] || o.paths[o.canonicalise(path)] {
		return true
	}
	return o.bytecodeOwned(path)
}

// bytecodeOwned reports whether path is compiled bytecode of an owned
// python source: foo.pyc next to foo.py, or __pycache__/foo.<tag>.pyc
func (o *owned) bytecodeOwned(path string) bool {
	if !o.h.cruft.PythonBytecode {
		return false
	}
	ext := filepath.Ext(path)
	isBytecode := false
	for _, s := range o.h.cruft.BytecodeSuffixes {
		if ext == s {
			isBytecode = true
			break
		}
	}
	if !isBytecode {
		return false
	}

	dir, name := filepath.Split(path)
	dir = filepath.Clean(dir)
	if filepath.Base(dir) == "__pycache__" {
		module, _, _ := strings.Cut(name, ".")
		return o.paths[filepath.Join(filepath.Dir(dir), module+".py")]
	}
	return o.paths[strings.TrimSuffix(path, ext)+".py"]
}

func match(pattern, path string) bool {
	ok, _ := doublestar.Match(pattern, path)
	return ok
}

func matchAny(path string, patterns []string) bool {
	for _, p := range patterns {
		if match(p, path) {
			return true
		}
	}
	return false
}
