package repo

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fmtools/fmsys/pkg/filesystem"
)

// nonCategoryDirs are top-level checkout directories that never hold
// packages
var nonCategoryDirs = map[string]bool{
	"eclass":    true,
	"profiles":  true,
	"metadata":  true,
	"licenses":  true,
	"scripts":   true,
	"distfiles": true,
	"packages":  true,
}

// EbuildDirs returns the set of category/package directories of a
// checkout that contain at least one ebuild
func EbuildDirs(fsys filesystem.FS, dir string) (map[string]bool, error) {
	cats, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, cat := range cats {
		if !cat.IsDir() || nonCategoryDirs[cat.Name()] || strings.HasPrefix(cat.Name(), ".") {
			continue
		}
		pkgs, err := fsys.ReadDir(filepath.Join(dir, cat.Name()))
		if err != nil {
			return nil, err
		}
		for _, pkg := range pkgs {
			if !pkg.IsDir() {
				continue
			}
			if hasEbuild(fsys, filepath.Join(dir, cat.Name(), pkg.Name())) {
				out[cat.Name()+"/"+pkg.Name()] = true
			}
		}
	}
	return out, nil
}

func hasEbuild(fsys filesystem.FS, pkgDir string) bool {
	entries, err := fsys.ReadDir(pkgDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".ebuild") {
			return true
		}
	}
	return false
}

// Source names one checkout taking part in duplicate detection
type Source struct {
	Name string
	Dir  string
}

// Duplicate is one package directory provided by more than one source
type Duplicate struct {
	Package string
	Owners  []string
}

func (d Duplicate) String() string {
	return fmt.Sprintf("package %s exists in %s", d.Package, strings.Join(d.Owners, " and "))
}

// FindDuplicates reports every package directory present in more than one
// source, sorted by package. Owners keep the order of sources. Nothing is
// ever changed on disk.
func FindDuplicates(fsys filesystem.FS, sources []Source) ([]Duplicate, error) {
	owners := map[string][]string{}
	for _, s := range sources {
		dirs, err := EbuildDirs(fsys, s.Dir)
		if err != nil {
			return nil, fmt.Errorf("cannot scan %s: %w", s.Name, err)
		}
		for pkg := range dirs {
			owners[pkg] = append(owners[pkg], s.Name)
		}
	}

	var dups []Duplicate
	for pkg, names := range owners {
		if len(names) > 1 {
			dups = append(dups, Duplicate{Package: pkg, Owners: names})
		}
	}
	sort.Slice(dups, func(i, j int) bool { return dups[i].Package < dups[j].Package })
	return dups, nil
}

// Sources returns the existing repository checkouts in table order
func (m *Manager) Sources() []Source {
	var out []Source
	for _, r := range Known {
		if d := m.Directory(r.Name); filesystem.IsDir(m.fs, d) {
			out = append(out, Source{Name: r.Name, Dir: d})
		}
	}
	return out
}

// NameClash is one repo-name declared by more than one source
type NameClash struct {
	RepoName string
	Owners   []string
}

func (c NameClash) String() string {
	return fmt.Sprintf("repo-name %s is declared by %s", c.RepoName, strings.Join(c.Owners, " and "))
}

// FindNameClashes reports every repo-name declared by more than one
// source, sorted by repo-name. Sources without a repo-name are skipped.
func FindNameClashes(fsys filesystem.FS, sources []Source) []NameClash {
	owners := map[string][]string{}
	for _, s := range sources {
		if n := RepoName(fsys, s.Dir); n != "" {
			owners[n] = append(owners[n], s.Name)
		}
	}

	var clashes []NameClash
	for n, names := range owners {
		if len(names) > 1 {
			clashes = append(clashes, NameClash{RepoName: n, Owners: names})
		}
	}
	sort.Slice(clashes, func(i, j int) bool { return clashes[i].RepoName < clashes[j].RepoName })
	return clashes
}

// ClaimedBy returns the repository whose checkout declares repoName, or ""
func (m *Manager) ClaimedBy(repoName string) string {
	for _, src := range m.Sources() {
		if RepoName(m.fs, src.Dir) == repoName {
			return src.Name
		}
	}
	return ""
}
