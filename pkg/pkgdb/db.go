// Package pkgdb reads the installed package database (the vdb) and
// verifies that what it recorded is still what is on disk.
package pkgdb

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/execx"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/fmtools/fmsys/pkg/paths"
	lru "github.com/hashicorp/golang-lru/v2"
)

// EntryType is the kind of a CONTENTS entry
type EntryType string

const (
	Dir EntryType = "dir"
	Obj EntryType = "obj"
	Sym EntryType = "sym"
)

// Entry is one line of a package's CONTENTS file. Path and Target are in
// system form.
type Entry struct {
	Type   EntryType
	Path   string
	MD5    string
	Target string
	MTime  int64
}

const extraFilesCacheSize = 512

// DB reads the vdb below the configured root
type DB struct {
	fs    filesystem.FS
	paths *paths.Paths
	exec  execx.Runner
	// extra memoises pkg_extra_files output per ebuild path
	extra *lru.Cache[string, []string]
}

// New creates a DB
func New(fsys filesystem.FS, p *paths.Paths, runner execx.Runner) *DB {
	cache, err := lru.New[string, []string](extraFilesCacheSize)
	if err != nil {
		panic(err)
	}
	return &DB{fs: fsys, paths: p, exec: runner, extra: cache}
}

// Packages returns every installed package as category/pf, sorted
func (db *DB) Packages() ([]string, error) {
	cats, err := filesystem.SubDirs(db.fs, db.paths.Vdb())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrInternal, "cannot read %s", db.paths.Vdb())
	}
	var out []string
	for _, cat := range cats {
		pfs, err := filesystem.SubDirs(db.fs, filepath.Join(db.paths.Vdb(), cat))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrInternal, "cannot read category %s", cat)
		}
		for _, pf := range pfs {
			// "-MERGING-foo" and dot entries are in-flight merges
			if strings.HasPrefix(pf, "-") || strings.HasPrefix(pf, ".") {
				continue
			}
			out = append(out, cat+"/"+pf)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (db *DB) pkgDir(pkg string) string {
	return filepath.Join(db.paths.Vdb(), pkg)
}

// Ebuild returns the path of the installed ebuild of pkg
func (db *DB) Ebuild(pkg string) string {
	return filepath.Join(db.pkgDir(pkg), filepath.Base(pkg)+".ebuild")
}

// CHOST returns the CHOST pkg was built for
func (db *DB) CHOST(pkg string) string {
	data, err := filesystem.ReadFile(db.fs, filepath.Join(db.pkgDir(pkg), "CHOST"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Contents parses the CONTENTS file of pkg. A package without one yields
// an ErrContentsMissing error.
func (db *DB) Contents(pkg string) ([]Entry, error) {
	path := filepath.Join(db.pkgDir(pkg), "CONTENTS")
	f, err := db.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrContentsMissing, "package %s has no CONTENTS file", pkg)
		}
		return nil, errors.Wrapf(err, errors.ErrInternal, "cannot read %s", path)
	}
	defer func() { _ = f.Close() }()
	return ParseContents(f, pkg)
}

// ParseContents parses CONTENTS lines. Entry kinds other than dir, obj and
// sym (fifos, devices) are skipped.
func ParseContents(r io.Reader, pkg string) ([]Entry, error) {
	var out []Entry
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if line == "" {
			continue
		}
		kind, rest, _ := strings.Cut(line, " ")
		switch EntryType(kind) {
		case Dir:
			out = append(out, Entry{Type: Dir, Path: rest})
		case Obj:
			// paths may contain spaces, the checksum and mtime never do
			f := strings.Fields(rest)
			if len(f) < 3 {
				return nil, errors.Newf(errors.ErrInvalidInput, "%s CONTENTS line %d: malformed obj entry", pkg, n)
			}
			mtime, _ := strconv.ParseInt(f[len(f)-1], 10, 64)
			p := strings.TrimSuffix(rest, " "+f[len(f)-2]+" "+f[len(f)-1])
			out = append(out, Entry{Type: Obj, Path: p, MD5: f[len(f)-2], MTime: mtime})
		case Sym:
			link, tail, ok := strings.Cut(rest, " -> ")
			if !ok {
				return nil, errors.Newf(errors.ErrInvalidInput, "%s CONTENTS line %d: malformed sym entry", pkg, n)
			}
			e := Entry{Type: Sym, Path: link, Target: tail}
			if i := strings.LastIndex(tail, " "); i >= 0 {
				if mtime, err := strconv.ParseInt(tail[i+1:], 10, 64); err == nil {
					e.Target, e.MTime = tail[:i], mtime
				}
			}
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "cannot read CONTENTS of %s", pkg)
	}
	return out, nil
}

// ExtraFiles returns the wildcards the package declares through a
// pkg_extra_files function in its ebuild. The function runs in bash with
// only CHOST set. Results are cached per ebuild.
func (db *DB) ExtraFiles(ctx context.Context, pkg string) ([]string, error) {
	ebuild := db.Ebuild(pkg)
	if v, ok := db.extra.Get(ebuild); ok {
		return v, nil
	}

	body, err := extractExtraFiles(db.fs, ebuild)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "cannot read %s", ebuild)
	}
	var patterns []string
	if body != "" {
		script := "pkg_extra_files() {\n" + body + "}\npkg_extra_files\n"
		cmd := execx.Command("bash", "-c", script)
		cmd.MinimalEnv = true
		cmd.Env = []string{"CHOST=" + db.CHOST(pkg)}

		out, err := db.exec.Run(ctx, cmd)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrCommandFailed, "pkg_extra_files of %s failed", pkg)
		}
		for _, line := range strings.Split(string(out), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				patterns = append(patterns, line)
			}
		}
	}
	db.extra.Add(ebuild, patterns)
	return patterns, nil
}

// extractExtraFiles returns the body of pkg_extra_files, from the line
// after "pkg_extra_files() {" up to the next line that is exactly "}"
func extractExtraFiles(fsys filesystem.FS, ebuild string) (string, error) {
	f, err := fsys.Open(ebuild)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer func() { _ = f.Close() }()

	var b strings.Builder
	in := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case !in && strings.TrimSpace(line) == "pkg_extra_files() {":
			in = true
		case in && strings.TrimSpace(line) == "}":
			return b.String(), nil
		case in:
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return "", sc.Err()
}

// Reinstall rebuilds exactly the installed version of pkg
func (db *DB) Reinstall(ctx context.Context, pkg string) error {
	logger := logging.GetLogger("pkgdb")
	logger.Info().Str("package", pkg).Msg("reinstalling")
	if _, err := db.exec.Run(ctx, execx.Command("emerge", "--oneshot", "="+pkg)); err != nil {
		return errors.Wrapf(err, errors.ErrCommandFailed, "cannot reinstall %s", pkg)
	}
	return nil
}
