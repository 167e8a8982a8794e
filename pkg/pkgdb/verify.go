package pkgdb

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fmtools/fmsys/pkg/config"
	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/paths"
	"golang.org/x/sys/unix"
)

// AlwaysExempt lists the wildcards never verified: configuration is
// expected to diverge from what was installed
var AlwaysExempt = []string{"/etc/**"}

// Verifier compares CONTENTS entries with the filesystem
type Verifier struct {
	fs    filesystem.FS
	paths *paths.Paths
	owner config.Owner
}

// NewVerifier creates a Verifier expecting package files to belong to owner
func NewVerifier(fsys filesystem.FS, p *paths.Paths, owner config.Owner) *Verifier {
	return &Verifier{fs: fsys, paths: p, owner: owner}
}

// Exempt reports whether path matches one of the wildcards
func Exempt(path string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// Verify checks every entry of pkg not matched by exempt or AlwaysExempt.
// Each mismatch is its own ErrIntegrity error; nothing stops at the first.
func (v *Verifier) Verify(pkg string, entries []Entry, exempt []string) []error {
	var errs []error
	fail := func(path, format string, args ...interface{}) {
		err := errors.Newf(errors.ErrIntegrity, "%s: %s: "+format, append([]interface{}{pkg, path}, args...)...).
			WithDetail("package", pkg).
			WithDetail("path", path)
		errs = append(errs, err)
	}

	for _, e := range entries {
		if Exempt(e.Path, AlwaysExempt) || Exempt(e.Path, exempt) {
			continue
		}
		host := v.paths.Sys(e.Path)
		info, err := v.fs.Lstat(host)
		if err != nil {
			fail(e.Path, "does not exist")
			continue
		}

		switch e.Type {
		case Dir:
			if !info.IsDir() {
				fail(e.Path, "is not a directory")
				continue
			}
		case Obj:
			if !info.Mode().IsRegular() {
				fail(e.Path, "is not a regular file")
				continue
			}
			sum, err := filesystem.MD5File(v.fs, host)
			if err != nil {
				fail(e.Path, "cannot be read: %v", err)
				continue
			}
			if sum != e.MD5 {
				fail(e.Path, "MD5 verification failed")
			}
			if info.Mode().Perm()&0022 != 0 {
				fail(e.Path, "mode %04o is group or world writable", info.Mode().Perm())
			}
		case Sym:
			if info.Mode()&os.ModeSymlink == 0 {
				fail(e.Path, "is not a symlink")
				continue
			}
			target, err := v.fs.Readlink(host)
			if err != nil {
				fail(e.Path, "cannot be read: %v", err)
				continue
			}
			if target != e.Target {
				fail(e.Path, "symlink points to %s instead of %s", target, e.Target)
			} else if !v.resolves(e.Path, target) {
				fail(e.Path, "is a broken symlink")
			}
		}

		// CONTENTS records no owner, so every file is held to the one
		// configured owner; files installed for other accounts belong in
		// the package's extra files
		uid, gid, err := owner(host)
		if err != nil {
			fail(e.Path, "cannot stat: %v", err)
			continue
		}
		if uid != v.owner.UID {
			fail(e.Path, "uid is %d instead of %d", uid, v.owner.UID)
		}
		if gid != v.owner.GID {
			fail(e.Path, "gid is %d instead of %d", gid, v.owner.GID)
		}
	}
	return errs
}

// resolves follows a symlink target inside the root
func (v *Verifier) resolves(link, target string) bool {
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}
	_, err := v.fs.Stat(v.paths.Sys(target))
	return err == nil
}

func owner(path string) (int, int, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, 0, err
	}
	return int(st.Uid), int(st.Gid), nil
}
