// Package configdir enforces the symlink-farm shape of the
// /etc/portage/package.* directories.
//
// A managed directory holds three kinds of entries: symlinks into the fmsys
// data directory (declared slots), sentinel files that must exist, and
// free-form content owned by the administrator. Only the first two are
// checked, and only symlinks are ever removed.
//
// Checking a directory is a session:
//
//	s, err := rules.Begin(dir, autofix)
//	s.DeclareSymlink("0?-base", templateDir, "base")
//	s.DeclareEmptyFile("99-local")
//	s.End()
//
// In check-only mode every violation is returned as a structural error and
// nothing on disk changes. With autofix the session converges the directory
// instead, and End removes every symlink that no Declare call claimed.
package configdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/fmtools/fmsys/pkg/paths"
)

// UnknownName is the base name a pre-existing non-symlink is moved to when
// a declared slot needs its place
const UnknownName = "90-unknown"

// Rules checks and fixes managed configuration directories
type Rules struct {
	fs    filesystem.FS
	paths *paths.Paths
}

// New creates Rules working through fsys. Symlink targets are system
// paths; p resolves them on the host when checking that the canonical
// content exists.
func New(fsys filesystem.FS, p *paths.Paths) *Rules {
	return &Rules{fs: fsys, paths: p}
}

// EnsureDirectory requires path to be a directory, creating it on autofix
func (r *Rules) EnsureDirectory(path string, autofix bool) error {
	info, err := r.fs.Lstat(path)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err != nil && !os.IsNotExist(err):
		return errors.Wrapf(err, errors.ErrInternal, "cannot stat %s", path)
	case !autofix && err != nil:
		return errors.Newf(errors.ErrDirMissing, "directory %s does not exist", path)
	case !autofix:
		return errors.Newf(errors.ErrNotADir, "%s is not a directory", path)
	}

	logger := logging.GetLogger("configdir")
	if err == nil {
		// something else occupies the name; keep it aside like any
		// unexpected content
		aside := filepath.Join(filepath.Dir(path), filesystem.UniqueName(r.fs, filepath.Dir(path), filepath.Base(path)+".orig"))
		logger.Info().Str("path", path).Str("aside", aside).Msg("moving non-directory aside")
		if err := r.fs.Rename(path, aside); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot move %s aside", path)
		}
	}
	logger.Info().Str("path", path).Msg("creating directory")
	if err := r.fs.MkdirAll(path, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot create %s", path)
	}
	return nil
}

// Session tracks the declarations made against one directory
type Session struct {
	rules    *Rules
	fs       filesystem.FS
	dir      string
	autofix  bool
	counter  int
	declared map[string]bool
	ended    bool
}

// Begin ensures dir exists and starts a session on it
func (r *Rules) Begin(dir string, autofix bool) (*Session, error) {
	if err := r.EnsureDirectory(dir, autofix); err != nil {
		return nil, err
	}
	return &Session{
		rules:    r,
		fs:       r.fs,
		dir:      dir,
		autofix:  autofix,
		declared: make(map[string]bool),
	}, nil
}

// Dir returns the directory of the session
func (s *Session) Dir() string {
	return s.dir
}

// slotName expands the single ? placeholder of a slot pattern with the next
// number of the session. Patterns without a placeholder are unchanged and
// do not consume a number.
func (s *Session) slotName(pattern string) string {
	if !strings.Contains(pattern, "?") {
		return pattern
	}
	s.counter++
	return strings.Replace(pattern, "?", fmt.Sprint(s.counter), 1)
}

// DeclareSymlink requires the slot to be a symlink pointing at
// targetDir/targetName. It returns the expanded slot name.
func (s *Session) DeclareSymlink(slotPattern, targetDir, targetName string) (string, error) {
	if s.ended {
		return "", errors.Newf(errors.ErrInternal, "session on %s already ended", s.dir)
	}

	name := s.slotName(slotPattern)
	s.declared[name] = true
	link := filepath.Join(s.dir, name)
	target := filepath.Join(targetDir, targetName)

	if err := s.checkSymlink(link, target); err != nil {
		if !s.autofix || !errors.IsStructural(err) {
			return name, err
		}
		if err := s.fixSymlink(link, target); err != nil {
			return name, err
		}
	}

	if _, err := s.fs.Stat(s.rules.paths.Sys(target)); err != nil {
		return name, errors.Newf(errors.ErrCanonicalMissing, "canonical file %s for %s does not exist", target, link)
	}
	return name, nil
}

func (s *Session) checkSymlink(link, target string) error {
	info, err := s.fs.Lstat(link)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Newf(errors.ErrSymlinkMissing, "symlink %s does not exist", link)
		}
		return errors.Wrapf(err, errors.ErrInternal, "cannot stat %s", link)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return errors.Newf(errors.ErrNotASymlink, "%s is not a symlink", link)
	}
	actual, err := s.fs.Readlink(link)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot read symlink %s", link)
	}
	if actual != target {
		return errors.Newf(errors.ErrSymlinkWrongTarget, "symlink %s points to %s instead of %s", link, actual, target)
	}
	return nil
}

func (s *Session) fixSymlink(link, target string) error {
	logger := logging.GetLogger("configdir")

	info, err := s.fs.Lstat(link)
	switch {
	case err != nil:
		// missing
	case info.Mode()&os.ModeSymlink != 0:
		if err := s.fs.Remove(link); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", link)
		}
	default:
		aside := filepath.Join(s.dir, filesystem.UniqueName(s.fs, s.dir, UnknownName))
		logger.Info().Str("path", link).Str("aside", aside).Msg("preserving non-symlink content")
		if err := s.fs.Rename(link, aside); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot move %s aside", link)
		}
	}

	logger.Info().Str("link", link).Str("target", target).Msg("creating symlink")
	if err := s.fs.Symlink(target, link); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot create symlink %s", link)
	}
	return nil
}

// DeclareEmptyFile requires a file to exist. Its content is never checked.
func (s *Session) DeclareEmptyFile(name string) error {
	if s.ended {
		return errors.Newf(errors.ErrInternal, "session on %s already ended", s.dir)
	}
	s.declared[name] = true
	path := filepath.Join(s.dir, name)

	if filesystem.Exists(s.fs, path) {
		return nil
	}
	if !s.autofix {
		return errors.Newf(errors.ErrFileMissing, "file %s does not exist", path)
	}
	logger := logging.GetLogger("configdir")
	logger.Info().Str("path", path).Msg("creating empty file")
	if err := s.fs.WriteFile(path, nil, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot create %s", path)
	}
	return nil
}

// DeclareFile requires a file generated by fmsys to hold exactly content
func (s *Session) DeclareFile(name, content string) error {
	if s.ended {
		return errors.Newf(errors.ErrInternal, "session on %s already ended", s.dir)
	}
	s.declared[name] = true
	path := filepath.Join(s.dir, name)

	data, err := filesystem.ReadFile(s.fs, path)
	switch {
	case err == nil && string(data) == content:
		return nil
	case !s.autofix && err == nil:
		return errors.Newf(errors.ErrFileContentMismatch, "file %s has unexpected content", path)
	case !s.autofix:
		return errors.Newf(errors.ErrFileMissing, "file %s does not exist", path)
	}

	if filesystem.IsSymlink(s.fs, path) {
		if err := s.fs.Remove(path); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", path)
		}
	}
	logger := logging.GetLogger("configdir")
	logger.Info().Str("path", path).Msg("writing generated file")
	if err := s.fs.WriteFile(path, []byte(content), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot write %s", path)
	}
	return nil
}

// End closes the session. With autofix every symlink in the directory that
// was not declared is removed. Check-only mode neither changes nor reports
// anything here.
func (s *Session) End() error {
	if s.ended {
		return nil
	}
	s.ended = true
	if !s.autofix {
		return nil
	}

	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot read %s", s.dir)
	}

	logger := logging.GetLogger("configdir")
	var errs []error
	for _, e := range entries {
		if e.Type()&os.ModeSymlink == 0 || s.declared[e.Name()] {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		logger.Info().Str("path", path).Msg("removing undeclared symlink")
		if err := s.fs.Remove(path); err != nil {
			errs = append(errs, errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", path))
		}
	}
	return errors.Join(errs...)
}
