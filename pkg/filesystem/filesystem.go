// Package filesystem holds the tree-level file operations shared by the
// repository, overlay and checker code: whole-directory copies and
// comparisons, empty-directory pruning, checksums and link inspection.
// Every helper works through an FS so the callers share one view of the
// system root.
//
// Every operation that recreates something starts by removing its target,
// so callers can re-run them safely after a partial failure.
package filesystem

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Exists reports whether path exists, without following a final symlink
func Exists(fsys FS, path string) bool {
	_, err := fsys.Lstat(path)
	return err == nil
}

// IsDir reports whether path is a directory, without following symlinks
func IsDir(fsys FS, path string) bool {
	info, err := fsys.Lstat(path)
	return err == nil && info.IsDir()
}

// IsSymlink reports whether path is a symlink
func IsSymlink(fsys FS, path string) bool {
	info, err := fsys.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// Walk calls fn for root and everything below it, depth first in name
// order. Symlinks are reported, never followed. fn returning fs.SkipDir
// for a directory skips its contents.
func Walk(fsys FS, root string, fn func(path string, info fs.FileInfo) error) error {
	info, err := fsys.Lstat(root)
	if err != nil {
		return err
	}
	return walk(fsys, root, info, fn)
}

func walk(fsys FS, path string, info fs.FileInfo, fn func(path string, info fs.FileInfo) error) error {
	if err := fn(path, info); err != nil {
		if err == fs.SkipDir && info.IsDir() {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return nil
	}
	entries, err := fsys.ReadDir(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		child := filepath.Join(path, e.Name())
		childInfo, err := fsys.Lstat(child)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := walk(fsys, child, childInfo, fn); err != nil {
			return err
		}
	}
	return nil
}

// CopyTree replaces dst with a copy of src. Regular files keep their
// permission bits; symlinks are recreated verbatim.
func CopyTree(fsys FS, src, dst string) error {
	if err := fsys.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dst, err)
	}
	if err := fsys.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}

	return Walk(fsys, src, func(path string, info fs.FileInfo) error {
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return fsys.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := fsys.Readlink(path)
			if err != nil {
				return err
			}
			return fsys.Symlink(link, target)
		case info.Mode().IsRegular():
			return CopyFile(fsys, path, target, info.Mode().Perm())
		default:
			// fifos, sockets and devices have no place in a checkout
			return nil
		}
	})
}

// CopyFile copies one regular file
func CopyFile(fsys FS, src, dst string, perm fs.FileMode) error {
	content, err := ReadFile(fsys, src)
	if err != nil {
		return err
	}
	if err := fsys.WriteFile(dst, content, perm); err != nil {
		return err
	}
	// WriteFile leaves the mode of an existing file alone
	return fsys.Chmod(dst, perm)
}

// SameTree reports whether two directory trees hold the same entries with
// the same types, file contents and link targets.
func SameTree(fsys FS, a, b string) (bool, error) {
	la, err := listTree(fsys, a)
	if err != nil {
		return false, err
	}
	lb, err := listTree(fsys, b)
	if err != nil {
		return false, err
	}
	if len(la) != len(lb) {
		return false, nil
	}

	for i := range la {
		ea, eb := la[i], lb[i]
		if ea.rel != eb.rel || ea.mode.Type() != eb.mode.Type() {
			return false, nil
		}
		switch {
		case ea.mode&os.ModeSymlink != 0:
			ta, _ := fsys.Readlink(filepath.Join(a, ea.rel))
			tb, _ := fsys.Readlink(filepath.Join(b, eb.rel))
			if ta != tb {
				return false, nil
			}
		case ea.mode.IsRegular():
			same, err := sameFile(fsys, filepath.Join(a, ea.rel), filepath.Join(b, eb.rel))
			if err != nil || !same {
				return false, err
			}
		}
	}
	return true, nil
}

type treeEntry struct {
	rel  string
	mode fs.FileMode
}

func listTree(fsys FS, root string) ([]treeEntry, error) {
	var entries []treeEntry
	err := Walk(fsys, root, func(path string, info fs.FileInfo) error {
		if path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		entries = append(entries, treeEntry{rel: rel, mode: info.Mode()})
		return nil
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })
	return entries, err
}

func sameFile(fsys FS, a, b string) (bool, error) {
	ca, err := ReadFile(fsys, a)
	if err != nil {
		return false, err
	}
	cb, err := ReadFile(fsys, b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}

// IsEmptyDir reports whether dir exists and has no entries
func IsEmptyDir(fsys FS, dir string) bool {
	entries, err := fsys.ReadDir(dir)
	return err == nil && len(entries) == 0
}

// RemoveIfEmpty removes dir when it has no entries and reports whether it
// did so. A missing directory is not an error.
func RemoveIfEmpty(fsys FS, dir string) (bool, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if len(entries) > 0 {
		return false, nil
	}
	return true, fsys.Remove(dir)
}

// PruneEmptySubdirs removes every empty immediate subdirectory of dir and
// returns the names removed
func PruneEmptySubdirs(fsys FS, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ok, err := RemoveIfEmpty(fsys, filepath.Join(dir, e.Name()))
		if err != nil {
			return removed, err
		}
		if ok {
			removed = append(removed, e.Name())
		}
	}
	return removed, nil
}

// UniqueName returns base, or base-N with the smallest N >= 1, such that
// the result does not exist in dir
func UniqueName(fsys FS, dir, base string) string {
	if !Exists(fsys, filepath.Join(dir, base)) {
		return base
	}
	for n := 1; ; n++ {
		name := fmt.Sprintf("%s-%d", base, n)
		if !Exists(fsys, filepath.Join(dir, name)) {
			return name
		}
	}
}

// MD5File returns the hex MD5 digest of a file
func MD5File(fsys FS, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ResolveLink returns the target of a symlink made absolute against the
// link's own directory. Absolute targets are returned unchanged.
func ResolveLink(fsys FS, link string) (string, error) {
	target, err := fsys.Readlink(link)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}
	return filepath.Clean(target), nil
}

// SubDirs returns the names of the directories directly below dir, sorted
func SubDirs(fsys FS, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
