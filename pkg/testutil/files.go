package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// FileTree represents a nested file structure for declarative test setup.
// Values are either file content (string) or a nested FileTree.
type FileTree map[string]interface{}

// WriteTree creates tree below base
func WriteTree(t *testing.T, base string, tree FileTree) {
	t.Helper()

	for name, content := range tree {
		fullPath := filepath.Join(base, name)

		switch v := content.(type) {
		case string:
			CreateFileT(t, fullPath, v)
		case FileTree:
			CreateDirT(t, fullPath)
			WriteTree(t, fullPath, v)
		default:
			t.Fatalf("Invalid file tree content type for %s: %T", name, content)
		}
	}
}

// CreateFileT creates a file with its parent directories
func CreateFileT(t *testing.T, path, content string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create parent directories for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create file %s: %v", path, err)
	}
	return path
}

// CreateDirT creates a directory with its parents
func CreateDirT(t *testing.T, path string) string {
	t.Helper()

	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("Failed to create directory %s: %v", path, err)
	}
	return path
}

// CreateSymlinkT creates link pointing to target
func CreateSymlinkT(t *testing.T, target, link string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(link), 0755); err != nil {
		t.Fatalf("Failed to create parent directory for symlink %s: %v", link, err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Failed to create symlink %s -> %s: %v", link, target, err)
	}
}

// ReadFileT reads a file
func ReadFileT(t *testing.T, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// ReadSymlinkT reads the target of a symlink
func ReadSymlinkT(t *testing.T, path string) string {
	t.Helper()

	target, err := os.Readlink(path)
	if err != nil {
		t.Fatalf("Failed to read symlink %s: %v", path, err)
	}
	return target
}

// Exists reports whether path exists without following symlinks
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsSymlink reports whether path is a symlink
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// IsDir reports whether path is a directory, not a symlink to one
func IsDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}
