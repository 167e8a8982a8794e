package filesystem

import (
	"io"
	"io/fs"
	"os"

	"github.com/arthur-debert/synthfs/pkg/synthfs"
	sfs "github.com/arthur-debert/synthfs/pkg/synthfs/filesystem"
)

// FS is the filesystem the checkers inspect and repair through. Reads and
// writes go to the synthfs filesystem; Lstat, ReadDir, RemoveAll, Rename
// and Chmod are added on top since link-aware inspection and whole-tree
// removal are what a repair needs beyond plain file access.
type FS interface {
	sfs.FullFileSystem
	Lstat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	Chmod(name string, mode fs.FileMode) error
}

// osFS resolves absolute paths against the host root
type osFS struct {
	sfs.FullFileSystem
}

// NewOS returns an FS over the host filesystem taking absolute paths
func NewOS() FS {
	osfs := sfs.NewOSFileSystem("/")
	return &osFS{
		FullFileSystem: synthfs.NewPathAwareFileSystem(osfs, "/").WithAbsolutePaths(),
	}
}

func (o *osFS) Lstat(name string) (fs.FileInfo, error) {
	return os.Lstat(name)
}

func (o *osFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

func (o *osFS) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (o *osFS) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (o *osFS) Chmod(name string, mode fs.FileMode) error {
	return os.Chmod(name, mode)
}

// ReadFile reads a whole file through fsys
func ReadFile(fsys FS, name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}
