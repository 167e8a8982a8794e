// Package boot inspects the installed kernels. Building and installing
// them is left to the boot tooling; fmsys only checks that what it left in
// the boot directory is usable.
package boot

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/paths"
)

const (
	kernelPrefix    = "kernel-"
	initramfsPrefix = "initramfs-"
	// KernelSourceLink points at the configured kernel source tree
	KernelSourceLink = "/usr/src/linux"
)

// Entry is one bootable kernel. Paths are in system form.
type Entry struct {
	Version   string
	Kernel    string
	Initramfs string
}

// Chain is what the checker needs from the boot tooling
type Chain interface {
	CheckRepositories(ctx context.Context) error
	BootEntries() ([]Entry, error)
}

// DirChain reads kernel-<ver> and initramfs-<ver> pairs from the boot
// directory
type DirChain struct {
	paths *paths.Paths
}

var _ Chain = (*DirChain)(nil)

// NewDirChain creates a DirChain
func NewDirChain(p *paths.Paths) *DirChain {
	return &DirChain{paths: p}
}

// BootEntries returns every kernel with its initramfs, newest version
// string last. A kernel without initramfs or an initramfs without kernel
// is an error.
func (c *DirChain) BootEntries() ([]Entry, error) {
	dir := c.paths.BootDir()
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrBoot, "cannot read %s", dir)
	}
	kernels, initramfs := map[string]bool{}, map[string]bool{}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if v, ok := strings.CutPrefix(f.Name(), kernelPrefix); ok {
			kernels[v] = true
		} else if v, ok := strings.CutPrefix(f.Name(), initramfsPrefix); ok {
			initramfs[v] = true
		}
	}

	var entries []Entry
	var errs []error
	sysDir := c.paths.Unroot(dir)
	for v := range kernels {
		if !initramfs[v] {
			errs = append(errs, errors.Newf(errors.ErrBoot, "kernel %s has no initramfs", v))
			continue
		}
		entries = append(entries, Entry{
			Version:   v,
			Kernel:    filepath.Join(sysDir, kernelPrefix+v),
			Initramfs: filepath.Join(sysDir, initramfsPrefix+v),
		})
	}
	for v := range initramfs {
		if !kernels[v] {
			errs = append(errs, errors.Newf(errors.ErrBoot, "initramfs %s has no kernel", v))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Version < entries[j].Version })
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return entries, errors.Join(errs...)
}

// CheckRepositories verifies the kernel source link resolves to a source
// tree
func (c *DirChain) CheckRepositories(context.Context) error {
	link := c.paths.Sys(KernelSourceLink)
	info, err := os.Lstat(link)
	if err != nil {
		return errors.Newf(errors.ErrBoot, "%s does not exist", KernelSourceLink)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return errors.Newf(errors.ErrBoot, "%s is not a symlink", KernelSourceLink)
	}
	target, err := os.Readlink(link)
	if err != nil {
		return errors.Wrapf(err, errors.ErrBoot, "cannot read %s", KernelSourceLink)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(KernelSourceLink), target)
	}
	if st, err := os.Stat(c.paths.Sys(target)); err != nil || !st.IsDir() {
		return errors.Newf(errors.ErrBoot, "%s points to missing source tree %s", KernelSourceLink, target)
	}
	return nil
}
