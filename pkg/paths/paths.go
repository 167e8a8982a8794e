// Package paths derives every on-disk location fmsys works with from the
// configuration. All locations are rooted at the configured root so the
// tool can operate on a mounted system image, or on a test directory.
//
// Two forms of a path exist. The host form is where the file lives for this
// process (root joined in front). The system form is what the managed
// system itself sees, and is what gets written into configuration files and
// symlink targets. Methods return the host form unless noted otherwise.
package paths

import (
	"path/filepath"
	"strings"

	"github.com/fmtools/fmsys/pkg/config"
)

// File and directory names inside the managed locations
const (
	// ReposConfDir is the repos.conf directory below the portage config dir
	ReposConfDir = "repos.conf"

	// RepoFragmentPrefix prefixes repository fragment files
	RepoFragmentPrefix = "repo-"

	// OverlayFragmentPrefix prefixes overlay fragment files
	OverlayFragmentPrefix = "overlay-"

	// FragmentSuffix is the extension of every fragment file
	FragmentSuffix = ".conf"

	// PortageTemplatesDir holds canonical package.* content in the data dir
	PortageTemplatesDir = "portage"

	// NamedPatchSuffix and SyncPatchSuffix name the two patch trees of a
	// repository or overlay
	NamedPatchSuffix = "-n-patch"
	SyncPatchSuffix  = "-s-patch"
)

// Paths resolves fmsys locations
type Paths struct {
	cfg config.Paths
}

// New creates Paths from the configuration
func New(cfg config.Paths) *Paths {
	if cfg.Root == "" {
		cfg.Root = "/"
	}
	return &Paths{cfg: cfg}
}

// Root returns the root prefix
func (p *Paths) Root() string {
	return p.cfg.Root
}

// Sys converts a system path into its host form
func (p *Paths) Sys(path string) string {
	if p.cfg.Root == "/" {
		return filepath.Clean(path)
	}
	return filepath.Join(p.cfg.Root, path)
}

// Unroot converts a host path into its system form. Paths outside the root
// are returned cleaned but otherwise unchanged.
func (p *Paths) Unroot(hostPath string) string {
	hostPath = filepath.Clean(hostPath)
	if p.cfg.Root == "/" {
		return hostPath
	}
	rel, err := filepath.Rel(p.cfg.Root, hostPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return hostPath
	}
	return filepath.Join("/", rel)
}

// PortageConfigDir returns /etc/portage
func (p *Paths) PortageConfigDir() string {
	return p.Sys(p.cfg.PortageConfigDir)
}

// PortageDir returns one /etc/portage/package.* directory
func (p *Paths) PortageDir(name string) string {
	return filepath.Join(p.PortageConfigDir(), name)
}

// ReposConfDir returns /etc/portage/repos.conf
func (p *Paths) ReposConfDir() string {
	return filepath.Join(p.PortageConfigDir(), ReposConfDir)
}

// RepoDir returns the checkout directory of a repository
func (p *Paths) RepoDir(name string) string {
	return p.Sys(filepath.Join(p.cfg.ReposDir, name))
}

// RepoFragmentPath returns the repos.conf fragment of a repository
func (p *Paths) RepoFragmentPath(name string) string {
	return filepath.Join(p.ReposConfDir(), RepoFragmentPrefix+name+FragmentSuffix)
}

// OverlaysDir returns the directory holding every live overlay
func (p *Paths) OverlaysDir() string {
	return p.Sys(p.cfg.OverlaysDir)
}

// OverlayDir returns the live directory of an overlay
func (p *Paths) OverlayDir(name string) string {
	return filepath.Join(p.OverlaysDir(), name)
}

// OverlayFilesDir returns the upstream checkout of a transient overlay
func (p *Paths) OverlayFilesDir(name string) string {
	return p.Sys(filepath.Join(p.cfg.OverlayFilesDir, name))
}

// OverlayFragmentPath returns the repos.conf fragment of an overlay
func (p *Paths) OverlayFragmentPath(name string) string {
	return filepath.Join(p.ReposConfDir(), OverlayFragmentPrefix+name+FragmentSuffix)
}

// DataDir returns the fmsys data directory
func (p *Paths) DataDir() string {
	return p.Sys(p.cfg.DataDir)
}

// DataTemplateDir returns the directory holding the canonical files the
// symlinks of a package.* directory point to, in system form.
func (p *Paths) DataTemplateDir(portageDir string) string {
	return filepath.Join(p.cfg.DataDir, PortageTemplatesDir, portageDir)
}

// PatchDir returns the directory holding the patch trees
func (p *Paths) PatchDir() string {
	return p.Sys(p.cfg.PatchDir)
}

// PatchTrees returns the named and sync-time patch trees for a repository
// or overlay, in that order
func (p *Paths) PatchTrees(name string) []string {
	return []string{
		filepath.Join(p.PatchDir(), name+NamedPatchSuffix),
		filepath.Join(p.PatchDir(), name+SyncPatchSuffix),
	}
}

// Vdb returns the installed package database directory
func (p *Paths) Vdb() string {
	return p.Sys(p.cfg.VdbDir)
}

// BootDir returns the boot directory
func (p *Paths) BootDir() string {
	return p.Sys(p.cfg.BootDir)
}

// OverlayDB returns the repositories.xml overlay list
func (p *Paths) OverlayDB() string {
	return p.Sys(p.cfg.OverlayDB)
}

// Proc returns a path below /proc
func (p *Paths) Proc(elem ...string) string {
	return p.Sys(filepath.Join(append([]string{p.cfg.ProcDir}, elem...)...))
}

// SysFS returns a path below /sys
func (p *Paths) SysFS(elem ...string) string {
	return p.Sys(filepath.Join(append([]string{p.cfg.SysDir}, elem...)...))
}

// SysRepoDir returns the system form of a repository checkout, as written
// into its fragment
func (p *Paths) SysRepoDir(name string) string {
	return filepath.Join(p.cfg.ReposDir, name)
}

// SysOverlayDir returns the system form of a live overlay directory
func (p *Paths) SysOverlayDir(name string) string {
	return filepath.Join(p.cfg.OverlaysDir, name)
}
