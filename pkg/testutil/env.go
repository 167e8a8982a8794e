package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fmtools/fmsys/pkg/config"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/paths"
)

// Env is a temporary system root with configuration and paths pointing
// into it. Package ownership checks expect the current user, so tests do
// not need to run as root.
type Env struct {
	Root   string
	Config *config.Config
	Paths  *paths.Paths
	FS     filesystem.FS
	Runner *FakeRunner
}

// NewEnv creates an Env below t.TempDir()
func NewEnv(t *testing.T) *Env {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Root = root
	cfg.Owner.UID = os.Getuid()
	cfg.Owner.GID = os.Getgid()

	return &Env{
		Root:   root,
		Config: cfg,
		Paths:  paths.New(cfg.Paths),
		FS:     filesystem.NewOS(),
		Runner: NewFakeRunner(),
	}
}

// Sys returns the host form of a system path
func (e *Env) Sys(path string) string {
	return e.Paths.Sys(path)
}

// Write creates a file at a system path
func (e *Env) Write(t *testing.T, path, content string) string {
	t.Helper()
	return CreateFileT(t, e.Sys(path), content)
}

// Tree creates tree below a system path
func (e *Env) Tree(t *testing.T, path string, tree FileTree) {
	t.Helper()
	WriteTree(t, e.Sys(path), tree)
}

// Ebuild returns a FileTree with one ebuild per version for a package
func Ebuild(pkg string, versions ...string) FileTree {
	name := filepath.Base(pkg)
	tree := FileTree{}
	for _, v := range versions {
		tree[name+"-"+v+".ebuild"] = "EAPI=8\n"
	}
	return tree
}
