package repo_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/execx"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/patch"
	"github.com/fmtools/fmsys/pkg/repo"
	"github.com/fmtools/fmsys/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const guruURL = "https://github.com/gentoo/guru.git"

func newManager(t *testing.T) (*testutil.Env, *repo.Manager) {
	t.Helper()
	t.Setenv("GENTOO_MIRRORS", "")
	env := testutil.NewEnv(t)
	// a clone creates the checkout, like git would
	env.Runner.On("git clone", func(cmd execx.Cmd) ([]byte, error) {
		dir := cmd.Args[len(cmd.Args)-1]
		testutil.CreateFileT(t, filepath.Join(dir, "profiles/repo_name"), "guru\n")
		return nil, nil
	})
	env.Runner.On("git -C", func(cmd execx.Cmd) ([]byte, error) {
		if strings.Contains(cmd.String(), "remote.origin.url") {
			return []byte(guruURL + "\n"), nil
		}
		return nil, nil
	})
	patcher := patch.NewRunner(env.FS, env.Runner, env.Config.Patch)
	return env, repo.NewManager(env.FS, env.Config, env.Paths, env.Runner, patcher)
}

func TestCheckMissingPrimaryRepository(t *testing.T) {
	env, m := newManager(t)
	ctx := context.Background()

	err := m.Check(ctx, "gentoo", false)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrRepositoryCheck))
	assert.Contains(t, err.Error(), "does not exist")
	assert.Empty(t, env.Runner.Calls(), "check-only runs nothing")
	assert.False(t, m.Exists("gentoo"))

	require.NoError(t, m.Check(ctx, "gentoo", true))
	assert.True(t, m.Exists("gentoo"))
	assert.Equal(t,
		"[gentoo]\nauto-sync = no\npriority = 5000\nlocation = /var/db/repos/gentoo\n",
		testutil.ReadFileT(t, env.Sys("/etc/portage/repos.conf/repo-gentoo.conf")))

	rsync := env.Runner.CallsTo("rsync")
	require.Len(t, rsync, 1)
	args := rsync[0].Args
	assert.Equal(t, "rsync://rsync.gentoo.org/gentoo-portage/", args[len(args)-2])
	assert.Equal(t, env.Sys("/var/db/repos/gentoo")+"/", args[len(args)-1])

	assert.NoError(t, m.Check(ctx, "gentoo", false))
}

func TestCheckFragmentContent(t *testing.T) {
	env, m := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "gentoo"))

	env.Write(t, "/etc/portage/repos.conf/repo-gentoo.conf", "[gentoo]\nauto-sync = yes\n")
	err := m.Check(ctx, "gentoo", false)
	assert.True(t, errors.IsErrorCode(err, errors.ErrRepositoryCheck))
	assert.Contains(t, err.Error(), "invalid content")

	require.NoError(t, m.Check(ctx, "gentoo", true))
	assert.NoError(t, m.Check(ctx, "gentoo", false))
}

func TestCheckGitRemote(t *testing.T) {
	env, m := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "guru"))
	assert.Equal(t, "guru", repo.RepoName(env.FS, m.Directory("guru")))
	assert.NoError(t, m.Check(ctx, "guru", false))

	env.Runner.On("git -C "+m.Directory("guru")+" config", testutil.Output("https://example.org/fork.git\n"))
	err := m.Check(ctx, "guru", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https://example.org/fork.git")
}

func TestCheckNotADirectory(t *testing.T) {
	env, m := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "gentoo"))
	require.NoError(t, os.RemoveAll(m.Directory("gentoo")))
	env.Write(t, "/var/db/repos/gentoo", "")

	err := m.Check(ctx, "gentoo", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a directory")

	require.NoError(t, m.Check(ctx, "gentoo", true))
	assert.True(t, testutil.IsDir(m.Directory("gentoo")))
	assert.NoError(t, m.Check(ctx, "gentoo", false))
}

func TestSyncAppliesPatches(t *testing.T) {
	env, m := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "guru"))
	script := env.Write(t, "/usr/share/fmsys/patches/guru-s-patch/profiles/fix.sh", "#!/bin/sh\n")
	env.Runner.On(script, testutil.Output("outdated"))

	var out strings.Builder
	require.NoError(t, m.WithOutput(&out).Sync(ctx, "guru"))
	assert.Len(t, env.Runner.CallsTo("git -C "+m.Directory("guru")+" pull"), 1)
	assert.Contains(t, out.String(), "patch profiles/fix.sh for guru is outdated")

	err := m.Sync(ctx, "gentoo")
	assert.True(t, errors.IsErrorCode(err, errors.ErrRepositoryCheck))
}

func TestUnknownRepository(t *testing.T) {
	_, m := newManager(t)
	err := m.Check(context.Background(), "nope", false)
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
	assert.Equal(t, []string{"gentoo", "guru"}, m.List())
}

func TestRepoName(t *testing.T) {
	fsys := filesystem.NewOS()
	dir := t.TempDir()
	assert.Equal(t, "", repo.RepoName(fsys, dir))

	testutil.CreateFileT(t, filepath.Join(dir, "metadata/layout.conf"), "masters = gentoo\nrepo-name = from-layout\n")
	assert.Equal(t, "from-layout", repo.RepoName(fsys, dir))

	testutil.CreateFileT(t, filepath.Join(dir, "profiles/repo_name"), "from-profiles\n")
	assert.Equal(t, "from-profiles", repo.RepoName(fsys, dir))
}

func TestSelectMirror(t *testing.T) {
	env := testutil.NewEnv(t)
	t.Setenv("GENTOO_MIRRORS", "")
	assert.Equal(t, "rsync://default", repo.SelectMirror(env.FS, env.Paths, "rsync://default"))

	env.Write(t, "/etc/portage/make.conf", "COMMON_FLAGS=\"-O2\"\nGENTOO_MIRRORS=\"https://a.example rsync://b.example/gentoo\"\n")
	assert.Equal(t, "rsync://b.example/gentoo", repo.SelectMirror(env.FS, env.Paths, "rsync://default"))

	t.Setenv("GENTOO_MIRRORS", "rsync://env.example/gentoo")
	assert.Equal(t, "rsync://env.example/gentoo", repo.SelectMirror(env.FS, env.Paths, "rsync://default"))
}

func TestFindDuplicates(t *testing.T) {
	fsys := filesystem.NewOS()
	tmp := t.TempDir()
	a, b := filepath.Join(tmp, "gentoo"), filepath.Join(tmp, "guru")
	testutil.WriteTree(t, a, testutil.FileTree{
		"dev-libs": testutil.FileTree{"zzz": testutil.Ebuild("dev-libs/zzz", "1.0")},
		"eclass":   testutil.FileTree{"zzz": testutil.FileTree{"x.ebuild": ""}},
	})
	testutil.WriteTree(t, b, testutil.FileTree{
		"dev-libs": testutil.FileTree{
			"zzz":   testutil.Ebuild("dev-libs/zzz", "1.0"),
			"other": testutil.Ebuild("dev-libs/other", "1.0"),
		},
	})
	before, err := repo.EbuildDirs(fsys, b)
	require.NoError(t, err)

	dups, err := repo.FindDuplicates(fsys, []repo.Source{{Name: "gentoo", Dir: a}, {Name: "guru", Dir: b}})
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, "dev-libs/zzz", dups[0].Package)
	assert.Equal(t, []string{"gentoo", "guru"}, dups[0].Owners)
	assert.Equal(t, "package dev-libs/zzz exists in gentoo and guru", dups[0].String())

	after, err := repo.EbuildDirs(fsys, b)
	require.NoError(t, err)
	assert.Equal(t, before, after, "detection never mutates")
}

func TestFindNameClashes(t *testing.T) {
	fsys := filesystem.NewOS()
	tmp := t.TempDir()
	a, b, c := filepath.Join(tmp, "a"), filepath.Join(tmp, "b"), filepath.Join(tmp, "c")
	testutil.CreateFileT(t, filepath.Join(a, "profiles/repo_name"), "foo\n")
	testutil.CreateFileT(t, filepath.Join(b, "metadata/layout.conf"), "repo-name = foo\n")
	testutil.CreateFileT(t, filepath.Join(c, "profiles/repo_name"), "bar\n")

	clashes := repo.FindNameClashes(fsys, []repo.Source{{Name: "overlay a", Dir: a}, {Name: "overlay b", Dir: b}, {Name: "overlay c", Dir: c}})
	require.Len(t, clashes, 1)
	assert.Equal(t, "foo", clashes[0].RepoName)
	assert.Equal(t, "repo-name foo is declared by overlay a and overlay b", clashes[0].String())
}

func TestClaimedBy(t *testing.T) {
	_, m := newManager(t)
	require.NoError(t, m.Create(context.Background(), "guru"))
	assert.Equal(t, "guru", m.ClaimedBy("guru"))
	assert.Equal(t, "", m.ClaimedBy("foo"))
}
