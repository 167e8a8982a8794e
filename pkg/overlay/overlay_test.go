package overlay_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/execx"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/overlay"
	"github.com/fmtools/fmsys/pkg/patch"
	"github.com/fmtools/fmsys/pkg/repo"
	"github.com/fmtools/fmsys/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fooURL = "https://example.org/foo.git"

func fooTree() testutil.FileTree {
	return testutil.FileTree{
		"profiles": testutil.FileTree{"repo_name": "foo\n"},
		"metadata": testutil.FileTree{"layout.conf": "masters = gentoo\n"},
		"eclass":   testutil.FileTree{"foo.eclass": "# eclass\n"},
		"app-misc": testutil.FileTree{
			"bar": testutil.Ebuild("app-misc/bar", "1.0", "1.1"),
			"baz": testutil.Ebuild("app-misc/baz", "2.0"),
		},
		"dev-libs": testutil.FileTree{"qux": testutil.Ebuild("dev-libs/qux", "0.1")},
	}
}

// newManager fakes git: a clone writes the upstream tree registered for its
// URL and remembers the remote of the checkout
func newManager(t *testing.T, upstream map[string]testutil.FileTree) (*testutil.Env, *overlay.Manager) {
	t.Helper()
	env := testutil.NewEnv(t)
	remotes := map[string]string{}

	env.Runner.On("git clone", func(cmd execx.Cmd) ([]byte, error) {
		url, dir := cmd.Args[2], cmd.Args[3]
		testutil.WriteTree(t, dir, upstream[url])
		remotes[dir] = url
		return nil, nil
	})
	env.Runner.On("git -C", func(cmd execx.Cmd) ([]byte, error) {
		if strings.Contains(cmd.String(), "remote.origin.url") {
			return []byte(remotes[cmd.Args[1]] + "\n"), nil
		}
		return nil, nil
	})

	patcher := patch.NewRunner(env.FS, env.Runner, env.Config.Patch)
	repos := repo.NewManager(env.FS, env.Config, env.Paths, env.Runner, patcher)
	return env, overlay.NewManager(env.FS, env.Config, env.Paths, env.Runner, patcher, repos)
}

func TestAddTransientOverlay(t *testing.T) {
	env, m := newManager(t, map[string]testutil.FileTree{fooURL: fooTree()})
	ctx := context.Background()

	require.NoError(t, m.AddTransientOverlay(ctx, "foo", overlay.VCSGit, fooURL))

	assert.Equal(t,
		"[foo]\nauto-sync = no\npriority = 7000\nlocation = /var/db/overlays/foo\n"+
			"overlay-type = transient\nsync-type = git\nsync-uri = "+fooURL+"\n",
		testutil.ReadFileT(t, env.Sys("/etc/portage/repos.conf/overlay-foo.conf")))

	live := m.Dir("foo")
	assert.True(t, testutil.Exists(filepath.Join(live, "eclass/foo.eclass")))
	assert.True(t, testutil.Exists(filepath.Join(live, "profiles/repo_name")))
	pkgs, err := overlay.LivePackages(env.FS, live)
	require.NoError(t, err)
	assert.Empty(t, pkgs, "no package is enabled by default")

	o, err := m.Get("foo")
	require.NoError(t, err)
	assert.Equal(t, overlay.Transient, o.Variant)
	assert.Equal(t, "foo", o.RepoName)

	err = m.AddTransientOverlay(ctx, "foo", overlay.VCSGit, fooURL)
	assert.True(t, errors.IsErrorCode(err, errors.ErrAlreadyExists))

	names, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, names)
}

func TestAddOverlayValidation(t *testing.T) {
	_, m := newManager(t, nil)
	ctx := context.Background()

	assert.True(t, errors.IsErrorCode(m.AddTrustedOverlay(ctx, "a/b", overlay.VCSGit, fooURL), errors.ErrInvalidInput))
	assert.True(t, errors.IsErrorCode(m.AddTrustedOverlay(ctx, "foo", "hg", fooURL), errors.ErrInvalidInput))
	assert.True(t, errors.IsErrorCode(m.AddTransientOverlay(ctx, "foo", overlay.VCSGit, ""), errors.ErrInvalidInput))
}

func TestEnableDisablePackage(t *testing.T) {
	env, m := newManager(t, map[string]testutil.FileTree{fooURL: fooTree()})
	ctx := context.Background()
	require.NoError(t, m.AddTransientOverlay(ctx, "foo", overlay.VCSGit, fooURL))

	require.NoError(t, m.EnableOverlayPackage("foo", "app-misc/bar"))
	same, err := filesystem.SameTree(env.FS, filepath.Join(m.FilesDir("foo"), "app-misc/bar"), filepath.Join(m.Dir("foo"), "app-misc/bar"))
	require.NoError(t, err)
	assert.True(t, same)

	err = m.EnableOverlayPackage("foo", "app-misc/bar")
	assert.True(t, errors.IsErrorCode(err, errors.ErrAlreadyExists))

	err = m.EnableOverlayPackage("foo", "app-misc/nope")
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))

	err = m.EnableOverlayPackage("foo", "bar")
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))

	err = m.EnableOverlayPackage("missing", "app-misc/bar")
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))

	// a repository appearing later takes precedence
	env.Tree(t, "/var/db/repos/gentoo", testutil.FileTree{
		"app-misc": testutil.FileTree{"baz": testutil.Ebuild("app-misc/baz", "3.0")},
	})
	err = m.EnableOverlayPackage("foo", "app-misc/baz")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrAlreadyExists))
	assert.Contains(t, err.Error(), "already provided by repository gentoo")

	require.NoError(t, m.DisableOverlayPackage("foo", "app-misc/bar"))
	assert.False(t, testutil.Exists(filepath.Join(m.Dir("foo"), "app-misc")), "empty category is removed")
	err = m.DisableOverlayPackage("foo", "app-misc/bar")
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
}

func TestEnableOnStaticOverlay(t *testing.T) {
	_, m := newManager(t, nil)
	require.NoError(t, m.AddStaticOverlay("local"))
	assert.True(t, testutil.Exists(filepath.Join(m.Dir("local"), "profiles/repo_name")))

	err := m.EnableOverlayPackage("local", "app-misc/bar")
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
	assert.NoError(t, m.CheckOverlay(context.Background(), "local", true, false))
}

func TestRefreshIsDeterministic(t *testing.T) {
	env, m := newManager(t, map[string]testutil.FileTree{fooURL: fooTree()})
	ctx := context.Background()
	require.NoError(t, m.AddTransientOverlay(ctx, "foo", overlay.VCSGit, fooURL))
	require.NoError(t, m.EnableOverlayPackage("foo", "app-misc/bar"))
	require.NoError(t, m.EnableOverlayPackage("foo", "dev-libs/qux"))

	// local edits in the live tree do not survive a refresh
	testutil.CreateFileT(t, filepath.Join(m.Dir("foo"), "app-misc/bar/local.patch"), "x")

	_, err := m.Refresh("foo")
	require.NoError(t, err)
	snapshot := filepath.Join(t.TempDir(), "snapshot")
	require.NoError(t, filesystem.CopyTree(env.FS, m.Dir("foo"), snapshot))

	_, err = m.Refresh("foo")
	require.NoError(t, err)
	same, err := filesystem.SameTree(env.FS, snapshot, m.Dir("foo"))
	require.NoError(t, err)
	assert.True(t, same)
	assert.False(t, testutil.Exists(filepath.Join(m.Dir("foo"), "app-misc/bar/local.patch")))

	pkgs, err := overlay.LivePackages(env.FS, m.Dir("foo"))
	require.NoError(t, err)
	assert.Equal(t, []string{"app-misc/bar", "dev-libs/qux"}, pkgs)
}

func TestRefreshDropsVanishedPackages(t *testing.T) {
	_, m := newManager(t, map[string]testutil.FileTree{fooURL: fooTree()})
	ctx := context.Background()
	require.NoError(t, m.AddTransientOverlay(ctx, "foo", overlay.VCSGit, fooURL))
	require.NoError(t, m.EnableOverlayPackage("foo", "dev-libs/qux"))
	require.NoError(t, os.RemoveAll(filepath.Join(m.FilesDir("foo"), "dev-libs")))

	vanished, err := m.Refresh("foo")
	require.NoError(t, err)
	assert.Equal(t, []string{"dev-libs/qux"}, vanished)
	assert.False(t, testutil.Exists(filepath.Join(m.Dir("foo"), "dev-libs")))
}

func TestRefreshAppliesFixups(t *testing.T) {
	const url = "https://example.org/vmware.git"
	_, m := newManager(t, map[string]testutil.FileTree{url: {
		"profiles": testutil.FileTree{"repo_name": "vmware-overlay\n"},
	}})
	require.NoError(t, m.AddTransientOverlay(context.Background(), "vmware", overlay.VCSGit, url))

	assert.Equal(t, "vmware\n", testutil.ReadFileT(t, filepath.Join(m.Dir("vmware"), "profiles/repo_name")))
	o, err := m.Get("vmware")
	require.NoError(t, err)
	assert.Equal(t, "vmware", o.RepoName)
}

func TestDuplicatePackagesAreRemoved(t *testing.T) {
	env, m := newManager(t, map[string]testutil.FileTree{fooURL: fooTree()})
	env.Tree(t, "/var/db/repos/gentoo", testutil.FileTree{
		"dev-libs": testutil.FileTree{"qux": testutil.Ebuild("dev-libs/qux", "1.0")},
	})

	var out strings.Builder
	require.NoError(t, m.WithOutput(&out).AddTransientOverlay(context.Background(), "foo", overlay.VCSGit, fooURL))

	files := m.FilesDir("foo")
	assert.False(t, testutil.Exists(filepath.Join(files, "dev-libs")))
	assert.True(t, testutil.Exists(filepath.Join(files, "app-misc/bar")))
	assert.Equal(t, []string{"dev-libs/qux"}, overlay.ReadRemoved(env.FS, files))
	assert.Contains(t, out.String(), "Removed dev-libs/qux from overlay foo")
}

// A package deleted upstream makes the overlay empty, so the check removes
// the package and then the whole overlay.
func TestCheckRemovesOverlayWithoutPackages(t *testing.T) {
	_, m := newManager(t, map[string]testutil.FileTree{fooURL: fooTree()})
	ctx := context.Background()
	require.NoError(t, m.AddTransientOverlay(ctx, "foo", overlay.VCSGit, fooURL))
	require.NoError(t, m.EnableOverlayPackage("foo", "app-misc/bar"))
	require.NoError(t, m.CheckOverlay(ctx, "foo", true, false))

	require.NoError(t, os.RemoveAll(filepath.Join(m.FilesDir("foo"), "app-misc/bar")))

	err := m.CheckOverlay(ctx, "foo", true, false)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrOverlayCheck))
	assert.Contains(t, err.Error(), "package app-misc/bar no longer exists upstream")
	assert.True(t, testutil.Exists(filepath.Join(m.Dir("foo"), "app-misc/bar")), "check-only changes nothing")

	require.NoError(t, m.CheckOverlay(ctx, "foo", true, true))
	assert.False(t, m.Exists("foo"))
	assert.False(t, testutil.Exists(m.Dir("foo")))
	assert.False(t, testutil.Exists(m.FilesDir("foo")))
}

func TestCheckRestoresModifiedPackage(t *testing.T) {
	_, m := newManager(t, map[string]testutil.FileTree{fooURL: fooTree()})
	ctx := context.Background()
	require.NoError(t, m.AddTransientOverlay(ctx, "foo", overlay.VCSGit, fooURL))
	require.NoError(t, m.EnableOverlayPackage("foo", "app-misc/bar"))

	ebuild := filepath.Join(m.Dir("foo"), "app-misc/bar/bar-1.0.ebuild")
	testutil.CreateFileT(t, ebuild, "EAPI=7\n")
	testutil.CreateDirT(t, filepath.Join(m.Dir("foo"), "sys-apps"))

	err := m.CheckOverlay(ctx, "foo", false, false)
	assert.NoError(t, err, "content is only compared on request")

	err = m.CheckOverlay(ctx, "foo", true, false)
	require.Error(t, err)
	assert.Len(t, errors.Split(err), 2)
	assert.Contains(t, err.Error(), "package app-misc/bar differs from upstream")
	assert.Contains(t, err.Error(), "category sys-apps is empty")

	require.NoError(t, m.CheckOverlay(ctx, "foo", true, true))
	assert.Equal(t, "EAPI=8\n", testutil.ReadFileT(t, ebuild))
	assert.NoError(t, m.CheckOverlay(ctx, "foo", true, false))
}

func TestCheckFragment(t *testing.T) {
	env, m := newManager(t, map[string]testutil.FileTree{fooURL: fooTree()})
	ctx := context.Background()

	err := m.CheckOverlay(ctx, "foo", false, false)
	assert.True(t, errors.IsErrorCode(err, errors.ErrOverlayCheck))
	assert.Contains(t, err.Error(), "does not exist")

	require.NoError(t, m.AddTransientOverlay(ctx, "foo", overlay.VCSGit, fooURL))
	fragment := "/etc/portage/repos.conf/overlay-foo.conf"
	want := testutil.ReadFileT(t, env.Sys(fragment))

	env.Write(t, fragment, strings.Replace(want, "priority = 7000", "priority = 10", 1))
	err = m.CheckOverlay(ctx, "foo", false, false)
	assert.Contains(t, err.Error(), "has invalid content")

	require.NoError(t, m.CheckOverlay(ctx, "foo", false, true))
	assert.Equal(t, want, testutil.ReadFileT(t, env.Sys(fragment)))

	env.Write(t, fragment, "[foo]\n[bar]\n")
	err = m.CheckOverlay(ctx, "foo", false, true)
	assert.True(t, errors.IsErrorCode(err, errors.ErrOverlayCheck))
	assert.Contains(t, err.Error(), "exactly one section")
}

func TestTrustedOverlay(t *testing.T) {
	const url = "https://example.org/trusted.git"
	env, m := newManager(t, map[string]testutil.FileTree{url: fooTree()})
	ctx := context.Background()

	require.NoError(t, m.AddTrustedOverlay(ctx, "trusted", overlay.VCSGit, url))
	assert.True(t, testutil.Exists(filepath.Join(m.Dir("trusted"), "app-misc/bar/bar-1.0.ebuild")))
	o, err := m.Get("trusted")
	require.NoError(t, err)
	assert.Equal(t, "foo", o.RepoName, "repo-name comes from the checkout")
	assert.NoError(t, m.CheckOverlay(ctx, "trusted", true, false))

	require.NoError(t, os.RemoveAll(m.Dir("trusted")))
	err = m.CheckOverlay(ctx, "trusted", true, false)
	assert.Contains(t, err.Error(), "does not exist")

	require.NoError(t, m.CheckOverlay(ctx, "trusted", true, true))
	assert.Len(t, env.Runner.CallsTo("git clone"), 2)
	assert.NoError(t, m.CheckOverlay(ctx, "trusted", true, false))

	require.NoError(t, m.SyncOverlay(ctx, "trusted"))
	assert.Len(t, env.Runner.CallsTo("git -C "+m.Dir("trusted")+" pull"), 1)
}

func TestTrustedOverlayRollback(t *testing.T) {
	env, m := newManager(t, nil)
	env.Runner.On("git clone", testutil.Fail("fatal: could not read Username for 'https://example.org'"))

	err := m.AddTrustedOverlay(context.Background(), "private", overlay.VCSGit, fooURL)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrPrivateOverlayInaccessible))
	assert.False(t, testutil.Exists(m.Dir("private")))
	assert.False(t, m.Exists("private"))
}

func TestSyncPrivateOverlayIsNotice(t *testing.T) {
	env, m := newManager(t, map[string]testutil.FileTree{fooURL: fooTree()})
	ctx := context.Background()
	require.NoError(t, m.AddTransientOverlay(ctx, "foo", overlay.VCSGit, fooURL))
	env.Runner.On("git -C "+m.FilesDir("foo")+" pull", testutil.Fail("remote: Repository not found."))

	var out strings.Builder
	require.NoError(t, m.WithOutput(&out).SyncOverlay(ctx, "foo"))
	assert.Contains(t, out.String(), "NOTICE: overlay foo is private and not accessible")

	env.Runner.On("git -C "+m.FilesDir("foo")+" pull", testutil.Fail("fatal: unable to access"))
	assert.True(t, errors.IsErrorCode(m.SyncOverlay(ctx, "foo"), errors.ErrCommandFailed))
}

func TestSyncStaticOverlay(t *testing.T) {
	env, m := newManager(t, nil)
	require.NoError(t, m.AddStaticOverlay("local"))

	var out strings.Builder
	require.NoError(t, m.WithOutput(&out).SyncOverlay(context.Background(), "local"))
	assert.Contains(t, out.String(), "static")
	assert.Empty(t, env.Runner.Calls())
}

func TestRemoveOverlay(t *testing.T) {
	_, m := newManager(t, map[string]testutil.FileTree{fooURL: fooTree()})
	require.NoError(t, m.AddTransientOverlay(context.Background(), "foo", overlay.VCSGit, fooURL))

	require.NoError(t, m.RemoveOverlay("foo"))
	assert.False(t, m.Exists("foo"))
	assert.False(t, testutil.Exists(m.FilesDir("foo")))
	require.NoError(t, m.RemoveOverlay("foo"), "removing twice is fine")
}

func TestSourcesAndCheckAll(t *testing.T) {
	_, m := newManager(t, map[string]testutil.FileTree{fooURL: fooTree()})
	ctx := context.Background()
	require.NoError(t, m.AddTransientOverlay(ctx, "foo", overlay.VCSGit, fooURL))
	require.NoError(t, m.AddStaticOverlay("local"))

	srcs, err := m.Sources()
	require.NoError(t, err)
	require.Len(t, srcs, 2)
	assert.Equal(t, "overlay foo", srcs[0].Name)

	require.NoError(t, os.RemoveAll(m.Dir("local")))
	errs := m.CheckAll(ctx, true, false)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "overlay foo has no enabled package")
	assert.Contains(t, errs[1].Error(), "overlay local")
}

func TestRepoNameMustBeUnique(t *testing.T) {
	const aURL, bURL = "https://example.org/a.git", "https://example.org/b.git"
	_, m := newManager(t, map[string]testutil.FileTree{aURL: fooTree(), bURL: fooTree()})
	ctx := context.Background()

	require.NoError(t, m.AddTrustedOverlay(ctx, "a", overlay.VCSGit, aURL))

	err := m.AddTrustedOverlay(ctx, "b", overlay.VCSGit, bURL)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrAlreadyExists))
	assert.Contains(t, err.Error(), "repo-name foo of overlay b is already used by overlay a")
	assert.False(t, m.Exists("b"))
	assert.False(t, testutil.Exists(m.Dir("b")), "the checkout is rolled back")

	err = m.AddTransientOverlay(ctx, "c", overlay.VCSGit, bURL)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrAlreadyExists))
	assert.False(t, m.Exists("c"))

	assert.Empty(t, m.CheckAll(ctx, true, false))
}

func TestRepoNameClaimedByRepository(t *testing.T) {
	const url = "https://example.org/guru-fork.git"
	env, m := newManager(t, map[string]testutil.FileTree{url: {
		"profiles": testutil.FileTree{"repo_name": "guru\n"},
	}})
	ctx := context.Background()
	guru := testutil.FileTree{"profiles": testutil.FileTree{"repo_name": "guru\n"}}

	env.Tree(t, "/var/db/repos/guru", guru)
	err := m.AddTrustedOverlay(ctx, "fork", overlay.VCSGit, url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already used by repository guru")
	assert.False(t, m.Exists("fork"))

	// the repository appears after the overlay was added
	require.NoError(t, os.RemoveAll(env.Sys("/var/db/repos/guru")))
	require.NoError(t, m.AddTrustedOverlay(ctx, "fork", overlay.VCSGit, url))
	env.Tree(t, "/var/db/repos/guru", guru)

	for _, autofix := range []bool{false, true} {
		errs := m.CheckAll(ctx, true, autofix)
		require.Len(t, errs, 1)
		assert.True(t, errors.IsErrorCode(errs[0], errors.ErrOverlayCheck))
		assert.Contains(t, errs[0].Error(), "overlay fork: repo-name guru is also used by repository guru")
		assert.True(t, m.Exists("fork"), "a clash is never resolved by deleting")
	}
}
