package configdir_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fmtools/fmsys/pkg/config"
	"github.com/fmtools/fmsys/pkg/configdir"
	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const templates = "/usr/share/fmsys/portage/package.use"

func setup(t *testing.T) (*testutil.Env, *configdir.Rules, string) {
	t.Helper()
	env := testutil.NewEnv(t)
	env.Write(t, templates+"/base", "sys-apps/foo bar\n")
	env.Write(t, templates+"/bugs", "")
	return env, configdir.New(env.FS, env.Paths), env.Paths.PortageDir("package.use")
}

func TestEnsureDirectory(t *testing.T) {
	_, rules, dir := setup(t)

	err := rules.EnsureDirectory(dir, false)
	assert.True(t, errors.IsErrorCode(err, errors.ErrDirMissing))
	assert.False(t, testutil.Exists(dir))

	testutil.CreateFileT(t, dir, "not a dir")
	err = rules.EnsureDirectory(dir, false)
	assert.True(t, errors.IsErrorCode(err, errors.ErrNotADir))
	assert.True(t, errors.IsStructural(err))

	require.NoError(t, rules.EnsureDirectory(dir, true))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "not a dir", testutil.ReadFileT(t, dir+".orig"))
}

func TestDeclareSymlinkConditions(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, dir string)
		code    errors.ErrorCode
	}{
		{
			name:    "missing",
			prepare: func(t *testing.T, dir string) {},
			code:    errors.ErrSymlinkMissing,
		},
		{
			name: "not_a_symlink",
			prepare: func(t *testing.T, dir string) {
				testutil.CreateFileT(t, filepath.Join(dir, "01-base"), "local edits\n")
			},
			code: errors.ErrNotASymlink,
		},
		{
			name: "wrong_target",
			prepare: func(t *testing.T, dir string) {
				testutil.CreateSymlinkT(t, templates+"/bugs", filepath.Join(dir, "01-base"))
			},
			code: errors.ErrSymlinkWrongTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rules, dir := setup(t)
			testutil.CreateDirT(t, dir)
			tt.prepare(t, dir)

			s, err := rules.Begin(dir, false)
			require.NoError(t, err)
			name, err := s.DeclareSymlink("0?-base", templates, "base")
			assert.Equal(t, "01-base", name)
			assert.True(t, errors.IsErrorCode(err, tt.code), "got %v", err)
			require.NoError(t, s.End())

			// second pass with autofix converges
			s, err = rules.Begin(dir, true)
			require.NoError(t, err)
			_, err = s.DeclareSymlink("0?-base", templates, "base")
			require.NoError(t, err)
			require.NoError(t, s.End())
			assert.Equal(t, templates+"/base", testutil.ReadSymlinkT(t, filepath.Join(dir, "01-base")))
		})
	}
}

func TestRegularFileMovedAside(t *testing.T) {
	_, rules, dir := setup(t)
	testutil.CreateFileT(t, filepath.Join(dir, "01-base"), "local edits\n")
	testutil.CreateFileT(t, filepath.Join(dir, "90-unknown"), "earlier\n")

	s, err := rules.Begin(dir, true)
	require.NoError(t, err)
	_, err = s.DeclareSymlink("0?-base", templates, "base")
	require.NoError(t, err)
	require.NoError(t, s.End())

	assert.Equal(t, templates+"/base", testutil.ReadSymlinkT(t, filepath.Join(dir, "01-base")))
	assert.Equal(t, "earlier\n", testutil.ReadFileT(t, filepath.Join(dir, "90-unknown")))
	assert.Equal(t, "local edits\n", testutil.ReadFileT(t, filepath.Join(dir, "90-unknown-1")))
}

func TestEndPrunesOnlyWithAutofix(t *testing.T) {
	_, rules, dir := setup(t)
	testutil.CreateSymlinkT(t, templates+"/bugs", filepath.Join(dir, "05-stale"))
	testutil.CreateFileT(t, filepath.Join(dir, "50-mine"), "free-form\n")

	s, err := rules.Begin(dir, false)
	require.NoError(t, err)
	require.NoError(t, s.End(), "orphans are not reported without autofix")
	assert.True(t, testutil.IsSymlink(filepath.Join(dir, "05-stale")))

	s, err = rules.Begin(dir, true)
	require.NoError(t, err)
	require.NoError(t, s.End())
	assert.False(t, testutil.Exists(filepath.Join(dir, "05-stale")))
	assert.Equal(t, "free-form\n", testutil.ReadFileT(t, filepath.Join(dir, "50-mine")))
}

func TestDeclareEmptyFile(t *testing.T) {
	_, rules, dir := setup(t)
	testutil.CreateDirT(t, dir)

	s, _ := rules.Begin(dir, false)
	err := s.DeclareEmptyFile("99-local")
	assert.True(t, errors.IsErrorCode(err, errors.ErrFileMissing))

	s, _ = rules.Begin(dir, true)
	require.NoError(t, s.DeclareEmptyFile("99-local"))
	assert.Equal(t, "", testutil.ReadFileT(t, filepath.Join(dir, "99-local")))

	testutil.CreateFileT(t, filepath.Join(dir, "99-local"), "keep me\n")
	s, _ = rules.Begin(dir, true)
	require.NoError(t, s.DeclareEmptyFile("99-local"))
	assert.Equal(t, "keep me\n", testutil.ReadFileT(t, filepath.Join(dir, "99-local")))
}

func TestDeclareFile(t *testing.T) {
	_, rules, dir := setup(t)
	testutil.CreateFileT(t, filepath.Join(dir, "98-autouse"), "old\n")

	s, _ := rules.Begin(dir, false)
	err := s.DeclareFile("98-autouse", "new\n")
	assert.True(t, errors.IsErrorCode(err, errors.ErrFileContentMismatch))

	s, _ = rules.Begin(dir, true)
	require.NoError(t, s.DeclareFile("98-autouse", "new\n"))
	assert.Equal(t, "new\n", testutil.ReadFileT(t, filepath.Join(dir, "98-autouse")))
}

func TestCanonicalMissing(t *testing.T) {
	_, rules, dir := setup(t)
	s, err := rules.Begin(dir, true)
	require.NoError(t, err)
	_, err = s.DeclareSymlink("0?-gone", templates, "gone")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCanonicalMissing))
}

func TestApplyIdempotent(t *testing.T) {
	env, rules, dir := setup(t)
	pd := config.PortageDir{
		Name:       "package.use",
		Links:      []config.Link{{Slot: "0?-base", Target: "base"}, {Slot: "0?-bugs", Target: "bugs"}},
		EmptyFiles: []string{"99-local"},
	}
	testutil.CreateFileT(t, filepath.Join(dir, "01-base"), "regular\n")
	testutil.CreateSymlinkT(t, "/nowhere", filepath.Join(dir, "07-orphan"))

	errs := rules.Apply(pd, false)
	assert.Len(t, errs, 3, "01-base, 02-bugs and 99-local are reported")

	assert.Empty(t, rules.Apply(pd, true))
	assert.Empty(t, rules.Apply(pd, true), "second autofix run is clean")
	assert.Empty(t, rules.Apply(pd, false))

	assert.Equal(t, templates+"/bugs", testutil.ReadSymlinkT(t, env.Sys("/etc/portage/package.use/02-bugs")))
	assert.False(t, testutil.Exists(filepath.Join(dir, "07-orphan")))
	assert.Equal(t, "regular\n", testutil.ReadFileT(t, filepath.Join(dir, "90-unknown")))
}
