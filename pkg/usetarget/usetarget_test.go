package usetarget_test

import (
	"path/filepath"
	"testing"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/testutil"
	"github.com/fmtools/fmsys/pkg/usetarget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int // sign only
	}{
		{"python3_12", "python3_11", 1},
		{"python3_9", "python3_10", -1},
		{"python3_11", "python3_11", 0},
		{"python3_10", "pypy3", 1},
		{"pypy3_11", "python2_7", -1},
		{"pypy3", "pypy", 1},
		{"pypy", "pypy3", -1},
		{"pypy3_11", "pypy3", 1},
		{"ruby32", "ruby31", 1},
		{"ruby27", "ruby100", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			got, err := usetarget.Compare(tt.a, tt.b)
			require.NoError(t, err)
			switch {
			case tt.want > 0:
				assert.Positive(t, got)
			case tt.want < 0:
				assert.Negative(t, got)
			default:
				assert.Zero(t, got)
			}
		})
	}

	for _, pair := range [][2]string{{"ruby32", "python3_12"}, {"perl5", "perl6"}, {"python", "python3_12"}, {"ruby3x", "ruby31"}} {
		_, err := usetarget.Compare(pair[0], pair[1])
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput), pair)
	}
}

func TestLatest(t *testing.T) {
	got, err := usetarget.Latest([]string{"pypy3", "python3_11", "python3_13", "pypy3_11", "python3_12"})
	require.NoError(t, err)
	assert.Equal(t, "python3_13", got)

	got, err = usetarget.Latest([]string{"ruby31", "ruby33", "ruby32"})
	require.NoError(t, err)
	assert.Equal(t, "ruby33", got)

	_, err = usetarget.Latest(nil)
	assert.Error(t, err)
}

func TestReadTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "python_targets.desc")
	testutil.CreateFileT(t, path, "# Copyright\n\npypy3 - Build for PyPy3 only\npython3_12 - Build with Python 3.12\n")
	got, err := usetarget.ReadTargets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pypy3", "python3_12"}, got)

	_, err = usetarget.ReadTargets(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestAutoUseContent(t *testing.T) {
	assert.Equal(t,
		"# generated by fmsys, do not edit\n"+
			"*/* PYTHON_TARGETS: -* python3_12\n"+
			"*/* PYTHON_SINGLE_TARGET: -* python3_12\n"+
			"*/* RUBY_TARGETS: -* ruby32\n",
		usetarget.AutoUseContent("python3_12", "ruby32"))
	assert.NotContains(t, usetarget.AutoUseContent("python3_12", ""), "RUBY")
}
