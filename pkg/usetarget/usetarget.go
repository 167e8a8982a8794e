// Package usetarget picks the newest python and ruby implementations a
// repository offers and renders the package.use file selecting them.
package usetarget

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fmtools/fmsys/pkg/errors"
)

// AutoUseFile is the package.use entry holding the selected targets
const AutoUseFile = "98-autouse-targets"

type family int

const (
	python family = iota
	pypy
	ruby
)

type target struct {
	family  family
	version []int
}

// parse splits a target name into its family and numeric version:
// python3_12 -> python [3 12], pypy3_10 -> pypy [3 10], pypy -> pypy [],
// ruby32 -> ruby [32]
func parse(name string) (target, error) {
	var t target
	var rest string
	switch {
	case strings.HasPrefix(name, "python"):
		t.family, rest = python, strings.TrimPrefix(name, "python")
	case strings.HasPrefix(name, "pypy"):
		t.family, rest = pypy, strings.TrimPrefix(name, "pypy")
	case strings.HasPrefix(name, "ruby"):
		t.family, rest = ruby, strings.TrimPrefix(name, "ruby")
	default:
		return t, errors.Newf(errors.ErrInvalidInput, "unknown target %q", name)
	}
	if rest == "" {
		if t.family != pypy {
			return t, errors.Newf(errors.ErrInvalidInput, "target %q has no version", name)
		}
		return t, nil
	}
	for _, part := range strings.Split(rest, "_") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return t, errors.Newf(errors.ErrInvalidInput, "invalid version in target %q", name)
		}
		t.version = append(t.version, n)
	}
	return t, nil
}

// Compare orders two targets of the same language: it returns a negative
// number when a is older than b, zero when equal, positive when newer.
//
// Any pythonX_Y beats any pypy. pypy3 beats pypy. Otherwise versions
// compare numerically, part by part.
func Compare(a, b string) (int, error) {
	ta, err := parse(a)
	if err != nil {
		return 0, err
	}
	tb, err := parse(b)
	if err != nil {
		return 0, err
	}

	switch {
	case ta.family == ruby && tb.family == ruby:
	case ta.family == ruby || tb.family == ruby:
		return 0, errors.Newf(errors.ErrInvalidInput, "cannot compare %s with %s", a, b)
	case ta.family == python && tb.family == pypy:
		return 1, nil
	case ta.family == pypy && tb.family == python:
		return -1, nil
	}
	return compareVersions(ta.version, tb.version), nil
}

func compareVersions(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] - b[i]
		}
	}
	return len(a) - len(b)
}

// Latest returns the newest of targets
func Latest(targets []string) (string, error) {
	if len(targets) == 0 {
		return "", errors.New(errors.ErrInvalidInput, "no targets")
	}
	best := targets[0]
	if _, err := parse(best); err != nil {
		return "", err
	}
	for _, t := range targets[1:] {
		c, err := Compare(t, best)
		if err != nil {
			return "", err
		}
		if c > 0 {
			best = t
		}
	}
	return best, nil
}

// ReadTargets reads the target names of a profiles/desc/*_targets.desc
// file
func ReadTargets(descFile string) ([]string, error) {
	f, err := os.Open(descFile)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, _, _ := strings.Cut(line, " ")
		out = append(out, name)
	}
	return out, sc.Err()
}

// AutoUseContent renders the package.use file selecting the given python
// and ruby targets. An empty target leaves its language out.
func AutoUseContent(pythonTarget, rubyTarget string) string {
	var b strings.Builder
	b.WriteString("# generated by fmsys, do not edit\n")
	if pythonTarget != "" {
		fmt.Fprintf(&b, "*/* PYTHON_TARGETS: -* %s\n", pythonTarget)
		fmt.Fprintf(&b, "*/* PYTHON_SINGLE_TARGET: -* %s\n", pythonTarget)
	}
	if rubyTarget != "" {
		fmt.Fprintf(&b, "*/* RUBY_TARGETS: -* %s\n", rubyTarget)
	}
	return b.String()
}
