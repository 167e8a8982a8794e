package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/execx"
)

// Handler produces the result of a faked command. Handlers may touch the
// filesystem to simulate what the real program would do.
type Handler func(cmd execx.Cmd) ([]byte, error)

type route struct {
	prefix  string
	handler Handler
}

// FakeRunner is an execx.Runner that records every command and answers
// from scripted handlers. Unmatched commands succeed with no output.
type FakeRunner struct {
	mu     sync.Mutex
	calls  []execx.Cmd
	routes []route
}

// NewFakeRunner creates an empty fake runner
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// On routes every command whose command line starts with prefix to h.
// Later registrations take precedence.
func (f *FakeRunner) On(prefix string, h Handler) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, route{prefix: prefix, handler: h})
	return f
}

// Run implements execx.Runner
func (f *FakeRunner) Run(_ context.Context, cmd execx.Cmd) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	var h Handler
	line := cmd.String()
	for i := len(f.routes) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, f.routes[i].prefix) {
			h = f.routes[i].handler
			break
		}
	}
	f.mu.Unlock()

	if h == nil {
		return nil, nil
	}
	return h(cmd)
}

// Calls returns every recorded command
func (f *FakeRunner) Calls() []execx.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]execx.Cmd(nil), f.calls...)
}

// Lines returns every recorded command line
func (f *FakeRunner) Lines() []string {
	var lines []string
	for _, c := range f.Calls() {
		lines = append(lines, c.String())
	}
	return lines
}

// CallsTo returns the recorded commands starting with prefix
func (f *FakeRunner) CallsTo(prefix string) []execx.Cmd {
	var out []execx.Cmd
	for _, c := range f.Calls() {
		if strings.HasPrefix(c.String(), prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets the recorded commands, keeping the routes
func (f *FakeRunner) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Output answers with fixed output
func Output(out string) Handler {
	return func(execx.Cmd) ([]byte, error) { return []byte(out), nil }
}

// Fail answers like a command exiting non-zero with output
func Fail(out string) Handler {
	return func(cmd execx.Cmd) ([]byte, error) {
		return []byte(out), errors.Newf(errors.ErrCommandFailed, "%s failed", cmd.String()).
			WithDetail("output", out)
	}
}
