// Package execx runs external commands. Everything fmsys delegates to the
// system (git, rsync, emerge, ebuild, patch scripts, dmidecode) goes through
// a Runner so tests can substitute a fake.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/google/shlex"
	"golang.org/x/sys/unix"
)

// DefaultSignalGrace is how long the OS runner waits after a child was
// killed by a signal, so that the signal can reach fmsys itself first.
const DefaultSignalGrace = time.Second

// Cmd describes one command invocation
type Cmd struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current directory
	Dir string
	// Env is appended to the environment
	Env []string
	// MinimalEnv starts the child with Env only, nothing inherited
	MinimalEnv bool
	// StdoutOnly returns stdout alone; stderr is logged and, on failure,
	// kept in the error's "stderr" detail
	StdoutOnly bool
}

// Command builds a Cmd
func Command(name string, args ...string) Cmd {
	return Cmd{Name: name, Args: args}
}

// InDir returns a copy of c running in dir
func (c Cmd) InDir(dir string) Cmd {
	c.Dir = dir
	return c
}

// OnlyStdout returns a copy of c whose result holds stdout alone
func (c Cmd) OnlyStdout() Cmd {
	c.StdoutOnly = true
	return c
}

// String renders the command line
func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner runs a command and returns its combined stdout and stderr, or
// stdout alone for a StdoutOnly command. A non-zero exit is reported as an ErrCommandFailed error; the captured
// output is still returned.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) ([]byte, error)
}

// OSRunner runs commands with os/exec
type OSRunner struct {
	SignalGrace time.Duration
}

// NewRunner creates an OS runner
func NewRunner() *OSRunner {
	return &OSRunner{SignalGrace: DefaultSignalGrace}
}

// Run implements Runner
func (r *OSRunner) Run(ctx context.Context, c Cmd) ([]byte, error) {
	logging.LogCommand(c.Name, c.Args)

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if c.MinimalEnv {
		cmd.Env = append([]string{}, c.Env...)
	} else if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var buf, stderr bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if c.StdoutOnly {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	out := buf.Bytes()
	if stderr.Len() > 0 {
		logger := logging.GetLogger("execx")
		logger.Info().Str("command", c.String()).Str("stderr", stderr.String()).Msg("command wrote to stderr")
	}
	if err == nil {
		return out, nil
	}

	if signaled(err) && r.SignalGrace > 0 {
		time.Sleep(r.SignalGrace)
	}
	fail := errors.Wrapf(err, errors.ErrCommandFailed, "%s failed", c.String()).
		WithDetail("output", string(out))
	if c.StdoutOnly {
		fail = fail.WithDetail("stderr", stderr.String())
	}
	return out, fail
}

// signaled reports whether err comes from a process terminated by a signal
func signaled(err error) bool {
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	ws, ok := ee.Sys().(syscall.WaitStatus)
	if !ok {
		return false
	}
	return unix.WaitStatus(ws).Signaled()
}

// Split splits a shell-quoted argument string from configuration
func Split(s string) ([]string, error) {
	args, err := shlex.Split(s)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "cannot split %q", s)
	}
	return args, nil
}

// Expand splits a command template and replaces every {key} placeholder
// in its words
func Expand(template string, vars map[string]string) (Cmd, error) {
	words, err := Split(template)
	if err != nil {
		return Cmd{}, err
	}
	if len(words) == 0 {
		return Cmd{}, errors.New(errors.ErrInvalidInput, "empty command template")
	}
	for i, w := range words {
		for k, v := range vars {
			w = strings.ReplaceAll(w, "{"+k+"}", v)
		}
		words[i] = w
	}
	return Command(words[0], words[1:]...), nil
}

// Output returns the command output recorded in an ErrCommandFailed error
func Output(err error) string {
	if out, ok := errors.GetErrorDetails(err)["output"].(string); ok {
		return out
	}
	return ""
}

// Stderr returns the stderr recorded in an ErrCommandFailed error of a
// StdoutOnly command
func Stderr(err error) string {
	if out, ok := errors.GetErrorDetails(err)["stderr"].(string); ok {
		return out
	}
	return ""
}

// LookPath reports an ErrNotFound error naming the program when it is
// not installed
func LookPath(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return errors.Wrap(err, errors.ErrNotFound, fmt.Sprintf("%s is not installed", name))
	}
	return nil
}
