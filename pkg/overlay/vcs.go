package overlay

import (
	"context"
	"fmt"
	"strings"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/execx"
	"github.com/fmtools/fmsys/pkg/repo"
)

// VCS types
const (
	VCSGit = "git"
	VCSSvn = "svn"
)

// privateMarkers are output fragments of a VCS refusing access to a
// repository that needs credentials this system does not have
var privateMarkers = []string{
	"could not read Username",
	"Authentication failed",
	"Permission denied (publickey)",
	"Repository not found",
	"authorization failed",
	"No more credentials",
}

func validVCS(vcsType string) bool {
	return vcsType == VCSGit || vcsType == VCSSvn
}

func (m *Manager) vcsRun(ctx context.Context, name string, cmds ...execx.Cmd) error {
	for _, c := range cmds {
		out, err := m.exec.Run(ctx, c)
		_, _ = m.out.Write(out)
		if err != nil {
			return classify(name, err)
		}
	}
	return nil
}

// classify turns a VCS failure on a private URL into
// ErrPrivateOverlayInaccessible
func classify(name string, err error) error {
	out := execx.Output(err)
	for _, marker := range privateMarkers {
		if strings.Contains(out, marker) {
			return errors.Wrapf(err, errors.ErrPrivateOverlayInaccessible, "overlay %s is not accessible", name)
		}
	}
	return err
}

func (m *Manager) vcsClone(ctx context.Context, name, vcsType, url, dir string) error {
	switch vcsType {
	case VCSGit:
		return m.vcsRun(ctx, name, execx.Command("git", "clone", "-q", url, dir))
	case VCSSvn:
		return m.vcsRun(ctx, name, execx.Command("svn", "checkout", "-q", url, dir))
	}
	return errors.Newf(errors.ErrInvalidInput, "unsupported vcs type %s", vcsType)
}

func (m *Manager) vcsUpdate(ctx context.Context, name, vcsType, dir string) error {
	switch vcsType {
	case VCSGit:
		return m.vcsRun(ctx, name,
			execx.Command("git", "-C", dir, "reset", "--hard", "-q"),
			execx.Command("git", "-C", dir, "clean", "-fdq"),
			execx.Command("git", "-C", dir, "pull", "-q"))
	case VCSSvn:
		return m.vcsRun(ctx, name,
			execx.Command("svn", "revert", "-q", "-R", dir),
			execx.Command("svn", "update", "-q", dir))
	}
	return errors.Newf(errors.ErrInvalidInput, "unsupported vcs type %s", vcsType)
}

func (m *Manager) vcsRemote(ctx context.Context, vcsType, dir string) (string, error) {
	switch vcsType {
	case VCSGit:
		return repo.GitRemote(ctx, m.exec, dir)
	case VCSSvn:
		out, err := m.exec.Run(ctx, execx.Command("svn", "info", "--show-item", "url", dir))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(out)), nil
	}
	return "", fmt.Errorf("unsupported vcs type %s", vcsType)
}
