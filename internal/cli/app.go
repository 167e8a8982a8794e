package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/fmtools/fmsys/pkg/checker"
	"github.com/fmtools/fmsys/pkg/config"
	"github.com/fmtools/fmsys/pkg/execx"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/overlay"
	"github.com/fmtools/fmsys/pkg/patch"
	"github.com/fmtools/fmsys/pkg/paths"
	"github.com/fmtools/fmsys/pkg/report"
	"github.com/fmtools/fmsys/pkg/repo"
)

// globals are the persistent flags
type globals struct {
	verbosity  int
	configPath string
	root       string
	runner     execx.Runner
}

// app wires the managers for one command invocation
type app struct {
	fs       filesystem.FS
	cfg      *config.Config
	paths    *paths.Paths
	runner   execx.Runner
	repos    *repo.Manager
	overlays *overlay.Manager
	out      io.Writer
}

func (g *globals) newApp(out io.Writer) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf(MsgErrLoadConfig, err)
	}
	if g.root != "" {
		cfg.Paths.Root = g.root
	}
	p := paths.New(cfg.Paths)
	fsys := filesystem.NewOS()
	patcher := patch.NewRunner(fsys, g.runner, cfg.Patch)
	repos := repo.NewManager(fsys, cfg, p, g.runner, patcher).WithOutput(out)
	return &app{
		fs:       fsys,
		cfg:      cfg,
		paths:    p,
		runner:   g.runner,
		repos:    repos,
		overlays: overlay.NewManager(fsys, cfg, p, g.runner, patcher, repos).WithOutput(out),
		out:      out,
	}, nil
}

func (a *app) checker(r *report.Reporter) (*checker.Checker, error) {
	return checker.New(a.fs, a.cfg, a.paths, a.runner, a.repos, a.overlays, r)
}

// basicCheck guards mutating commands
func (a *app) basicCheck(ctx context.Context) error {
	c, err := a.checker(report.NewCollector())
	if err != nil {
		return err
	}
	if err := c.BasicCheck(ctx); err != nil {
		return fmt.Errorf(MsgErrBasicCheck, err)
	}
	return nil
}
