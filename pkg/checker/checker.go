// Package checker verifies a whole system against its declared baseline
// and, on request, repairs it.
//
// Every check runs in one of two modes. Without autofix nothing on the
// system changes and each violation becomes a finding. With autofix the
// check converges the system to a state the check-only mode accepts, and
// reports only what it cannot repair.
//
// A full check is a fixed sequence of stages. A stage that cannot proceed
// becomes one Error finding naming the stage; the remaining stages run
// regardless. Inside a stage, independent items (a file, a package, an
// overlay) each produce their own findings and never stop their siblings.
package checker

import (
	"context"
	"fmt"

	"github.com/fmtools/fmsys/pkg/boot"
	"github.com/fmtools/fmsys/pkg/config"
	"github.com/fmtools/fmsys/pkg/configdir"
	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/execx"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/fsh"
	"github.com/fmtools/fmsys/pkg/hwinfo"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/fmtools/fmsys/pkg/overlay"
	"github.com/fmtools/fmsys/pkg/paths"
	"github.com/fmtools/fmsys/pkg/pkgdb"
	"github.com/fmtools/fmsys/pkg/report"
	"github.com/fmtools/fmsys/pkg/repo"
	"github.com/fmtools/fmsys/pkg/storage"
)

// Options select what a full check does
type Options struct {
	Autofix bool
	// DeepHardware adds a SMART health check of every disk
	DeepHardware bool
	// DeepFileSystem adds a superblock health check of the root filesystem
	DeepFileSystem bool
}

// Checker runs the checks. Collaborators are created by New and may be
// replaced through the With methods.
type Checker struct {
	fs       filesystem.FS
	cfg      *config.Config
	paths    *paths.Paths
	exec     execx.Runner
	reporter *report.Reporter

	configdir *configdir.Rules
	repos     *repo.Manager
	overlays  *overlay.Manager
	db        *pkgdb.DB
	verifier  *pkgdb.Verifier
	hierarchy *fsh.Hierarchy
	detector  *storage.Detector
	boot      boot.Chain
	hw        *hwinfo.Cache

	// layout is the storage layout found by the last full check; nil when
	// detection failed
	layout storage.Layout
}

// New creates a Checker inspecting the system through fsys and reporting
// to r
func New(fsys filesystem.FS, cfg *config.Config, p *paths.Paths, runner execx.Runner, repos *repo.Manager, overlays *overlay.Manager, r *report.Reporter) (*Checker, error) {
	rules, err := fsh.DefaultRules()
	if err != nil {
		return nil, err
	}
	db := pkgdb.New(fsys, p, runner)
	return &Checker{
		fs:        fsys,
		cfg:       cfg,
		paths:     p,
		exec:      runner,
		reporter:  r,
		configdir: configdir.New(fsys, p),
		repos:     repos,
		overlays:  overlays,
		db:        db,
		verifier:  pkgdb.NewVerifier(fsys, p, cfg.Owner),
		hierarchy: fsh.New(fsys, p, rules, cfg.Cruft, db),
		detector:  storage.NewDetector(fsys, p),
		boot:      boot.NewDirChain(p),
		hw:        hwinfo.NewCache(runner),
	}, nil
}

// WithBootChain replaces the boot tooling
func (c *Checker) WithBootChain(b boot.Chain) *Checker {
	c.boot = b
	return c
}

// WithHierarchy replaces the filesystem hierarchy rules
func (c *Checker) WithHierarchy(rules *fsh.Rules) *Checker {
	c.hierarchy = fsh.New(c.fs, c.paths, rules, c.cfg.Cruft, c.db)
	return c
}

// Layout returns the storage layout the last full check detected
func (c *Checker) Layout() storage.Layout {
	return c.layout
}

// stage is one domain of the full check. run reports per-item findings
// itself and returns an error only when the whole domain failed.
type stage struct {
	name string
	run  func(ctx context.Context, opts Options) error
}

func (c *Checker) stages() []stage {
	return []stage{
		{"hardware", c.checkHardware},
		{"storage", c.checkStorage},
		{"filesystem", c.checkFilesystem},
		{"boot", c.checkBoot},
		{"os", c.checkOS},
		{"portage", c.checkPortage},
		{"repositories", c.checkRepositories},
		{"overlays", c.checkOverlays},
		{"users", c.checkUsers},
		{"packages", c.checkPackages},
		{"cruft", c.checkCruft},
	}
}

// BasicCheck is the cheap check-only subset run before mutating
// operations: portage configuration directories, repositories and
// overlays without content. It returns the first violation found.
func (c *Checker) BasicCheck(ctx context.Context) error {
	if err := c.configdir.EnsureDirectory(c.paths.PortageConfigDir(), false); err != nil {
		return err
	}
	for _, d := range c.cfg.PortageConfig.Dirs {
		if errs := c.configdir.Apply(d, false); len(errs) > 0 {
			return errs[0]
		}
	}
	for _, name := range c.repos.List() {
		if err := c.repos.Check(ctx, name, false); err != nil {
			return err
		}
	}
	names, err := c.overlays.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := c.overlays.CheckOverlay(ctx, name, false, false); err != nil {
			return err
		}
	}
	return nil
}

// FullCheck runs every stage in order. Findings go to the reporter; the
// returned error is only set when ctx ended the pass early.
func (c *Checker) FullCheck(ctx context.Context, opts Options) error {
	logger := logging.GetLogger("checker")
	defer logging.LogOperationStart(logger, "full check")()
	c.layout = nil

	for _, s := range c.stages() {
		if err := ctx.Err(); err != nil {
			return err
		}
		stageLogger := logging.GetLogger("checker." + s.name)
		stageLogger.Debug().Bool("autofix", opts.Autofix).Msg("stage started")

		if err := s.run(ctx, opts); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stageLogger.Error().Err(err).Msg("stage failed")
			c.reporter.Errorf(s.name, "%v", errors.Wrapf(err, errors.ErrDomainFailed, "%s check failed", s.name))
		}
	}
	return nil
}

// reportAll turns per-item errors into Error findings
func (c *Checker) reportAll(domain string, errs []error) {
	for _, err := range errs {
		for _, e := range errors.Split(err) {
			c.reporter.Errorf(domain, "%s", message(e))
		}
	}
}

// message renders an error for a finding, without the code prefix when
// the error is one of ours
func message(err error) string {
	var fe *errors.FmError
	if errors.As(err, &fe) && fe.Wrapped == nil {
		return fe.Message
	}
	return fmt.Sprint(err)
}
