package checker

import (
	"context"
	"path/filepath"

	"github.com/fmtools/fmsys/pkg/configdir"
	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/fmtools/fmsys/pkg/repo"
	"github.com/fmtools/fmsys/pkg/usetarget"
)

const (
	autoUseDir      = "package.use"
	primaryRepo     = "gentoo"
	pythonTargetsFn = "profiles/desc/python_targets.desc"
	rubyTargetsFn   = "profiles/desc/ruby_targets.desc"
)

func (c *Checker) checkPortage(_ context.Context, opts Options) error {
	if err := c.configdir.EnsureDirectory(c.paths.PortageConfigDir(), opts.Autofix); err != nil {
		return err
	}
	for _, d := range c.cfg.PortageConfig.Dirs {
		var extras []configdir.Extra
		if d.Name == autoUseDir {
			if extra := c.autoUseExtra(); extra != nil {
				extras = append(extras, extra)
			}
		}
		c.reportAll("portage", c.configdir.Apply(d, opts.Autofix, extras...))
	}
	return nil
}

// autoUseExtra declares the generated python/ruby targets file. It
// returns nil when the primary repository carries no target lists yet,
// e.g. before its first sync.
func (c *Checker) autoUseExtra() configdir.Extra {
	logger := logging.GetLogger("checker.portage")
	dir := c.paths.RepoDir(primaryRepo)
	python, err := latestTarget(filepath.Join(dir, pythonTargetsFn))
	if err != nil {
		logger.Debug().Err(err).Msg("python targets unavailable")
		return nil
	}
	ruby, err := latestTarget(filepath.Join(dir, rubyTargetsFn))
	if err != nil {
		logger.Debug().Err(err).Msg("ruby targets unavailable")
		return nil
	}
	content := usetarget.AutoUseContent(python, ruby)
	return func(s *configdir.Session) []error {
		if err := s.DeclareFile(usetarget.AutoUseFile, content); err != nil {
			return []error{err}
		}
		return nil
	}
}

func latestTarget(descFile string) (string, error) {
	targets, err := usetarget.ReadTargets(descFile)
	if err != nil {
		return "", err
	}
	return usetarget.Latest(targets)
}

func (c *Checker) checkRepositories(ctx context.Context, opts Options) error {
	c.reportAll("repositories", c.repos.CheckAll(ctx, opts.Autofix))

	sources := c.repos.Sources()
	overlaySources, err := c.overlays.Sources()
	if err != nil {
		return err
	}
	for _, clash := range repo.FindNameClashes(c.fs, sources) {
		c.reporter.Errorf("repositories", "%s", clash)
	}
	dups, err := repo.FindDuplicates(c.fs, append(sources, overlaySources...))
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "cannot detect duplicate packages")
	}
	for _, d := range dups {
		c.reporter.Errorf("repositories", "%s", d)
	}
	return nil
}

func (c *Checker) checkOverlays(ctx context.Context, opts Options) error {
	c.reportAll("overlays", c.overlays.CheckAll(ctx, true, opts.Autofix))
	return nil
}

func (c *Checker) checkPackages(ctx context.Context, opts Options) error {
	c.reportAll("packages", c.db.CheckAll(ctx, c.verifier, opts.Autofix))
	return nil
}

func (c *Checker) checkCruft(ctx context.Context, opts Options) error {
	c.reportAll("cruft", c.hierarchy.Sweep(ctx, opts.Autofix))
	return nil
}
