package fsh

import (
	"os"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/logging"
)

const modeMask = os.ModePerm | os.ModeSticky | os.ModeSetgid | os.ModeSetuid

// CheckLayout verifies the required directories. Autofix creates missing
// ones and corrects modes; something else in a directory's place is only
// reported.
func (h *Hierarchy) CheckLayout(autofix bool) []error {
	logger := logging.GetLogger("fsh")
	var errs []error

	for _, d := range h.rules.Directories {
		host := h.paths.Sys(d.Path)
		want := d.Mode.FileMode()

		info, err := h.fs.Lstat(host)
		switch {
		case os.IsNotExist(err):
			if !autofix {
				errs = append(errs, errors.Newf(errors.ErrLayout, "directory %s does not exist", d.Path))
				continue
			}
			logger.Info().Str("path", d.Path).Msg("creating directory")
			if err := h.fs.MkdirAll(host, 0755); err != nil {
				errs = append(errs, errors.Wrapf(err, errors.ErrLayout, "cannot create %s", d.Path))
				continue
			}
			if err := h.fs.Chmod(host, want); err != nil {
				errs = append(errs, errors.Wrapf(err, errors.ErrLayout, "cannot set mode of %s", d.Path))
			}
		case err != nil:
			errs = append(errs, errors.Wrapf(err, errors.ErrLayout, "cannot stat %s", d.Path))
		case !info.IsDir():
			errs = append(errs, errors.Newf(errors.ErrLayout, "%s is not a directory", d.Path))
		case info.Mode()&modeMask != want:
			if !autofix {
				errs = append(errs, errors.Newf(errors.ErrLayout, "directory %s has mode %s instead of %s", d.Path, info.Mode()&modeMask, want))
				continue
			}
			if err := h.fs.Chmod(host, want); err != nil {
				errs = append(errs, errors.Wrapf(err, errors.ErrLayout, "cannot set mode of %s", d.Path))
			}
		}
	}
	return errs
}
