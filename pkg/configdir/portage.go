package configdir

import (
	"github.com/fmtools/fmsys/pkg/config"
)

// Extra lets a caller declare additional entries in a session before it
// ends, e.g. generated files
type Extra func(s *Session) []error

// Apply runs one full session over a configured package.* directory. Every
// slot is checked even when an earlier one failed; the per-slot errors are
// returned together. A directory that cannot be entered yields that single
// error.
func (r *Rules) Apply(dir config.PortageDir, autofix bool, extras ...Extra) []error {
	s, err := r.Begin(r.paths.PortageDir(dir.Name), autofix)
	if err != nil {
		return []error{err}
	}

	var errs []error
	templateDir := r.paths.DataTemplateDir(dir.Name)
	for _, l := range dir.Links {
		if _, err := s.DeclareSymlink(l.Slot, templateDir, l.Target); err != nil {
			errs = append(errs, err)
		}
	}
	for _, f := range dir.EmptyFiles {
		if err := s.DeclareEmptyFile(f); err != nil {
			errs = append(errs, err)
		}
	}
	for _, extra := range extras {
		errs = append(errs, extra(s)...)
	}
	if err := s.End(); err != nil {
		errs = append(errs, err)
	}
	return errs
}
