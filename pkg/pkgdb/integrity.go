package pkgdb

import (
	"context"

	"github.com/fmtools/fmsys/pkg/errors"
)

// CheckPackage verifies one installed package. A package without CONTENTS
// is reinstalled on autofix and reported otherwise; integrity mismatches
// are only ever reported.
func (db *DB) CheckPackage(ctx context.Context, v *Verifier, pkg string, autofix bool) []error {
	entries, err := db.Contents(pkg)
	if errors.IsErrorCode(err, errors.ErrContentsMissing) && autofix {
		if err := db.Reinstall(ctx, pkg); err != nil {
			return []error{err}
		}
		entries, err = db.Contents(pkg)
	}
	if err != nil {
		return []error{err}
	}

	extra, err := db.ExtraFiles(ctx, pkg)
	if err != nil {
		return []error{err}
	}
	return v.Verify(pkg, entries, extra)
}

// CheckAll verifies every installed package
func (db *DB) CheckAll(ctx context.Context, v *Verifier, autofix bool) []error {
	pkgs, err := db.Packages()
	if err != nil {
		return []error{err}
	}
	var errs []error
	for _, pkg := range pkgs {
		if ctx.Err() != nil {
			return append(errs, ctx.Err())
		}
		errs = append(errs, db.CheckPackage(ctx, v, pkg, autofix)...)
	}
	return errs
}
