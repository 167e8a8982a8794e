package checker

import (
	"bufio"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/logging"
)

const (
	passwdFile  = "/etc/passwd"
	groupFile   = "/etc/group"
	shadowFile  = "/etc/shadow"
	gshadowFile = "/etc/gshadow"
)

// accountDB is one colon separated account file. Entries keep file order.
type accountDB struct {
	path    string
	entries [][]string
}

func (c *Checker) readAccounts(path string, minFields int) (*accountDB, error) {
	f, err := c.fs.Open(c.paths.Sys(path))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSystem, "cannot read %s", path)
	}
	defer func() { _ = f.Close() }()

	db := &accountDB{path: path}
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < minFields {
			return nil, errors.Newf(errors.ErrSystem, "%s:%d: expected %d fields, found %d", path, n, minFields, len(fields))
		}
		db.entries = append(db.entries, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrSystem, "cannot read %s", path)
	}
	return db, nil
}

// names returns the first field of every entry and reports the duplicates
func (db *accountDB) names() (map[string][]string, []error) {
	out := map[string][]string{}
	var errs []error
	for _, e := range db.entries {
		if _, ok := out[e[0]]; ok {
			errs = append(errs, errors.Newf(errors.ErrSystem, "%s has duplicate entry %s", db.path, e[0]))
			continue
		}
		out[e[0]] = e
	}
	return out, errs
}

func (c *Checker) appendAccounts(path string, lines []string) error {
	host := c.paths.Sys(path)
	info, err := c.fs.Stat(host)
	if err != nil {
		return errors.Wrapf(err, errors.ErrSystem, "cannot stat %s", path)
	}
	data, err := filesystem.ReadFile(c.fs, host)
	if err != nil {
		return errors.Wrapf(err, errors.ErrSystem, "cannot read %s", path)
	}
	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += strings.Join(lines, "\n") + "\n"
	if err := c.fs.WriteFile(host, []byte(content), info.Mode().Perm()); err != nil {
		return errors.Wrapf(err, errors.ErrSystem, "cannot write %s", path)
	}
	return nil
}

// checkUsers cross-checks passwd, group, shadow and gshadow. Missing
// shadow and gshadow entries are added on autofix with a locked password;
// every other inconsistency is only reported.
func (c *Checker) checkUsers(_ context.Context, opts Options) error {
	passwd, err := c.readAccounts(passwdFile, 7)
	if err != nil {
		return err
	}
	group, err := c.readAccounts(groupFile, 4)
	if err != nil {
		return err
	}
	shadow, err := c.readAccounts(shadowFile, 9)
	if err != nil {
		return err
	}
	gshadow, err := c.readAccounts(gshadowFile, 4)
	if err != nil {
		return err
	}

	var errs []error
	users, e := passwd.names()
	errs = append(errs, e...)
	groups, e := group.names()
	errs = append(errs, e...)
	shadowed, e := shadow.names()
	errs = append(errs, e...)
	gshadowed, e := gshadow.names()
	errs = append(errs, e...)

	gids := map[string]bool{}
	for _, g := range group.entries {
		gids[g[2]] = true
	}
	for _, u := range passwd.entries {
		if !gids[u[3]] {
			errs = append(errs, errors.Newf(errors.ErrSystem, "user %s has primary group %s which does not exist", u[0], u[3]))
		}
	}

	var addShadow, addGshadow []string
	for _, u := range passwd.entries {
		if _, ok := shadowed[u[0]]; !ok && !slices.Contains(addShadow, u[0]) {
			addShadow = append(addShadow, u[0])
		}
	}
	for _, g := range group.entries {
		if _, ok := gshadowed[g[0]]; !ok && !slices.Contains(addGshadow, g[0]) {
			addGshadow = append(addGshadow, g[0])
		}
	}
	for _, s := range shadow.entries {
		if _, ok := users[s[0]]; !ok {
			errs = append(errs, errors.Newf(errors.ErrSystem, "%s has entry %s without user", shadowFile, s[0]))
		}
	}
	for _, s := range gshadow.entries {
		if _, ok := groups[s[0]]; !ok {
			errs = append(errs, errors.Newf(errors.ErrSystem, "%s has entry %s without group", gshadowFile, s[0]))
		}
	}

	if !opts.Autofix {
		for _, n := range addShadow {
			errs = append(errs, errors.Newf(errors.ErrSystem, "user %s has no entry in %s", n, shadowFile))
		}
		for _, n := range addGshadow {
			errs = append(errs, errors.Newf(errors.ErrSystem, "group %s has no entry in %s", n, gshadowFile))
		}
	} else {
		errs = append(errs, c.addShadowEntries(addShadow, addGshadow, groups)...)
	}
	c.reportAll("users", errs)
	return nil
}

func (c *Checker) addShadowEntries(users, groups []string, groupEntries map[string][]string) []error {
	logger := logging.GetLogger("checker.users")
	var errs []error
	if len(users) > 0 {
		lines := make([]string, 0, len(users))
		for _, n := range users {
			lines = append(lines, n+":!*"+strings.Repeat(":", 7))
		}
		logger.Info().Strs("users", users).Msg("adding shadow entries")
		if err := c.appendAccounts(shadowFile, lines); err != nil {
			errs = append(errs, err)
		}
	}
	if len(groups) > 0 {
		lines := make([]string, 0, len(groups))
		for _, n := range groups {
			lines = append(lines, fmt.Sprintf("%s:!::%s", n, groupEntries[n][3]))
		}
		logger.Info().Strs("groups", groups).Msg("adding gshadow entries")
		if err := c.appendAccounts(gshadowFile, lines); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

