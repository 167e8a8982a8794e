package checker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fmtools/fmsys/pkg/errors"
	"github.com/fmtools/fmsys/pkg/execx"
	"github.com/fmtools/fmsys/pkg/filesystem"
	"github.com/fmtools/fmsys/pkg/logging"
	"github.com/fmtools/fmsys/pkg/storage"
)

const (
	localeGenFile = "/etc/locale.gen"
	localeEnvFile = "/etc/env.d/02locale"
	udevRulesDir  = "/etc/udev/rules.d"
	pamDir        = "/etc/pam.d"
)

func (c *Checker) checkHardware(ctx context.Context, opts Options) error {
	machine, err := c.hw.Machine(ctx)
	if err != nil {
		// virtual machines and containers often lack DMI tables
		c.reporter.Warnf("hardware", "cannot identify machine: %s", message(err))
	} else {
		logger := logging.GetLogger("checker.hardware")
		logger.Info().Str("machine", machine).Msg("machine identified")
	}
	if !opts.DeepHardware {
		return nil
	}
	layout, err := c.detector.Detect()
	if err != nil {
		return err
	}
	for _, disk := range storage.Disks(layout) {
		if err := c.hw.HealthCheck(ctx, disk); err != nil {
			c.reporter.Errorf("hardware", "%s", message(err))
		}
	}
	return nil
}

func (c *Checker) checkStorage(_ context.Context, _ Options) error {
	layout, err := c.detector.Detect()
	if err != nil {
		return err
	}
	c.layout = layout
	logger := logging.GetLogger("checker.storage")
	logger.Info().Str("layout", layout.Name()).Msg("storage layout detected")
	return nil
}

func (c *Checker) checkFilesystem(ctx context.Context, opts Options) error {
	c.reportAll("filesystem", c.hierarchy.CheckLayout(opts.Autofix))
	if !opts.DeepFileSystem {
		return nil
	}
	if c.layout == nil {
		c.reporter.Warnf("filesystem", "storage layout unknown, superblock check skipped")
		return nil
	}
	return c.checkSuperblock(ctx, storage.RootDevice(c.layout))
}

// checkSuperblock reads the ext4 superblock of dev and requires a clean
// state with no recorded errors
func (c *Checker) checkSuperblock(ctx context.Context, dev string) error {
	out, err := c.exec.Run(ctx, execx.Command("tune2fs", "-l", dev))
	if err != nil {
		return errors.Wrapf(err, errors.ErrCommandFailed, "cannot read superblock of %s", dev)
	}
	fields := map[string]string{}
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), ":")
		if ok {
			fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	if state := fields["Filesystem state"]; state != "clean" {
		c.reporter.Errorf("filesystem", "filesystem on %s is in state %q", dev, state)
	}
	if n, _ := strconv.Atoi(fields["FS Error count"]); n > 0 {
		c.reporter.Errorf("filesystem", "filesystem on %s recorded %d errors", dev, n)
	}
	return nil
}

func (c *Checker) checkBoot(ctx context.Context, _ Options) error {
	if err := c.boot.CheckRepositories(ctx); err != nil {
		c.reporter.Errorf("boot", "%s", message(err))
	}
	entries, err := c.boot.BootEntries()
	c.reportAll("boot", []error{err})
	if err == nil && len(entries) == 0 {
		c.reporter.Errorf("boot", "no kernel installed in %s", c.paths.Unroot(c.paths.BootDir()))
	}
	return nil
}

// checkOS runs the operating system sub-checks. Each one is independent;
// a swap check needs the storage layout and is skipped without it.
func (c *Checker) checkOS(ctx context.Context, opts Options) error {
	for _, sub := range []func(context.Context, bool) error{c.checkLocale, c.checkUdev, c.checkPam} {
		if err := sub(ctx, opts.Autofix); err != nil {
			c.reportAll("os", []error{err})
		}
	}
	if c.layout == nil {
		c.reporter.Warnf("os", "storage layout unknown, swap check skipped")
		return nil
	}
	c.reportAll("os", []error{c.checkSwap(ctx, storage.Swap(c.layout), opts.Autofix)})
	return nil
}

func (c *Checker) checkLocale(ctx context.Context, autofix bool) error {
	loc := c.cfg.Locale
	genLine := loc.Lang + " " + loc.Charset
	envContent := fmt.Sprintf("LANG=\"%s\"\n", loc.Lang)

	var errs []error
	gen, _ := filesystem.ReadFile(c.fs, c.paths.Sys(localeGenFile))
	genOK := false
	for _, l := range strings.Split(string(gen), "\n") {
		if strings.Join(strings.Fields(l), " ") == genLine {
			genOK = true
		}
	}
	env, _ := filesystem.ReadFile(c.fs, c.paths.Sys(localeEnvFile))
	envOK := string(env) == envContent

	if genOK && envOK {
		return nil
	}
	if !autofix {
		if !genOK {
			errs = append(errs, errors.Newf(errors.ErrSystem, "locale %s is not enabled in %s", genLine, localeGenFile))
		}
		if !envOK {
			errs = append(errs, errors.Newf(errors.ErrSystem, "%s does not select %s", localeEnvFile, loc.Lang))
		}
		return errors.Join(errs...)
	}

	if !genOK {
		content := string(gen)
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		if err := writeSys(c, localeGenFile, content+genLine+"\n"); err != nil {
			return err
		}
	}
	if !envOK {
		if err := writeSys(c, localeEnvFile, envContent); err != nil {
			return err
		}
	}
	if _, err := c.exec.Run(ctx, execx.Command("locale-gen")); err != nil {
		return errors.Wrap(err, errors.ErrCommandFailed, "locale-gen failed")
	}
	return nil
}

// checkUdev rejects rules symlinks whose target is gone
func (c *Checker) checkUdev(_ context.Context, autofix bool) error {
	dir := c.paths.Sys(udevRulesDir)
	entries, err := c.fs.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot read %s", udevRulesDir)
	}
	var errs []error
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.Type()&os.ModeSymlink == 0 || !strings.HasSuffix(e.Name(), ".rules") {
			continue
		}
		if _, err := c.fs.Stat(path); err == nil {
			continue
		}
		if !autofix {
			errs = append(errs, errors.Newf(errors.ErrSystem, "udev rule %s is a broken symlink", c.paths.Unroot(path)))
			continue
		}
		if err := c.fs.Remove(path); err != nil {
			errs = append(errs, errors.Wrapf(err, errors.ErrInternal, "cannot remove %s", c.paths.Unroot(path)))
		}
	}
	return errors.Join(errs...)
}

func (c *Checker) checkPam(_ context.Context, _ bool) error {
	var errs []error
	for _, name := range c.cfg.Pam.Required {
		p := filepath.Join(pamDir, name)
		if !filesystem.Exists(c.fs, c.paths.Sys(p)) {
			errs = append(errs, errors.Newf(errors.ErrSystem, "PAM configuration %s does not exist", p))
		}
	}
	return errors.Join(errs...)
}

// checkSwap requires the swap of the layout to be active when it exists
func (c *Checker) checkSwap(ctx context.Context, swap string, autofix bool) error {
	if !filesystem.Exists(c.fs, c.paths.Sys(swap)) {
		return nil
	}
	active, err := c.activeSwaps()
	if err != nil {
		return err
	}
	if active[swap] {
		return nil
	}
	if !autofix {
		return errors.Newf(errors.ErrSystem, "swap %s is not active", swap)
	}
	if _, err := c.exec.Run(ctx, execx.Command("swapon", swap)); err != nil {
		return errors.Wrapf(err, errors.ErrCommandFailed, "cannot activate swap %s", swap)
	}
	return nil
}

func (c *Checker) activeSwaps() (map[string]bool, error) {
	f, err := c.fs.Open(c.paths.Proc("swaps"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "cannot read /proc/swaps")
	}
	defer func() { _ = f.Close() }()

	out := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 && fields[0] != "Filename" {
			out[fields[0]] = true
		}
	}
	return out, sc.Err()
}

func writeSys(c *Checker, path, content string) error {
	host := c.paths.Sys(path)
	if err := c.fs.MkdirAll(filepath.Dir(host), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot create %s", filepath.Dir(path))
	}
	if err := c.fs.WriteFile(host, []byte(content), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "cannot write %s", path)
	}
	return nil
}
