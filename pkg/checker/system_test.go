package checker

import (
	"context"
	"testing"

	"github.com/fmtools/fmsys/pkg/report"
	"github.com/fmtools/fmsys/pkg/storage"
	"github.com/fmtools/fmsys/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocale(t *testing.T) {
	env, c, r := newChecker(t)
	env.Write(t, "/etc/locale.gen", "#en_US ISO-8859-1\nde_DE.UTF-8 UTF-8")
	ctx := context.Background()

	c.reportAll("os", []error{c.checkLocale(ctx, false)})
	assert.Len(t, in(r, "os", report.Error), 2)
	assert.Empty(t, env.Runner.Calls())

	r.Reset()
	require.NoError(t, c.checkLocale(ctx, true))
	assert.Equal(t, "#en_US ISO-8859-1\nde_DE.UTF-8 UTF-8\nen_US.UTF-8 UTF-8\n", testutil.ReadFileT(t, env.Sys("/etc/locale.gen")))
	assert.Equal(t, "LANG=\"en_US.UTF-8\"\n", testutil.ReadFileT(t, env.Sys("/etc/env.d/02locale")))
	assert.Len(t, env.Runner.CallsTo("locale-gen"), 1)

	assert.NoError(t, c.checkLocale(ctx, false))
	assert.NoError(t, c.checkLocale(ctx, true))
	assert.Len(t, env.Runner.CallsTo("locale-gen"), 1, "nothing to regenerate")
}

func TestUdevBrokenRules(t *testing.T) {
	env, c, _ := newChecker(t)
	env.Write(t, "/lib/udev/rules.d/60-ok.rules", "")
	testutil.CreateSymlinkT(t, "../../../lib/udev/rules.d/60-ok.rules", env.Sys("/etc/udev/rules.d/60-ok.rules"))
	testutil.CreateSymlinkT(t, "../../../lib/udev/rules.d/70-gone.rules", env.Sys("/etc/udev/rules.d/70-gone.rules"))
	testutil.CreateSymlinkT(t, "/dev/null", env.Sys("/etc/udev/rules.d/80-net.rules"))
	ctx := context.Background()

	err := c.checkUdev(ctx, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/etc/udev/rules.d/70-gone.rules is a broken symlink")
	assert.NotContains(t, err.Error(), "60-ok")

	_ = c.checkUdev(ctx, true)
	assert.False(t, testutil.IsSymlink(env.Sys("/etc/udev/rules.d/70-gone.rules")))
	assert.True(t, testutil.IsSymlink(env.Sys("/etc/udev/rules.d/80-net.rules")))
}

func TestPam(t *testing.T) {
	env, c, _ := newChecker(t)
	env.Write(t, "/etc/pam.d/system-auth", "")
	env.Write(t, "/etc/pam.d/other", "")

	err := c.checkPam(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/etc/pam.d/system-login does not exist")

	env.Write(t, "/etc/pam.d/system-login", "")
	assert.NoError(t, c.checkPam(context.Background(), false))
}

func TestSwap(t *testing.T) {
	env, c, _ := newChecker(t)
	swap := storage.Swap(&storage.BiosExt4{Disk: "/dev/sda", Root: "/dev/sda2"})
	env.Write(t, "/proc/swaps", "Filename\tType\tSize\tUsed\tPriority\n")
	ctx := context.Background()

	assert.NoError(t, c.checkSwap(ctx, swap, false), "no swap file, nothing to activate")

	env.Write(t, swap, "")
	err := c.checkSwap(ctx, swap, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "swap "+swap+" is not active")
	assert.Empty(t, env.Runner.Calls())

	require.NoError(t, c.checkSwap(ctx, swap, true))
	assert.Equal(t, []string{"swapon " + swap}, env.Runner.Lines())

	env.Write(t, "/proc/swaps", "Filename\tType\tSize\tUsed\tPriority\n"+swap+"\tfile\t4194300\t0\t-2\n")
	assert.NoError(t, c.checkSwap(ctx, swap, false))
}

func TestBootStage(t *testing.T) {
	env, c, r := newChecker(t)
	env.Write(t, "/usr/src/linux-6.6.1/Makefile", "")
	testutil.CreateSymlinkT(t, "linux-6.6.1", env.Sys("/usr/src/linux"))
	env.Write(t, "/boot/kernel-6.6.1", "")
	env.Write(t, "/boot/initramfs-6.6.1", "")
	env.Write(t, "/boot/kernel-6.5.0", "")

	require.NoError(t, c.checkBoot(context.Background(), Options{}))
	errs := in(r, "boot", report.Error)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "6.5.0")
}
