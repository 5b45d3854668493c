package rtos

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCmdline(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cmdline.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestCheckEnvironmentAbortsWithoutRoot(t *testing.T) {
	c := NewChecker(nil)
	c.Geteuid = func() int { return 1000 }
	c.CmdlinePath = writeCmdline(t, "console=ttyAMA0")

	err := c.Run()
	assert.Error(t, err)
}

func TestCheckEnvironmentPassesAsRootWithAllFlagsPresent(t *testing.T) {
	c := NewChecker(nil)
	c.Geteuid = func() int { return 0 }
	c.CmdlinePath = writeCmdline(t,
		"console=ttyAMA0 isolcpus=2-3 rcu_nocbs=2-3 nohz_full=1-3 kthread_cpus=0-1 nosoftlockup rcu_nocb_poll")

	assert.NoError(t, c.Run())
}

func TestCheckEnvironmentWarnsNotFatalOnMissingFlags(t *testing.T) {
	c := NewChecker(nil)
	c.Geteuid = func() int { return 0 }
	c.CmdlinePath = writeCmdline(t, "console=ttyAMA0")

	assert.NoError(t, c.Run())
}

func TestCheckEnvironmentToleratesUnreadableCmdline(t *testing.T) {
	c := NewChecker(nil)
	c.Geteuid = func() int { return 0 }
	c.CmdlinePath = filepath.Join(t.TempDir(), "does-not-exist.txt")

	assert.NoError(t, c.Run())
}
