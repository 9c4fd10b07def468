//go:build linux

package proc

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageSize(t *testing.T) {
	t.Setenv("PAGE_SIZE", "")
	assert.Greater(t, PageSize(), 0, "PageSize must be > 0")

	t.Setenv("PAGE_SIZE", "16384")
	assert.Equal(t, 16384, PageSize())

	t.Setenv("PAGE_SIZE", "garbage")
	assert.Equal(t, os.Getpagesize(), PageSize())
}

func TestFS_Self(t *testing.T) {
	fs, err := NewFS("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRoot, fs.Root())

	self, err := fs.Self()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), self.PID())

	t.Run("cmdline_and_comm", func(t *testing.T) {
		cmd, err := self.Cmdline()
		require.NoError(t, err)
		assert.NotEmpty(t, cmd)

		comm, err := self.Comm()
		require.NoError(t, err)
		assert.NotEmpty(t, comm)
	})

	t.Run("uid_matches_process_owner", func(t *testing.T) {
		uid, err := self.UID()
		require.NoError(t, err)
		assert.Equal(t, uint32(os.Getuid()), uid)
	})

	t.Run("environ", func(t *testing.T) {
		env, err := self.Environ()
		require.NoError(t, err)
		// the environment of a running process is fixed at exec time
		if v, ok := os.LookupEnv("PATH"); ok {
			assert.Equal(t, v, env["PATH"])
		}
	})

	t.Run("ppid", func(t *testing.T) {
		ppid, err := self.PPID()
		require.NoError(t, err)
		assert.Equal(t, os.Getppid(), ppid)
	})

	t.Run("status_and_fds", func(t *testing.T) {
		st, err := self.Status()
		require.NoError(t, err)
		assert.Greater(t, st.RSS, uint64(0))
		assert.GreaterOrEqual(t, st.HWM, st.RSS)

		n, err := self.FDCount()
		require.NoError(t, err)
		assert.Greater(t, n, 0)
	})

	t.Run("self_rss", func(t *testing.T) {
		rss, err := fs.SelfRSS()
		require.NoError(t, err)
		assert.Greater(t, rss, uint64(0))
	})

	t.Run("mem_available", func(t *testing.T) {
		avail, err := fs.MemAvailable()
		if err != nil {
			t.Skipf("skipping: meminfo without MemAvailable: %v", err)
		}
		assert.Greater(t, avail, uint64(0))
	})
}

func TestFS_AllProcs(t *testing.T) {
	fs, err := NewFS("")
	require.NoError(t, err)

	procs, err := fs.AllProcs()
	require.NoError(t, err)

	found := false
	for _, p := range procs {
		if p.PID() == os.Getpid() {
			found = true
		}
	}
	assert.True(t, found, "self must be listed")
}

func TestProc_Vanished(t *testing.T) {
	cmd := exec.Command("sleep", "0.05")
	if err := cmd.Start(); err != nil {
		t.Skipf("skipping: cannot spawn sleep: %v", err)
	}
	pid := cmd.Process.Pid

	fs, err := NewFS("")
	require.NoError(t, err)
	p, err := fs.Proc(pid)
	require.NoError(t, err)

	require.NoError(t, cmd.Wait())
	time.Sleep(10 * time.Millisecond)

	_, err = p.Cmdline()
	assert.Error(t, err, "reads on a reaped process must fail")
	_, err = p.UID()
	assert.Error(t, err)
}

func TestRequireRoot(t *testing.T) {
	err := RequireRoot()
	if os.Geteuid() == 0 {
		assert.NoError(t, err)
	} else {
		assert.ErrorIs(t, err, ErrNotRoot)
	}
}
