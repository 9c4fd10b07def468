//go:build linux

package instance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ja7ad/memstats/pkg/system/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProc struct {
	pid     int
	cmdline []string
	env     map[string]string
}

func (p fakeProc) PID() int                            { return p.pid }
func (p fakeProc) Cmdline() ([]string, error)          { return p.cmdline, nil }
func (p fakeProc) UID() (uint32, error)                { return 54321, nil }
func (p fakeProc) Environ() (map[string]string, error) { return p.env, nil }

func oraEnv(sid string) map[string]string {
	return map[string]string{EnvSID: sid, EnvHome: "/u01/app/oracle/product/19c"}
}

func TestFindMonitors(t *testing.T) {
	procs := []fakeProc{
		{pid: 10, cmdline: []string{"ora_smon_PROD"}, env: oraEnv("PROD")},
		{pid: 11, cmdline: []string{"asm_smon_+ASM"}, env: oraEnv("+ASM")},
		{pid: 12, cmdline: []string{"ora_pmon_PROD"}, env: oraEnv("PROD")},
		{pid: 13, cmdline: []string{"ora_smon_X", "--flag"}, env: oraEnv("X")},
		{pid: 14, cmdline: []string{"ora_smon_NOENV"}},
		{pid: 15, cmdline: nil},
	}
	got := FindMonitors(procs)
	require.Len(t, got, 2)
	assert.Equal(t, Monitor{PID: 10, UID: 54321, SID: "PROD", Home: "/u01/app/oracle/product/19c"}, got[0])
	assert.Equal(t, "+ASM", got[1].SID)
}

type fakeDescriber map[int]Record

func (d fakeDescriber) Describe(_ context.Context, m Monitor) (Record, error) {
	r, ok := d[m.PID]
	if !ok {
		return Record{}, errors.New("ORA-01034: ORACLE not available")
	}
	return r, nil
}

func TestDiscover(t *testing.T) {
	d := fakeDescriber{
		1: {PID: 1, SID: "SMALL", SGASize: 1 << 30},
		2: {PID: 2, SID: "BIG", SGASize: 8 << 30},
	}
	monitors := []Monitor{{PID: 1, SID: "SMALL"}, {PID: 2, SID: "BIG"}, {PID: 3, SID: "DOWN"}}

	records, err := Discover(context.Background(), d, monitors)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOWN")
	require.Len(t, records, 2)
	assert.Equal(t, "BIG", records[0].SID)
	assert.Equal(t, "SMALL", records[1].SID)
}

func TestLabel(t *testing.T) {
	sysv := func(key int32, id uint64) proc.Mapping {
		return proc.Mapping{Kind: proc.SysV, ShmKey: key, Inode: id}
	}
	maps := map[int][]proc.Mapping{
		1: {sysv(1, 100), sysv(1, 100), {Kind: proc.Heap}},
		2: {sysv(1, 100), sysv(2, 200)},
	}
	records := []Record{{PID: 1, SID: "A"}, {PID: 2, SID: "B"}, {PID: 3, SID: "GONE"}}

	got := Label(records, func(pid int) ([]proc.Mapping, error) {
		ms, ok := maps[pid]
		if !ok {
			return nil, os.ErrNotExist
		}
		return ms, nil
	})
	assert.Equal(t, map[proc.ShmID][]string{
		{Key: 1, ID: 100}: {"A", "B"},
		{Key: 2, ID: 200}: {"B"},
	}, got)
}

func TestRecordFromEnv(t *testing.T) {
	env := map[string]string{
		EnvSID:        "PROD",
		EnvSGASize:    "4294967296",
		EnvPGASize:    "1073741824",
		EnvProcesses:  "120",
		EnvLargePages: "ONLY",
	}
	getenv := func(k string) string { return env[k] }

	t.Run("complete", func(t *testing.T) {
		r, err := RecordFromEnv(42, getenv)
		require.NoError(t, err)
		assert.Equal(t, Record{PID: 42, SID: "PROD", SGASize: 4 << 30, LargePages: "ONLY", Processes: 120, PGASize: 1 << 30}, r)
	})

	t.Run("missing_sid", func(t *testing.T) {
		_, err := RecordFromEnv(42, func(string) string { return "" })
		require.ErrorIs(t, err, ErrNoSID)
	})

	t.Run("bad_number", func(t *testing.T) {
		env[EnvProcesses] = "many"
		defer func() { env[EnvProcesses] = "120" }()
		_, err := RecordFromEnv(42, getenv)
		require.Error(t, err)
	})
}

func TestCommand_Describe(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skipf("switching credentials needs root")
	}

	script := filepath.Join(t.TempDir(), "helper.sh")
	body := "#!/bin/sh\nprintf '{\"pid\":%s,\"sid\":\"%s\",\"sga_size\":1024,\"large_pages\":\"%s\"}' \"$2\" \"$ORACLE_SID\" \"$LD_LIBRARY_PATH\"\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	c := Command{Path: script}
	r, err := c.Describe(context.Background(), Monitor{PID: 77, UID: 0, SID: "PROD", Home: "/opt/ora"})
	require.NoError(t, err)
	assert.Equal(t, Record{PID: 77, SID: "PROD", SGASize: 1024, LargePages: "/opt/ora/lib"}, r)
}
