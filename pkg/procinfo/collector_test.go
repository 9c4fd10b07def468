//go:build linux

package procinfo

import (
	"errors"
	"testing"

	"github.com/ja7ad/memstats/pkg/shm"
	"github.com/ja7ad/memstats/pkg/system/cgroup"
	"github.com/ja7ad/memstats/pkg/system/proc"
	"github.com/ja7ad/memstats/pkg/types"
	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPageSize = 4096

type fakeProcess struct {
	pid     int
	cmdline []string
	uid     uint32
	env     map[string]string
	cgroups []procfs.Cgroup
	err     error
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Cmdline() ([]string, error) { return p.cmdline, p.err }

func (p *fakeProcess) UID() (uint32, error) { return p.uid, nil }

func (p *fakeProcess) Comm() (string, error) { return "fake", nil }

func (p *fakeProcess) Environ() (map[string]string, error) { return p.env, nil }

func (p *fakeProcess) Status() (proc.Status, error) { return proc.Status{PTE: 8192}, nil }

func (p *fakeProcess) FDCount() (int, error) { return 3, nil }

func (p *fakeProcess) Cgroups() ([]procfs.Cgroup, error) { return p.cgroups, nil }

type fakeMemory struct {
	maps  []proc.Mapping
	pages map[uint64][]proc.PagemapEntry
}

func (m *fakeMemory) Maps(int) ([]proc.Mapping, error) {
	if m.maps == nil {
		return nil, errors.New("no such file or directory")
	}
	return m.maps, nil
}

func (m *fakeMemory) WalkPages(_ int, mp proc.Mapping, fn func(proc.PagemapEntry)) error {
	if mp.Kind == proc.Vsyscall {
		return errors.New("vsyscall read")
	}
	es, ok := m.pages[mp.Start]
	if !ok {
		return errors.New("unreadable")
	}
	for _, e := range es {
		fn(e)
	}
	return nil
}

func mapping(start uint64, pages int, kind proc.MapKind) proc.Mapping {
	return proc.Mapping{Start: start, End: start + uint64(pages*testPageSize), Kind: kind}
}

func TestCollect(t *testing.T) {
	seg := proc.ShmSegment{Key: 7, ID: 70, Size: testPageSize, RSS: testPageSize}
	sysv := mapping(0x5000, 1, proc.SysV)
	sysv.ShmKey, sysv.Inode = 7, 70
	stray := mapping(0x6000, 1, proc.SysV)
	stray.ShmKey, stray.Inode = 8, 80

	mem := &fakeMemory{
		maps: []proc.Mapping{
			mapping(0x1000, 2, proc.Path),
			mapping(0x3000, 2, proc.Heap),
			sysv,
			stray,
			mapping(0x7000, 1, proc.Anonymous),
			mapping(0x8000, 1, proc.Vsyscall),
		},
		pages: map[uint64][]proc.PagemapEntry{
			0x1000: {proc.NewPresentEntry(10), proc.NewSwappedEntry(types.SwapSlot{Type: 0, Offset: 1})},
			0x3000: {proc.NewPresentEntry(20), proc.NewSwappedEntry(types.SwapSlot{Type: 0, Offset: 2})},
			0x5000: {proc.NewPresentEntry(99)},
		},
	}
	c := &Collector{
		Memory:        mem,
		Shm:           shm.Metadata{seg.Identity(): {Segment: seg}},
		PageSize:      testPageSize,
		CgroupVersion: cgroup.V2,
	}
	p := &fakeProcess{
		pid:     42,
		cmdline: []string{"/bin/fake"},
		uid:     1000,
		env:     map[string]string{"HOME": "/home/fake"},
		cgroups: []procfs.Cgroup{{HierarchyID: 0, Path: "/user.slice"}},
	}

	info, err := c.Collect(p)
	require.NoError(t, err)

	t.Run("identity", func(t *testing.T) {
		assert.Equal(t, 42, info.PID())
		assert.Equal(t, uint32(1000), info.Owner())
		v, ok := info.Env("HOME")
		assert.True(t, ok)
		assert.Equal(t, "/home/fake", v)
		assert.Equal(t, "/user.slice", info.Cgroup)
	})

	t.Run("anon_is_subset", func(t *testing.T) {
		assert.Equal(t, types.NewPFNSet(10, 20), info.PFNs)
		assert.Equal(t, types.NewPFNSet(20), info.AnonPFNs)
		assert.Len(t, info.Swap, 2)
		assert.True(t, info.AnonSwap.Has(types.SwapSlot{Offset: 2}))
		assert.False(t, info.AnonSwap.Has(types.SwapSlot{Offset: 1}))
	})

	t.Run("shm_pages_not_walked", func(t *testing.T) {
		assert.False(t, info.PFNs.Has(99))
		assert.Contains(t, info.Shm, seg.Identity())
		assert.Contains(t, info.UnknownShm, proc.ShmID{Key: 8, ID: 80})
	})

	t.Run("scalars", func(t *testing.T) {
		assert.Equal(t, uint64(2*testPageSize), info.RSS)
		assert.Equal(t, uint64(7*testPageSize), info.VSZ, "vsyscall excluded")
		assert.Equal(t, uint64(8192), info.PTE)
		assert.Equal(t, 3, info.FDs)
	})
}

func TestCollect_Errors(t *testing.T) {
	c := &Collector{Memory: &fakeMemory{}, PageSize: testPageSize}

	t.Run("kernel_process", func(t *testing.T) {
		_, err := c.Collect(&fakeProcess{pid: 2})
		require.ErrorIs(t, err, ErrKernelProcess)
	})

	t.Run("vanished_on_cmdline", func(t *testing.T) {
		_, err := c.Collect(&fakeProcess{pid: 3, err: errors.New("ENOENT")})
		require.ErrorIs(t, err, ErrVanished)
	})

	t.Run("vanished_on_maps", func(t *testing.T) {
		_, err := c.Collect(&fakeProcess{pid: 4, cmdline: []string{"x"}})
		require.ErrorIs(t, err, ErrVanished)
	})
}
