//go:build linux

package procinfo

import (
	"fmt"
	"log/slog"

	"github.com/ja7ad/memstats/pkg/shm"
	"github.com/ja7ad/memstats/pkg/system/cgroup"
	"github.com/ja7ad/memstats/pkg/system/proc"
	"github.com/prometheus/procfs"
)

// Process is the live handle the collector reads from. *proc.Proc
// implements it.
type Process interface {
	PID() int
	Cmdline() ([]string, error)
	UID() (uint32, error)
	Comm() (string, error)
	Environ() (map[string]string, error)
	Status() (proc.Status, error)
	FDCount() (int, error)
}

type cgroupReader interface {
	Cgroups() ([]procfs.Cgroup, error)
}

// Collector builds Info snapshots against one shm inventory. It is safe for
// concurrent use: Shm is only read.
type Collector struct {
	Memory   shm.Memory
	Shm      shm.Metadata
	PageSize int
	Logger   *slog.Logger

	// CgroupVersion selects which hierarchy names Info.Cgroup. Unsupported
	// leaves Cgroup empty.
	CgroupVersion cgroup.Version
}

func (c *Collector) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func vanished(pid int, what string, err error) error {
	return fmt.Errorf("%w: pid %d: %s: %v", ErrVanished, pid, what, err)
}

// Collect walks every mapping of p. SysV mappings are attributed through
// the shm metadata instead of being walked. A mapping whose page table
// cannot be read is skipped; any other read failure means p vanished.
func (c *Collector) Collect(p Process) (*Info, error) {
	pid := p.PID()

	cmdline, err := p.Cmdline()
	if err != nil {
		return nil, vanished(pid, "cmdline", err)
	}
	if len(cmdline) == 0 {
		return nil, fmt.Errorf("%w: pid %d", ErrKernelProcess, pid)
	}
	uid, err := p.UID()
	if err != nil {
		return nil, vanished(pid, "uid", err)
	}
	comm, err := p.Comm()
	if err != nil {
		return nil, vanished(pid, "comm", err)
	}
	env, err := p.Environ()
	if err != nil {
		return nil, vanished(pid, "environ", err)
	}
	status, err := p.Status()
	if err != nil {
		return nil, vanished(pid, "status", err)
	}
	fds, err := p.FDCount()
	if err != nil {
		return nil, vanished(pid, "fd", err)
	}
	maps, err := c.Memory.Maps(pid)
	if err != nil {
		return nil, vanished(pid, "maps", err)
	}

	info := New(pid, uid, comm, env)
	info.Cmdline = cmdline
	info.PTE = status.PTE
	info.FDs = fds

	if cr, ok := p.(cgroupReader); ok && c.CgroupVersion != cgroup.Unsupported {
		if lines, err := cr.Cgroups(); err == nil {
			info.Cgroup = cgroup.Path(c.CgroupVersion, lines)
		}
	}

	ps := uint64(c.PageSize)
	if ps == 0 {
		ps = uint64(proc.PageSize())
	}

	for _, m := range maps {
		if m.Kind == proc.Vsyscall {
			continue
		}
		info.VSZ += m.Size()

		if m.Kind == proc.SysV {
			id := m.ShmID()
			if e, ok := c.Shm[id]; ok {
				info.Shm[id] = e.Segment
			} else {
				info.UnknownShm[id] = struct{}{}
				c.logger().Warn("can't find shm in inventory", "key", id.Key, "shmid", id.ID, "pid", pid)
			}
			continue
		}

		// a walk that fails midway keeps what it read
		anon := !m.FileBacked()
		err := c.Memory.WalkPages(pid, m, func(e proc.PagemapEntry) {
			switch {
			case e.Present():
				pfn := e.PFN()
				if pfn == 0 {
					return
				}
				info.RSS += ps
				info.PFNs.Add(pfn)
				if anon {
					info.AnonPFNs.Add(pfn)
				}
			case e.Swapped():
				slot := e.SwapSlot()
				info.Swap.Add(slot)
				if anon {
					info.AnonSwap.Add(slot)
				}
			}
		})
		if err != nil {
			c.logger().Debug("unreadable mapping", "pid", pid, "start", fmt.Sprintf("%#x", m.Start), "err", err)
		}
	}
	return info, nil
}
