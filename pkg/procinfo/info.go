//go:build linux

package procinfo

import (
	"github.com/ja7ad/memstats/pkg/system/proc"
	"github.com/ja7ad/memstats/pkg/types"
)

// Info is the memory attribution snapshot of one process. It holds captured
// values only, no live handle, so it stays valid after the process exits.
// Info satisfies filter.Process.
type Info struct {
	pid     int
	uid     uint32
	comm    string
	environ map[string]string

	Cmdline []string
	Cgroup  string

	// PFNs holds every resident frame outside SysV mappings; AnonPFNs is the
	// subset not backed by a regular file. Swap and AnonSwap likewise.
	PFNs     types.PFNSet
	AnonPFNs types.PFNSet
	Swap     types.SwapSet
	AnonSwap types.SwapSet

	// Shm holds the referenced segments found in the inventory, UnknownShm
	// the references that were not.
	Shm        map[proc.ShmID]proc.ShmSegment
	UnknownShm map[proc.ShmID]struct{}

	RSS uint64
	VSZ uint64
	PTE uint64
	FDs int
}

// New returns an empty snapshot with the given identity.
func New(pid int, uid uint32, comm string, environ map[string]string) *Info {
	if environ == nil {
		environ = map[string]string{}
	}
	return &Info{
		pid:        pid,
		uid:        uid,
		comm:       comm,
		environ:    environ,
		PFNs:       types.NewPFNSet(),
		AnonPFNs:   types.NewPFNSet(),
		Swap:       types.NewSwapSet(),
		AnonSwap:   types.NewSwapSet(),
		Shm:        map[proc.ShmID]proc.ShmSegment{},
		UnknownShm: map[proc.ShmID]struct{}{},
	}
}

func (i *Info) PID() int                            { return i.pid }
func (i *Info) UID() (uint32, error)                { return i.uid, nil }
func (i *Info) Comm() (string, error)               { return i.comm, nil }
func (i *Info) Environ() (map[string]string, error) { return i.environ, nil }

// Owner returns the captured uid.
func (i *Info) Owner() uint32 { return i.uid }

// Name returns the captured comm.
func (i *Info) Name() string { return i.comm }

// Env returns one captured environment variable.
func (i *Info) Env(key string) (string, bool) {
	v, ok := i.environ[key]
	return v, ok
}
