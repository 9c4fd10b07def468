//go:build linux

package consumption

import (
	"github.com/ja7ad/memstats/pkg/procinfo"
	"github.com/ja7ad/memstats/pkg/system/proc"
	"github.com/ja7ad/memstats/pkg/types"
)

// New merges cfg over the defaults.
// Notes:
//   - MemLimit and Workers override only when > 0.
//   - memAvailable resolves a zero MemLimit to half of it; nil leaves 0,
//     which disables the ceiling.
//   - Filter and split settings are taken verbatim.
func New(cfg *Config, memAvailable func() (uint64, error)) (*Config, error) {
	merged := *_defaultConfig()

	if cfg != nil {
		if cfg.MemLimit > 0 {
			merged.MemLimit = cfg.MemLimit
		}
		if cfg.Workers > 0 {
			merged.Workers = cfg.Workers
		}
		merged.ForceReadShm = cfg.ForceReadShm
		merged.Filter = cfg.Filter
		merged.SplitCustom = cfg.SplitCustom
		merged.SplitUID = cfg.SplitUID
		merged.SplitEnv = cfg.SplitEnv
		merged.SplitCgroup = cfg.SplitCgroup
		merged.SplitPIDs = cfg.SplitPIDs
		merged.InstanceHelper = cfg.InstanceHelper
	}

	if merged.MemLimit == 0 && memAvailable != nil {
		avail, err := memAvailable()
		if err != nil {
			return nil, err
		}
		merged.MemLimit = avail / 2
	}
	return &merged, nil
}

// Accumulator folds processes into one running set so that only the
// union, not every process, stays in memory.
type Accumulator struct {
	pageSize  uint64
	processes int
	pfns      types.PFNSet
	anonPFNs  types.PFNSet
	swap      types.SwapSet
	anonSwap  types.SwapSet
	shm       map[proc.ShmID]proc.ShmSegment
	pte       uint64
	fds       int
}

func NewAccumulator(pageSize uint64) *Accumulator {
	return &Accumulator{
		pageSize: pageSize,
		pfns:     types.NewPFNSet(),
		anonPFNs: types.NewPFNSet(),
		swap:     types.NewSwapSet(),
		anonSwap: types.NewSwapSet(),
		shm:      map[proc.ShmID]proc.ShmSegment{},
	}
}

// Add merges info. info can be dropped afterwards.
func (a *Accumulator) Add(info *procinfo.Info) {
	a.processes++
	a.pfns.Extend(info.PFNs)
	a.anonPFNs.Extend(info.AnonPFNs)
	a.swap.Extend(info.Swap)
	a.anonSwap.Extend(info.AnonSwap)
	for id, seg := range info.Shm {
		a.shm[id] = seg
	}
	a.pte += info.PTE
	a.fds += info.FDs
}

// Processes returns the number of processes added so far.
func (a *Accumulator) Processes() int { return a.processes }

// Totals reports the union. Shm segments are counted once each.
func (a *Accumulator) Totals() Totals {
	var shmMem, shmSwap uint64
	for _, seg := range a.shm {
		shmMem += seg.RSS
		shmSwap += seg.Swap
	}
	return Totals{
		Processes: a.processes,
		MemRSS:    types.Pages(len(a.pfns), a.pageSize),
		MemAnon:   types.Pages(len(a.anonPFNs), a.pageSize),
		SwapRSS:   types.Pages(len(a.swap), a.pageSize),
		SwapAnon:  types.Pages(len(a.anonSwap), a.pageSize),
		ShmMem:    types.Bytes(shmMem),
		ShmSwap:   types.Bytes(shmSwap),
		PTE:       types.Bytes(a.pte),
		FDs:       a.fds,
	}
}
