//go:build linux

// Package groups partitions collected processes into named groups and
// computes per-group resident and exclusive memory.
//
// Every splitter places each input process in exactly one group, and
// Split.Collect hands the processes back so splitters can be chained.
package groups

import (
	"github.com/ja7ad/memstats/pkg/procinfo"
	"github.com/ja7ad/memstats/pkg/system/proc"
	"github.com/ja7ad/memstats/pkg/types"
)

// Group is a named bucket of processes with their merged sets.
type Group struct {
	Name      string
	Processes []*procinfo.Info

	PFNs     types.PFNSet
	AnonPFNs types.PFNSet
	Swap     types.SwapSet
	AnonSwap types.SwapSet
	Shm      map[proc.ShmID]proc.ShmSegment

	PTE uint64
	FDs int
}

// NewGroup folds infos into one group.
func NewGroup(name string, infos []*procinfo.Info) *Group {
	g := &Group{
		Name:      name,
		Processes: infos,
		PFNs:      types.NewPFNSet(),
		AnonPFNs:  types.NewPFNSet(),
		Swap:      types.NewSwapSet(),
		AnonSwap:  types.NewSwapSet(),
		Shm:       map[proc.ShmID]proc.ShmSegment{},
	}
	for _, info := range infos {
		g.PFNs.Extend(info.PFNs)
		g.AnonPFNs.Extend(info.AnonPFNs)
		g.Swap.Extend(info.Swap)
		g.AnonSwap.Extend(info.AnonSwap)
		for id, seg := range info.Shm {
			g.Shm[id] = seg
		}
		g.PTE += info.PTE
		g.FDs += info.FDs
	}
	return g
}

// Split is the result of one splitter run. Group names are unique within
// a split.
type Split struct {
	By     string
	Groups []*Group
}

// Collect flattens the groups back into one process list.
func (s *Split) Collect() []*procinfo.Info {
	n := 0
	for _, g := range s.Groups {
		n += len(g.Processes)
	}
	out := make([]*procinfo.Info, 0, n)
	for _, g := range s.Groups {
		out = append(out, g.Processes...)
	}
	return out
}
