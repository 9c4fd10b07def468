//go:build linux

package groups

import (
	"slices"

	"github.com/ja7ad/memstats/pkg/shm"
	"github.com/ja7ad/memstats/pkg/types"
)

// Row is the display line of one group, sizes in bytes.
type Row struct {
	Group     string      `json:"group"`
	Processes int         `json:"processes"`
	MemRSS    types.Bytes `json:"mem_rss"`
	MemAnon   types.Bytes `json:"mem_anon"`
	MemUSS    types.Bytes `json:"mem_uss"`
	SwapRSS   types.Bytes `json:"swap_rss"`
	SwapAnon  types.Bytes `json:"swap_anon"`
	SwapUSS   types.Bytes `json:"swap_uss"`
	ShmMem    types.Bytes `json:"shm_mem"`
	ShmSwap   types.Bytes `json:"shm_swap"`
	PTE       types.Bytes `json:"pte"`
	FDs       int         `json:"fds"`
}

// extended returns the group's frames plus the frames of every scanned
// segment it references. The group's own set is returned as is when there
// is nothing to add; callers must not modify the result.
func extended(g *Group, meta shm.Metadata) types.PFNSet {
	var out types.PFNSet
	for id := range g.Shm {
		pfns := meta.PFNs(id)
		if len(pfns) == 0 {
			continue
		}
		if out == nil {
			out = g.PFNs.Clone()
		}
		out.Extend(pfns)
	}
	if out == nil {
		return g.PFNs
	}
	return out
}

// Rows computes one row per group, sorted by descending MemRSS.
//
// A frame is exclusive to a group when no other group's extended set holds
// it. Shm frames count in every referencing group, so MemRSS summed over
// groups can exceed the memory of the host.
func (s *Split) Rows(meta shm.Metadata, pageSize uint64) []Row {
	ext := make([]types.PFNSet, len(s.Groups))
	owners := map[types.PFN]int{}
	for i, g := range s.Groups {
		ext[i] = extended(g, meta)
		for pfn := range ext[i] {
			owners[pfn]++
		}
	}
	swapOwners := map[types.SwapSlot]int{}
	for _, g := range s.Groups {
		for slot := range g.Swap {
			swapOwners[slot]++
		}
	}

	rows := make([]Row, 0, len(s.Groups))
	for i, g := range s.Groups {
		uss := 0
		for pfn := range ext[i] {
			if owners[pfn] == 1 {
				uss++
			}
		}
		swapUSS := 0
		for slot := range g.Swap {
			if swapOwners[slot] == 1 {
				swapUSS++
			}
		}

		var shmMem, shmSwap uint64
		for _, seg := range g.Shm {
			shmMem += seg.RSS
			shmSwap += seg.Swap
		}

		rows = append(rows, Row{
			Group:     g.Name,
			Processes: len(g.Processes),
			MemRSS:    types.Pages(len(ext[i]), pageSize),
			MemAnon:   types.Pages(len(g.AnonPFNs), pageSize),
			MemUSS:    types.Pages(uss, pageSize),
			SwapRSS:   types.Pages(len(g.Swap), pageSize),
			SwapAnon:  types.Pages(len(g.AnonSwap), pageSize),
			SwapUSS:   types.Pages(swapUSS, pageSize),
			ShmMem:    types.Bytes(shmMem),
			ShmSwap:   types.Bytes(shmSwap),
			PTE:       types.Bytes(g.PTE),
			FDs:       g.FDs,
		})
	}

	slices.SortStableFunc(rows, func(a, b Row) int {
		switch {
		case a.MemRSS > b.MemRSS:
			return -1
		case a.MemRSS < b.MemRSS:
			return 1
		default:
			return 0
		}
	})
	return rows
}
