//go:build linux

package shm

import (
	"slices"

	"github.com/ja7ad/memstats/pkg/system/proc"
	"github.com/ja7ad/memstats/pkg/types"
)

// Pages is what a scan of one segment recovered.
type Pages struct {
	PFNs    types.PFNSet
	Swap    types.SwapSet
	Pages4K int
	Pages2M int
}

// Entry pairs a segment with its scan result. Pages is nil when the segment
// was not scanned (it was partly in swap, or the scan failed); such segments
// are never attributed to RSS.
type Entry struct {
	Segment proc.ShmSegment
	Pages   *Pages
}

// Scanned reports whether the segment's pages are known.
func (e Entry) Scanned() bool { return e.Pages != nil }

// Metadata maps segment identity to its entry. It is built once before the
// process scan and only read afterwards. A missing identity means the
// segment was not in the inventory.
type Metadata map[proc.ShmID]Entry

// PFNs returns the frames of a scanned segment, nil otherwise.
func (m Metadata) PFNs(id proc.ShmID) types.PFNSet {
	if e, ok := m[id]; ok && e.Pages != nil {
		return e.Pages.PFNs
	}
	return nil
}

// Swap returns the swap slots of a scanned segment, nil otherwise.
func (m Metadata) Swap(id proc.ShmID) types.SwapSet {
	if e, ok := m[id]; ok && e.Pages != nil {
		return e.Pages.Swap
	}
	return nil
}

// BySize returns the entries sorted by descending segment size, then id.
func (m Metadata) BySize() []Entry {
	out := make([]Entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		switch {
		case a.Segment.Size > b.Segment.Size:
			return -1
		case a.Segment.Size < b.Segment.Size:
			return 1
		case a.Segment.ID < b.Segment.ID:
			return -1
		case a.Segment.ID > b.Segment.ID:
			return 1
		default:
			return 0
		}
	})
	return out
}

// UsedPercent is (rss+swap)/size. It can exceed 100 when the size is not
// aligned to the underlying pages.
func UsedPercent(s proc.ShmSegment) float64 {
	if s.Size == 0 {
		return 0
	}
	return float64(s.RSS+s.Swap) / float64(s.Size) * 100
}
