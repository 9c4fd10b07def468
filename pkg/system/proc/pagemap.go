//go:build linux

package proc

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ja7ad/memstats/pkg/types"
)

const (
	pagemapEntrySize = 8
	// pagemapBatch is the number of entries fetched per ReadAt.
	pagemapBatch = 1024

	pfnMask        = uint64(1)<<55 - 1
	swapTypeMask   = uint64(0x1f)
	swapOffsetMask = uint64(1)<<50 - 1

	bitSoftDirty = 55
	bitExclusive = 56
	bitFile      = 61
	bitSwapped   = 62
	bitPresent   = 63
)

// PagemapEntry is one raw 64-bit /proc/<pid>/pagemap record.
type PagemapEntry uint64

func (e PagemapEntry) bit(n uint) bool { return uint64(e)&(1<<n) != 0 }

func (e PagemapEntry) Present() bool    { return e.bit(bitPresent) }
func (e PagemapEntry) Swapped() bool    { return e.bit(bitSwapped) }
func (e PagemapEntry) FileShared() bool { return e.bit(bitFile) }
func (e PagemapEntry) Exclusive() bool  { return e.bit(bitExclusive) }
func (e PagemapEntry) SoftDirty() bool  { return e.bit(bitSoftDirty) }

// PFN is only meaningful for present pages; it reads as zero without
// CAP_SYS_ADMIN.
func (e PagemapEntry) PFN() types.PFN {
	if !e.Present() {
		return 0
	}
	return uint64(e) & pfnMask
}

// SwapSlot is only meaningful for swapped pages.
func (e PagemapEntry) SwapSlot() types.SwapSlot {
	return types.SwapSlot{
		Type:   uint64(e) & swapTypeMask,
		Offset: (uint64(e) >> 5) & swapOffsetMask,
	}
}

// NewPresentEntry builds a present entry for pfn.
func NewPresentEntry(pfn types.PFN) PagemapEntry {
	return PagemapEntry(1<<bitPresent | pfn&pfnMask)
}

// NewSwappedEntry builds a swapped entry for slot.
func NewSwappedEntry(slot types.SwapSlot) PagemapEntry {
	return PagemapEntry(1<<bitSwapped | (slot.Offset&swapOffsetMask)<<5 | slot.Type&swapTypeMask)
}

// WalkPages calls fn for every page-table entry covering m in the address
// space of pid, in address order. Entries are streamed in batches, so memory
// use does not depend on the size of the mapping.
func (f *FS) WalkPages(pid int, m Mapping, fn func(PagemapEntry)) error {
	fd, err := os.Open(f.path(strconv.Itoa(pid), "pagemap"))
	if err != nil {
		return err
	}
	defer fd.Close()

	ps := uint64(PageSize())
	return WalkPagemap(fd, m.Start/ps, m.End/ps, fn)
}

// WalkPagemap decodes entries for virtual page numbers [first, last) from r
// and hands them to fn one at a time.
func WalkPagemap(r io.ReaderAt, first, last uint64, fn func(PagemapEntry)) error {
	if last <= first {
		return nil
	}
	n := last - first
	if n > pagemapBatch {
		n = pagemapBatch
	}
	buf := make([]byte, n*pagemapEntrySize)
	for vpn := first; vpn < last; {
		n := last - vpn
		if n > pagemapBatch {
			n = pagemapBatch
		}
		chunk := buf[:n*pagemapEntrySize]
		read, err := r.ReadAt(chunk, int64(vpn*pagemapEntrySize))
		if read < len(chunk) {
			if err == nil || err == io.EOF {
				err = ErrShortRead
			}
			return fmt.Errorf("proc: pagemap at vpn %#x: %w", vpn, err)
		}
		for i := 0; i < read; i += pagemapEntrySize {
			fn(PagemapEntry(binary.LittleEndian.Uint64(chunk[i:])))
		}
		vpn += n
	}
	return nil
}
