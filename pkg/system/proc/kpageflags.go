//go:build linux

package proc

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/ja7ad/memstats/pkg/types"
)

// PageFlags is one /proc/kpageflags record.
type PageFlags uint64

// Bit positions as documented in Documentation/admin-guide/mm/pagemap.rst.
const (
	FlagLocked PageFlags = 1 << iota
	FlagError
	FlagReferenced
	FlagUptodate
	FlagDirty
	FlagLRU
	FlagActive
	FlagSlab
	FlagWriteback
	FlagReclaim
	FlagBuddy
	FlagMmap
	FlagAnon
	FlagSwapCache
	FlagSwapBacked
	FlagCompoundHead
	FlagCompoundTail
	FlagHuge
	FlagUnevictable
	FlagHWPoison
	FlagNoPage
	FlagKSM
	FlagTHP
	FlagOffline
	FlagZeroPage
	FlagIdle
	FlagPgtable
)

// FlagNames lists flag names by bit index.
var FlagNames = [...]string{
	"LOCKED",
	"ERROR",
	"REFERENCED",
	"UPTODATE",
	"DIRTY",
	"LRU",
	"ACTIVE",
	"SLAB",
	"WRITEBACK",
	"RECLAIM",
	"BUDDY",
	"MMAP",
	"ANON",
	"SWAPCACHE",
	"SWAPBACKED",
	"COMPOUND_HEAD",
	"COMPOUND_TAIL",
	"HUGE",
	"UNEVICTABLE",
	"HWPOISON",
	"NOPAGE",
	"KSM",
	"THP",
	"OFFLINE",
	"ZERO_PAGE",
	"IDLE",
	"PGTABLE",
}

func (f PageFlags) Has(flag PageFlags) bool { return f&flag == flag }

func (f PageFlags) String() string {
	var names []string
	for i, n := range FlagNames {
		if f&(1<<i) != 0 {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

// KPageFlags reads /proc/kpageflags.
type KPageFlags struct {
	r io.ReaderAt
	c io.Closer
}

// OpenKPageFlags opens <root>/kpageflags. Missing the file is a fatal
// precondition for shm attribution.
func (f *FS) OpenKPageFlags() (*KPageFlags, error) {
	fd, err := os.Open(f.path("kpageflags"))
	if err != nil {
		return nil, fmt.Errorf("proc: open kpageflags: %w", err)
	}
	return &KPageFlags{r: fd, c: fd}, nil
}

// NewKPageFlags reads flags from r, which is laid out like /proc/kpageflags.
func NewKPageFlags(r io.ReaderAt) *KPageFlags { return &KPageFlags{r: r} }

func (k *KPageFlags) Close() error {
	if k.c == nil {
		return nil
	}
	return k.c.Close()
}

// Range returns the flags of PFNs [start, end).
func (k *KPageFlags) Range(start, end types.PFN) ([]PageFlags, error) {
	if end <= start {
		return nil, nil
	}
	out := make([]PageFlags, 0, end-start)
	buf := make([]byte, pagemapBatch*8)
	for pfn := start; pfn < end; {
		n := end - pfn
		if n > pagemapBatch {
			n = pagemapBatch
		}
		chunk := buf[:n*8]
		read, err := k.r.ReadAt(chunk, int64(pfn*8))
		if read < len(chunk) {
			if err == nil || err == io.EOF {
				err = ErrShortRead
			}
			return nil, fmt.Errorf("proc: kpageflags at pfn %#x: %w", pfn, err)
		}
		for i := 0; i < read; i += 8 {
			out = append(out, PageFlags(binary.LittleEndian.Uint64(chunk[i:])))
		}
		pfn += n
	}
	return out, nil
}

// FlagTable answers per-PFN flag lookups restricted to System RAM.
type FlagTable struct {
	ram   []PFNRange
	flags *KPageFlags
}

func NewFlagTable(ram []PFNRange, flags *KPageFlags) *FlagTable {
	return &FlagTable{ram: ram, flags: flags}
}

// flagWindow bounds the records fetched by one kpageflags read in Each.
const flagWindow = 1024

// Each calls fn with the flags of every frame of pfns that lies in System
// RAM, in PFN order. Frames close to each other share one read of up to
// flagWindow records, so a dense set costs one syscall per window instead
// of one per frame.
func (t *FlagTable) Each(pfns []types.PFN, fn func(types.PFN, PageFlags)) error {
	sorted := slices.Clone(pfns)
	slices.Sort(sorted)

	buf := make([]byte, flagWindow*8)
	for i := 0; i < len(sorted); {
		start := sorted[i]
		r, ok := ramRange(t.ram, start)
		if !ok {
			i++
			continue
		}
		end := min(start+flagWindow, r.End)
		j := i + 1
		for j < len(sorted) && sorted[j] < end {
			j++
		}

		chunk := buf[:(sorted[j-1]-start+1)*8]
		read, err := t.flags.r.ReadAt(chunk, int64(start*8))
		if read < len(chunk) {
			if err == nil || err == io.EOF {
				err = ErrShortRead
			}
			return fmt.Errorf("proc: kpageflags at pfn %#x: %w", start, err)
		}
		for _, pfn := range sorted[i:j] {
			fn(pfn, PageFlags(binary.LittleEndian.Uint64(chunk[(pfn-start)*8:])))
		}
		i = j
	}
	return nil
}

// FlagCounter counts pages per flag over a physically contiguous run fed
// in order. Tail pages inherit the flags of their head (except
// COMPOUND_HEAD), so a huge page reports all of its subpages under the
// head's flags.
type FlagCounter struct {
	Counts     [len(FlagNames)]uint64
	head       PageFlags
	inCompound bool
}

func (c *FlagCounter) Add(fl PageFlags) {
	switch {
	case fl.Has(FlagCompoundHead):
		c.head, c.inCompound = fl, true
	case fl.Has(FlagCompoundTail) && c.inCompound:
		fl |= c.head &^ FlagCompoundHead
	default:
		c.inCompound = false
	}
	for i := range FlagNames {
		if fl&(1<<i) != 0 {
			c.Counts[i]++
		}
	}
}

// Break ends the current run.
func (c *FlagCounter) Break() { c.head, c.inCompound = 0, false }

// CompoundCounters counts one run, see FlagCounter.
func CompoundCounters(run []PageFlags) [len(FlagNames)]uint64 {
	var c FlagCounter
	for _, fl := range run {
		c.Add(fl)
	}
	return c.Counts
}

// countChunk bounds the flags held in memory while counting.
const countChunk = 1 << 18

// Counters runs a FlagCounter over every range in ram. Ranges are
// separate runs.
func (k *KPageFlags) Counters(ram []PFNRange) ([len(FlagNames)]uint64, error) {
	var c FlagCounter
	for _, r := range ram {
		c.Break()
		for pfn := r.Start; pfn < r.End; {
			end := min((pfn/countChunk+1)*countChunk, r.End)
			run, err := k.Range(pfn, end)
			if err != nil {
				return c.Counts, err
			}
			for _, fl := range run {
				c.Add(fl)
			}
			pfn = end
		}
	}
	return c.Counts, nil
}
