//go:build linux

package shm

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/hashicorp/go-multierror"
	"github.com/ja7ad/memstats/pkg/system/proc"
	"github.com/ja7ad/memstats/pkg/types"
	"golang.org/x/sys/unix"
)

// HugePageSize is the size counted as one huge page in Pages2M.
const HugePageSize = 2 << 20

// Attacher maps a SysV segment into the calling process.
type Attacher interface {
	Attach(shmid int) ([]byte, error)
	Detach(mem []byte) error
}

// SysV attaches read-only with shmat(2).
type SysV struct{}

func (SysV) Attach(shmid int) ([]byte, error) {
	return unix.SysvShmAttach(shmid, 0, unix.SHM_RDONLY)
}

func (SysV) Detach(mem []byte) error { return unix.SysvShmDetach(mem) }

// Memory reads maps and page tables; the scanner only asks about itself.
type Memory interface {
	Maps(pid int) ([]proc.Mapping, error)
	WalkPages(pid int, m proc.Mapping, fn func(proc.PagemapEntry)) error
}

// FlagLookup resolves kernel page flags for the frames of a set that lie
// in System RAM.
type FlagLookup interface {
	Each(pfns []types.PFN, fn func(types.PFN, proc.PageFlags)) error
}

// Inventory lists the SysV segments of the host.
type Inventory interface {
	ShmSegments() ([]proc.ShmSegment, error)
}

// Scanner recovers the frames backing SysV segments by attaching each one
// into this process. Attaching changes this process's address space, so
// scans are serialized.
type Scanner struct {
	Attacher  Attacher
	Memory    Memory
	Flags     FlagLookup
	PageSize  int
	ForceRead bool
	Logger    *slog.Logger

	// PID is the process whose maps contain the attachment, 0 for self.
	PID int

	mu sync.Mutex
}

// sink keeps page touches from being optimized away.
var sink byte

func (s *Scanner) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Scanner) pageSize() int {
	if s.PageSize > 0 {
		return s.PageSize
	}
	return proc.PageSize()
}

func (s *Scanner) self() int {
	if s.PID > 0 {
		return s.PID
	}
	return os.Getpid()
}

// Scan returns the pages of seg, or nil when seg has swapped pages and
// ForceRead is off: reading it would pull the whole segment back into RAM.
func (s *Scanner) Scan(seg proc.ShmSegment) (pages *Pages, err error) {
	if seg.Swap != 0 && !s.ForceRead {
		s.logger().Warn("skipping shm read because it uses swap", "key", seg.Key, "shmid", seg.ID, "swap", seg.Swap)
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	att := s.Attacher
	if att == nil {
		att = SysV{}
	}
	mem, err := att.Attach(int(seg.ID))
	if err != nil {
		return nil, fmt.Errorf("shm: attach shmid %d: %w", seg.ID, err)
	}
	defer func() {
		if derr := att.Detach(mem); derr != nil && err == nil {
			pages, err = nil, fmt.Errorf("shm: detach shmid %d: %w", seg.ID, derr)
		}
	}()
	if len(mem) == 0 {
		return nil, fmt.Errorf("%w: shmid %d", ErrEmptySegment, seg.ID)
	}

	// one byte per page is enough to populate the page table
	ps := s.pageSize()
	var sum byte
	for i := 0; i < len(mem); i += ps {
		sum += mem[i]
	}
	sink = sum

	addr := uint64(uintptr(unsafe.Pointer(&mem[0])))
	maps, err := s.Memory.Maps(s.self())
	if err != nil {
		return nil, fmt.Errorf("shm: read own maps: %w", err)
	}
	var (
		m     proc.Mapping
		found bool
	)
	for _, cand := range maps {
		if cand.Start == addr {
			m, found = cand, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: shmid %d at %#x", ErrMappingNotFound, seg.ID, addr)
	}

	pages = &Pages{PFNs: types.PFNSet{}, Swap: types.SwapSet{}}
	err = s.Memory.WalkPages(s.self(), m, func(e proc.PagemapEntry) {
		switch {
		case e.Present():
			pages.PFNs.Add(e.PFN())
		case e.Swapped():
			pages.Swap.Add(e.SwapSlot())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("shm: walk shmid %d: %w", seg.ID, err)
	}
	pages.Pages4K, pages.Pages2M, err = CountPageSizes(pages.PFNs, s.Flags, uint64(ps))
	if err != nil {
		return nil, fmt.Errorf("shm: page flags of shmid %d: %w", seg.ID, err)
	}
	return pages, nil
}

// Build scans every segment of inv once. Segments that fail to scan are
// kept with nil pages and their errors are aggregated. The inventory is
// listed again afterwards since touching pages changes the reported rss.
func (s *Scanner) Build(inv Inventory) (Metadata, error) {
	segs, err := inv.ShmSegments()
	if err != nil {
		return nil, err
	}

	var merr *multierror.Error
	meta := make(Metadata, len(segs))
	for _, seg := range segs {
		pages, err := s.Scan(seg)
		if err != nil {
			s.logger().Warn("shm scan failed", "key", seg.Key, "shmid", seg.ID, "err", err)
			merr = multierror.Append(merr, err)
		}
		meta[seg.Identity()] = Entry{Segment: seg, Pages: pages}
	}

	if fresh, err := inv.ShmSegments(); err == nil {
		for _, seg := range fresh {
			if e, ok := meta[seg.Identity()]; ok {
				e.Segment = seg
				meta[seg.Identity()] = e
			}
		}
	}
	return meta, merr.ErrorOrNil()
}

// CountPageSizes splits the frames known to flags into normal pages and
// huge pages. Every subpage of a huge page carries HUGE, so huge frames are
// counted in units of HugePageSize/pageSize.
func CountPageSizes(pfns types.PFNSet, flags FlagLookup, pageSize uint64) (pages4K, pages2M int, err error) {
	if flags == nil {
		return 0, 0, nil
	}
	list := make([]types.PFN, 0, len(pfns))
	for pfn := range pfns {
		list = append(list, pfn)
	}
	total, huge := 0, 0
	err = flags.Each(list, func(_ types.PFN, fl proc.PageFlags) {
		total++
		if fl.Has(proc.FlagHuge) {
			huge++
		}
	})
	if err != nil {
		return 0, 0, err
	}
	per := int(HugePageSize / pageSize)
	if per == 0 {
		per = 1
	}
	return total - huge, huge / per, nil
}
