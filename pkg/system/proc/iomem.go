//go:build linux

package proc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ja7ad/memstats/pkg/types"
)

// SystemRAM is the /proc/iomem name of usable physical memory.
const SystemRAM = "System RAM"

// MemorySegment is one /proc/iomem entry. End is inclusive, as printed.
type MemorySegment struct {
	Start, End uint64
	Name       string
	Depth      int
}

// PFNRange is a half-open range of physical frame numbers.
type PFNRange struct {
	Start, End types.PFN
}

func (r PFNRange) Len() uint64 { return r.End - r.Start }

// PFNRange converts the byte range of s into frames.
func (s MemorySegment) PFNRange(pageSize uint64) PFNRange {
	return PFNRange{Start: s.Start / pageSize, End: (s.End + 1) / pageSize}
}

// ReadIOMem parses <root>/iomem. Addresses read as zero unless root.
func (f *FS) ReadIOMem() ([]MemorySegment, error) {
	fd, err := os.Open(f.path("iomem"))
	if err != nil {
		return nil, fmt.Errorf("proc: open iomem: %w", err)
	}
	defer fd.Close()
	return ParseIOMem(fd)
}

// ParseIOMem parses lines such as "  00100000-bffdffff : System RAM".
func ParseIOMem(r io.Reader) ([]MemorySegment, error) {
	var out []MemorySegment
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		trimmed := strings.TrimLeft(line, " ")
		depth := (len(line) - len(trimmed)) / 2

		rng, name, ok := strings.Cut(trimmed, " : ")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBadIOMem, line)
		}
		lo, hi, ok := strings.Cut(rng, "-")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBadIOMem, line)
		}
		start, err := strconv.ParseUint(lo, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadIOMem, err)
		}
		end, err := strconv.ParseUint(hi, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadIOMem, err)
		}
		out = append(out, MemorySegment{Start: start, End: end, Name: strings.TrimSpace(name), Depth: depth})
	}
	return out, sc.Err()
}

// RAMRanges keeps the System RAM segments of iomem as PFN ranges.
func RAMRanges(segs []MemorySegment, pageSize uint64) []PFNRange {
	var out []PFNRange
	for _, s := range segs {
		if s.Name != SystemRAM {
			continue
		}
		if r := s.PFNRange(pageSize); r.End > r.Start {
			out = append(out, r)
		}
	}
	return out
}

// ramRange returns the System RAM range holding pfn.
func ramRange(ram []PFNRange, pfn types.PFN) (PFNRange, bool) {
	for _, r := range ram {
		if pfn >= r.Start && pfn < r.End {
			return r, true
		}
	}
	return PFNRange{}, false
}
