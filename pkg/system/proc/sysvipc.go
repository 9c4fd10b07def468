//go:build linux

package proc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ShmID is the identity of a SysV shared memory segment. Segments are
// compared by identity only: the same segment is seen with different
// rss/swap values by different readers.
type ShmID struct {
	Key int32
	ID  uint64
}

func (s ShmID) String() string { return fmt.Sprintf("%d/%d", s.Key, s.ID) }

// ShmSegment is one row of /proc/sysvipc/shm. Sizes are in bytes.
type ShmSegment struct {
	Key    int32  `json:"key"`
	ID     uint64 `json:"shmid"`
	Size   uint64 `json:"size"`
	RSS    uint64 `json:"rss"`
	Swap   uint64 `json:"swap"`
	CPID   int    `json:"cpid"`
	LPID   int    `json:"lpid"`
	Nattch uint64 `json:"nattch"`
	UID    uint32 `json:"uid"`
}

func (s ShmSegment) Identity() ShmID { return ShmID{Key: s.Key, ID: s.ID} }

// ShmSegments lists the SysV shared memory inventory.
func (f *FS) ShmSegments() ([]ShmSegment, error) {
	fd, err := os.Open(f.path("sysvipc", "shm"))
	if err != nil {
		return nil, fmt.Errorf("proc: open sysvipc/shm: %w", err)
	}
	defer fd.Close()
	return ParseShm(fd)
}

// ParseShm parses the sysvipc/shm table. Columns are located through the
// header line since older kernels lack rss/swap.
func ParseShm(r io.Reader) ([]ShmSegment, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return nil, sc.Err()
	}
	cols := map[string]int{}
	for i, name := range strings.Fields(sc.Text()) {
		cols[name] = i
	}
	for _, want := range []string{"key", "shmid", "size", "rss", "swap"} {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrBadShmLine, want)
		}
	}

	var out []ShmSegment
	for sc.Scan() {
		fs := strings.Fields(sc.Text())
		if len(fs) == 0 {
			continue
		}
		if len(fs) < len(cols) {
			return nil, fmt.Errorf("%w: %q", ErrBadShmLine, sc.Text())
		}
		u := func(name string) (uint64, error) {
			i, ok := cols[name]
			if !ok {
				return 0, nil
			}
			return strconv.ParseUint(fs[i], 10, 64)
		}

		key, err := strconv.ParseInt(fs[cols["key"]], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: key: %v", ErrBadShmLine, err)
		}
		seg := ShmSegment{Key: int32(key)}
		for _, f := range []struct {
			name string
			dst  *uint64
		}{
			{"shmid", &seg.ID},
			{"size", &seg.Size},
			{"rss", &seg.RSS},
			{"swap", &seg.Swap},
			{"nattch", &seg.Nattch},
		} {
			if *f.dst, err = u(f.name); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrBadShmLine, f.name, err)
			}
		}
		if v, err := u("cpid"); err == nil {
			seg.CPID = int(v)
		}
		if v, err := u("lpid"); err == nil {
			seg.LPID = int(v)
		}
		if v, err := u("uid"); err == nil {
			seg.UID = uint32(v)
		}
		out = append(out, seg)
	}
	return out, sc.Err()
}
