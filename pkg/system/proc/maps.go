//go:build linux

package proc

import (
	"fmt"
	"strconv"
	"strings"
)

// MapKind classifies a virtual memory mapping by what backs it.
type MapKind int

const (
	Other       MapKind = iota // unrecognized [bracketed] name
	Path                       // regular file
	Anonymous                  // no name
	Heap                       // [heap]
	Stack                      // [stack]
	ThreadStack                // [stack:<tid>]
	Vdso                       // [vdso]
	Vvar                       // [vvar]
	Vsyscall                   // [vsyscall], has no readable page-table entries
	SysV                       // SysV shared memory attachment
)

func (k MapKind) String() string {
	switch k {
	case Path:
		return "path"
	case Anonymous:
		return "anonymous"
	case Heap:
		return "heap"
	case Stack:
		return "stack"
	case ThreadStack:
		return "thread-stack"
	case Vdso:
		return "vdso"
	case Vvar:
		return "vvar"
	case Vsyscall:
		return "vsyscall"
	case SysV:
		return "sysv"
	default:
		return "other"
	}
}

// Mapping is one line of /proc/<pid>/maps.
type Mapping struct {
	Start, End uint64
	Perms      string
	Offset     int64
	Inode      uint64 // shmid for SysV mappings
	Path       string
	Kind       MapKind
	ShmKey     int32 // only for SysV mappings
}

// Pages returns the number of pages spanned by the mapping.
func (m Mapping) Pages(pageSize uint64) uint64 {
	return (m.End - m.Start) / pageSize
}

func (m Mapping) Size() uint64 { return m.End - m.Start }

// FileBacked reports whether the mapping is backed by a regular file.
func (m Mapping) FileBacked() bool { return m.Kind == Path }

// ShmID returns the SysV segment identity referenced by the mapping.
func (m Mapping) ShmID() ShmID { return ShmID{Key: m.ShmKey, ID: m.Inode} }

// Maps reads and classifies /proc/<pid>/maps.
func (f *FS) Maps(pid int) ([]Mapping, error) {
	p, err := f.fs.Proc(pid)
	if err != nil {
		return nil, err
	}
	pms, err := p.ProcMaps()
	if err != nil {
		return nil, err
	}
	out := make([]Mapping, 0, len(pms))
	for _, pm := range pms {
		m := Mapping{
			Start:  uint64(pm.StartAddr),
			End:    uint64(pm.EndAddr),
			Offset: pm.Offset,
			Inode:  pm.Inode,
			Path:   pm.Pathname,
		}
		if pm.Perms != nil {
			m.Perms = permString(pm.Perms.Read, pm.Perms.Write, pm.Perms.Execute, pm.Perms.Shared)
		}
		m.Kind, m.ShmKey = Classify(pm.Pathname)
		out = append(out, m)
	}
	return out, nil
}

// ParseMapsLine parses one raw /proc/<pid>/maps line, for callers that
// already hold the file contents.
//
//	7f3bcfe69000-7f3c4fe6a000 rw-s 00000000 00:01 32769   /SYSV0000abcd (deleted)
func ParseMapsLine(line string) (Mapping, error) {
	fs := strings.Fields(line)
	if len(fs) < 5 {
		return Mapping{}, fmt.Errorf("%w: %q", ErrBadMapsLine, line)
	}
	start, end, ok := strings.Cut(fs[0], "-")
	if !ok {
		return Mapping{}, fmt.Errorf("%w: %q", ErrBadMapsLine, line)
	}
	var (
		m   Mapping
		err error
	)
	if m.Start, err = strconv.ParseUint(start, 16, 64); err != nil {
		return Mapping{}, fmt.Errorf("%w: %v", ErrBadMapsLine, err)
	}
	if m.End, err = strconv.ParseUint(end, 16, 64); err != nil || m.End < m.Start {
		return Mapping{}, fmt.Errorf("%w: %q", ErrBadMapsLine, line)
	}
	m.Perms = fs[1]
	if m.Offset, err = strconv.ParseInt(fs[2], 16, 64); err != nil {
		return Mapping{}, fmt.Errorf("%w: %v", ErrBadMapsLine, err)
	}
	if m.Inode, err = strconv.ParseUint(fs[4], 10, 64); err != nil {
		return Mapping{}, fmt.Errorf("%w: %v", ErrBadMapsLine, err)
	}
	if len(fs) > 5 {
		m.Path = strings.Join(fs[5:], " ")
	}
	m.Kind, m.ShmKey = Classify(m.Path)
	return m, nil
}

// Classify derives the mapping kind from its pathname. SysV attachments
// show up as "/SYSV<key in hex> (deleted)".
func Classify(path string) (MapKind, int32) {
	switch {
	case path == "":
		return Anonymous, 0
	case path == "[heap]":
		return Heap, 0
	case path == "[stack]":
		return Stack, 0
	case strings.HasPrefix(path, "[stack:"):
		return ThreadStack, 0
	case path == "[vdso]":
		return Vdso, 0
	case path == "[vvar]":
		return Vvar, 0
	case path == "[vsyscall]":
		return Vsyscall, 0
	case strings.HasPrefix(path, "/SYSV"):
		hex := strings.TrimPrefix(path, "/SYSV")
		if i := strings.IndexByte(hex, ' '); i >= 0 {
			hex = hex[:i]
		}
		if key, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return SysV, int32(uint32(key))
		}
		return Path, 0
	case strings.HasPrefix(path, "["):
		return Other, 0
	default:
		return Path, 0
	}
}
