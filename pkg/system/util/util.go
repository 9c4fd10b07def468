package util

import (
	"cmp"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// ErrBadPID indicates a PID argument that is neither a number nor a range.
var ErrBadPID = errors.New("util: invalid pid")

// PIDRange is an inclusive range of PIDs; a single PID has Lo == Hi.
type PIDRange struct {
	Lo, Hi int
}

// PIDSet is a parsed PID list. Ranges are kept as ranges, so "1..4194304"
// costs the same as "1".
type PIDSet struct {
	ranges []PIDRange // sorted, merged
	tokens []string
}

// ParsePIDs parses PID arguments. Each argument is a PID, a comma separated
// list of PIDs or an inclusive range "a..b".
func ParsePIDs(args []string) (PIDSet, error) {
	var (
		set  PIDSet
		seen = map[string]bool{}
	)
	for _, arg := range args {
		for _, tok := range strings.Split(arg, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			r, err := parsePIDRange(tok)
			if err != nil {
				return PIDSet{}, err
			}
			set.ranges = append(set.ranges, r)
			if !seen[tok] {
				seen[tok] = true
				set.tokens = append(set.tokens, tok)
			}
		}
	}
	set.ranges = mergeRanges(set.ranges)
	return set, nil
}

func parsePIDRange(tok string) (PIDRange, error) {
	lo, hi, ok := strings.Cut(tok, "..")
	if !ok {
		pid, err := parsePID(tok)
		return PIDRange{Lo: pid, Hi: pid}, err
	}
	a, err := parsePID(lo)
	if err != nil {
		return PIDRange{}, err
	}
	b, err := parsePID(hi)
	if err != nil {
		return PIDRange{}, err
	}
	if b < a {
		return PIDRange{}, fmt.Errorf("%w: empty range %q", ErrBadPID, tok)
	}
	return PIDRange{Lo: a, Hi: b}, nil
}

func mergeRanges(rs []PIDRange) []PIDRange {
	if len(rs) == 0 {
		return nil
	}
	slices.SortFunc(rs, func(a, b PIDRange) int { return cmp.Compare(a.Lo, b.Lo) })
	out := rs[:1]
	for _, r := range rs[1:] {
		last := &out[len(out)-1]
		if r.Lo <= last.Hi+1 {
			last.Hi = max(last.Hi, r.Hi)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Contains reports whether pid is in the set.
func (s PIDSet) Contains(pid int) bool {
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].Hi >= pid })
	return i < len(s.ranges) && s.ranges[i].Lo <= pid
}

// Empty reports whether the set has no PID.
func (s PIDSet) Empty() bool { return len(s.ranges) == 0 }

// Ranges returns the merged ranges in ascending order.
func (s PIDSet) Ranges() []PIDRange { return slices.Clone(s.ranges) }

// String joins the arguments as written, e.g. "12, 34, 100..200".
func (s PIDSet) String() string { return strings.Join(s.tokens, ", ") }

func parsePID(s string) (int, error) {
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadPID, s)
	}
	return pid, nil
}

// HalfCPUs returns half of the usable CPUs, at least one.
func HalfCPUs() int {
	if n := runtime.NumCPU() / 2; n > 0 {
		return n
	}
	return 1
}
