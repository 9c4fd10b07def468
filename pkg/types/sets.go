package types

// PFN is a physical frame number. PFN 0 means "no physical backing" and
// is never stored in a PFNSet.
type PFN = uint64

// PFNSet is a set of physical frame numbers.
type PFNSet map[PFN]struct{}

// NewPFNSet returns a set holding the given non-zero PFNs.
func NewPFNSet(pfns ...PFN) PFNSet {
	s := make(PFNSet, len(pfns))
	for _, p := range pfns {
		s.Add(p)
	}
	return s
}

// Add inserts pfn, ignoring the reserved PFN 0.
func (s PFNSet) Add(pfn PFN) {
	if pfn == 0 {
		return
	}
	s[pfn] = struct{}{}
}

func (s PFNSet) Has(pfn PFN) bool {
	_, ok := s[pfn]
	return ok
}

// Extend adds every member of o to s.
func (s PFNSet) Extend(o PFNSet) {
	for p := range o {
		s[p] = struct{}{}
	}
}

// Clone returns an independent copy.
func (s PFNSet) Clone() PFNSet {
	c := make(PFNSet, len(s))
	c.Extend(s)
	return c
}

// DifferenceLen returns |s - o| without allocating.
func (s PFNSet) DifferenceLen(o PFNSet) int {
	n := 0
	for p := range s {
		if _, ok := o[p]; !ok {
			n++
		}
	}
	return n
}

// SwapSlot identifies one swapped-out page.
type SwapSlot struct {
	Type   uint64
	Offset uint64
}

// SwapSet is a set of swap slots.
type SwapSet map[SwapSlot]struct{}

func NewSwapSet(slots ...SwapSlot) SwapSet {
	s := make(SwapSet, len(slots))
	for _, sl := range slots {
		s.Add(sl)
	}
	return s
}

func (s SwapSet) Add(slot SwapSlot) { s[slot] = struct{}{} }

func (s SwapSet) Has(slot SwapSlot) bool {
	_, ok := s[slot]
	return ok
}

func (s SwapSet) Extend(o SwapSet) {
	for sl := range o {
		s[sl] = struct{}{}
	}
}

func (s SwapSet) Clone() SwapSet {
	c := make(SwapSet, len(s))
	c.Extend(s)
	return c
}

func (s SwapSet) DifferenceLen(o SwapSet) int {
	n := 0
	for sl := range s {
		if _, ok := o[sl]; !ok {
			n++
		}
	}
	return n
}
