package paging

// A Range is an inclusive range of virtual addresses.
type Range struct {
	Low  uint64 `json:"low"`
	High uint64 `json:"high"`
}

// Size returns the number of bytes in the range.
func (r Range) Size() uint64 {
	return r.High - r.Low + 1
}

// A FrameRange is an inclusive range of physical frame numbers.
type FrameRange struct {
	First uint64 `json:"first"`
	Last  uint64 `json:"last"`
}

// Count returns the number of frames in the range.
func (r FrameRange) Count() uint64 {
	return r.Last - r.First + 1
}

// Single reports whether the range covers exactly one frame.
func (r FrameRange) Single() bool {
	return r.First == r.Last
}

// A Mapping describes the address space an entry is responsible for.
//
// For a subtable entry, Virt is the range covered by the whole child table
// and ChildTable is the address at which that table can be read. For a leaf
// entry, Virt is the mapped page and Frames the physical frames behind it.
type Mapping struct {
	Virt       Range      `json:"virt"`
	Frames     FrameRange `json:"frames"`
	Size       uint64     `json:"size"`
	ChildTable uint64     `json:"child_table,omitempty"`
}

// CoverageShift returns log2 of the number of bytes one entry of a table at
// level l covers: 12 for a PT, 21 for a PD, 30 for a PDPT and 39 for a PML4.
func CoverageShift(l Level) uint {
	return PageShift + IndexBits*uint(l-1)
}

// ChildTable returns the address of the table that entry slot of the table
// at base points to. Shifting the table address by one index adds one more
// pass through the recursive slot, which is how the child table is reached.
func ChildTable(base uint64, slot int) uint64 {
	return base<<IndexBits | uint64(slot)<<PageShift
}

// Canonical sign-extends bit 47 of addr into bits 63 to 48.
func Canonical(addr uint64) uint64 {
	if addr&canonicalBit != 0 {
		return addr | canonicalHigh
	}

	return addr &^ canonicalHigh
}

// IsCanonical reports whether bits 63 to 48 of addr all equal bit 47.
func IsCanonical(addr uint64) bool {
	return Canonical(addr) == addr
}

// ComputeMapping derives the virtual range and the frame range governed by
// e, an entry of the table at base whose level is l. Empty entries yield a
// zero Mapping. Entries with a misplaced HUGE bit yield ErrInvalidHugeFlag.
func ComputeMapping(l Level, base uint64, e Entry) (Mapping, error) {
	switch e.Kind {
	case KindSubtable:
		return subtableMapping(l, base, e), nil
	case KindLeafFrame, KindLeafHuge:
		return leafMapping(l, base, e), nil
	case KindInvalidHuge:
		return Mapping{}, ErrInvalidHugeFlag
	default:
		return Mapping{}, nil
	}
}

func subtableMapping(l Level, base uint64, e Entry) Mapping {
	child := ChildTable(base, e.Slot)
	size := uint64(1) << CoverageShift(l)
	low := Canonical((child << (16 + IndexBits*uint(l-1))) >> 16)

	return Mapping{
		Virt:       Range{Low: low, High: low + size - 1},
		Frames:     FrameRange{First: e.Frame, Last: e.Frame},
		Size:       size,
		ChildTable: child,
	}
}

func leafMapping(l Level, base uint64, e Entry) Mapping {
	entryAddr := base + uint64(e.Slot)*EntrySize
	size := uint64(1) << CoverageShift(l)
	low := Canonical((entryAddr << (16 + IndexBits*uint(l))) >> 16)

	return Mapping{
		Virt: Range{Low: low, High: low + size - 1},
		Frames: FrameRange{
			First: e.Frame,
			Last:  e.Frame + size>>PageShift - 1,
		},
		Size: size,
	}
}
