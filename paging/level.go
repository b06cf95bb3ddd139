package paging

import "fmt"

// Level is the depth of a table in the 4-level x86-64 paging hierarchy.
type Level uint8

// The four paging levels. PT is the level nearest to the data, PML4 is the
// root.
const (
	LevelPT   Level = 1
	LevelPD   Level = 2
	LevelPDPT Level = 3
	LevelPML4 Level = 4
)

const (
	// EntriesPerTable is the number of 8-byte entries in one 4 KiB table.
	EntriesPerTable = 512

	// EntrySize is the size of one page table entry in bytes.
	EntrySize = 8

	// PageShift is log2 of the smallest page size.
	PageShift = 12

	// PageSize is the size of the smallest page, which is also the
	// alignment of every table.
	PageSize = 1 << PageShift

	// IndexBits is the number of virtual address bits consumed by one
	// table level.
	IndexBits = 9

	// RecursiveSlot is the PML4 slot that maps the PML4 onto itself.
	RecursiveSlot = EntriesPerTable - 1

	// DefaultTableBase is the address of the PML4 when it is reached
	// through the recursive slot on every level.
	DefaultTableBase uint64 = 0xffff_ffff_ffff_f000

	physAddrMask  uint64 = 0x000f_ffff_ffff_f000
	topIndexMask  uint64 = 0xff80_0000_0000_0000
	canonicalBit  uint64 = 1 << 47
	canonicalHigh uint64 = 0xffff_0000_0000_0000
)

var levelNames = map[Level]string{
	LevelPT:   "PT",
	LevelPD:   "PD",
	LevelPDPT: "PDPT",
	LevelPML4: "PML4",
}

// String returns the conventional name of the level.
func (l Level) String() string {
	name, ok := levelNames[l]
	if !ok {
		return fmt.Sprintf("Level(%d)", uint8(l))
	}

	return name
}

// Valid reports whether l is one of the four paging levels.
func (l Level) Valid() bool {
	return l >= LevelPT && l <= LevelPML4
}

// InferLevel guesses the level of the table at base from the address alone.
// No level information is stored next to a page table, so the address is
// read as a path through a recursively mapped hierarchy: each leading 9-bit
// index that equals the recursive slot climbs one level. A table reached
// through the recursive slot k times in a row is at level k, and one reached
// through it on all four levels is the PML4.
//
// The second return value is false when the top index is not the recursive
// slot. Nothing can be said about such an address and LevelPML4 is returned.
// The heuristic misclassifies tables whose address happens to contain 511 as
// a leading index without being recursively mapped.
func InferLevel(base uint64) (Level, bool) {
	work := (base & physAddrMask) << 16

	for i := 0; i < int(LevelPML4); i++ {
		if topIndexMask&^work != 0 {
			if i == 0 {
				return LevelPML4, false
			}

			return Level(i), true
		}

		work <<= IndexBits
	}

	return LevelPML4, true
}

// AlignBase clears the low 12 bits of base. The second return value reports
// whether any of them were set.
func AlignBase(base uint64) (uint64, bool) {
	aligned := base &^ (PageSize - 1)
	return aligned, aligned != base
}
