package paging

import "strings"

// Flag is a single architectural bit of a page table entry.
type Flag uint64

// The flag bits decoded from every entry.
const (
	FlagPresent      Flag = 1 << 0
	FlagWritable     Flag = 1 << 1
	FlagUserAccess   Flag = 1 << 2
	FlagWriteThrough Flag = 1 << 3
	FlagNoCache      Flag = 1 << 4
	FlagAccessed     Flag = 1 << 5
	FlagDirty        Flag = 1 << 6
	FlagHuge         Flag = 1 << 7
	FlagGlobal       Flag = 1 << 8
	FlagNoExecute    Flag = 1 << 63
)

type flagDesc struct {
	flag Flag
	name string
}

// flagTable lists the decoded flags in bit order. Decoding and naming both
// iterate over it, so a new flag only needs a new row.
var flagTable = []flagDesc{
	{FlagPresent, "PRESENT"},
	{FlagWritable, "WRITABLE"},
	{FlagUserAccess, "USER_ACCESS"},
	{FlagWriteThrough, "WRITETHROUGH"},
	{FlagNoCache, "NOCACHE"},
	{FlagAccessed, "ACCESSED"},
	{FlagDirty, "DIRTY"},
	{FlagHuge, "HUGE"},
	{FlagGlobal, "GLOBAL"},
	{FlagNoExecute, "NX"},
}

// Names returns the names of the set flags in bit order.
func (f Flag) Names() []string {
	names := make([]string, 0, len(flagTable))
	for _, d := range flagTable {
		if f&d.flag != 0 {
			names = append(names, d.name)
		}
	}

	return names
}

func (f Flag) String() string {
	return strings.Join(f.Names(), " ")
}

// decodeFlags keeps only the bits listed in flagTable.
func decodeFlags(raw uint64) Flag {
	var flags Flag
	for _, d := range flagTable {
		if raw&uint64(d.flag) != 0 {
			flags |= d.flag
		}
	}

	return flags
}

// Kind classifies what an entry points to.
type Kind int

// The entry kinds.
const (
	KindEmpty Kind = iota
	KindSubtable
	KindLeafFrame
	KindLeafHuge
	KindInvalidHuge
)

var kindNames = [...]string{
	KindEmpty:       "empty",
	KindSubtable:    "subtable",
	KindLeafFrame:   "frame",
	KindLeafHuge:    "huge",
	KindInvalidHuge: "invalid-huge",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}

	return kindNames[k]
}

// IsLeaf reports whether the entry maps a physical frame directly.
func (k Kind) IsLeaf() bool {
	return k == KindLeafFrame || k == KindLeafHuge
}

// An Entry is one decoded slot of a page table.
type Entry struct {
	Slot  int
	Raw   uint64
	Flags Flag
	Frame uint64
	Kind  Kind
}

// Has reports whether all of the given flags are set.
func (e Entry) Has(flags Flag) bool {
	return e.Flags&flags == flags
}

// Present reports whether the PRESENT bit is set.
func (e Entry) Present() bool {
	return e.Has(FlagPresent)
}

// Huge reports whether the HUGE bit is set.
func (e Entry) Huge() bool {
	return e.Has(FlagHuge)
}

// DecodeEntry extracts the flags and the frame number of raw and classifies
// it according to the level of the table that holds it.
func DecodeEntry(raw uint64, slot int, level Level) Entry {
	e := Entry{
		Slot:  slot,
		Raw:   raw,
		Flags: decodeFlags(raw),
		Frame: (raw & physAddrMask) >> PageShift,
	}

	e.Kind = classify(e, level)

	return e
}

func classify(e Entry, level Level) Kind {
	switch {
	case e.Raw == 0:
		return KindEmpty
	case e.Huge() && (level == LevelPML4 || level == LevelPT):
		return KindInvalidHuge
	case e.Huge():
		return KindLeafHuge
	case level == LevelPT:
		return KindLeafFrame
	default:
		return KindSubtable
	}
}
