package paging

import "errors"

// A Record is the outcome of decoding one slot of a table.
type Record struct {
	Entry

	// Addr is the address the entry was read from.
	Addr    uint64
	Mapping Mapping

	// Err is a *ReadError when the entry could not be read, or
	// ErrInvalidHugeFlag when the entry is decoded but meaningless.
	Err error
}

// Unreadable reports whether the entry could not be read.
func (r *Record) Unreadable() bool {
	var readErr *ReadError
	return errors.As(r.Err, &readErr)
}

// A Table is the result of walking the slots of one page table.
type Table struct {
	ID string

	// RequestedBase is the address as given. Base is the aligned address
	// the entries were read from.
	RequestedBase uint64
	Base          uint64
	Level         Level
	LevelInferred bool

	Warnings  []error
	Records   []Record
	Cancelled bool
}

// NonEmpty returns the records of all slots that hold a nonzero entry or
// that could not be read.
func (t *Table) NonEmpty() []Record {
	var records []Record
	for _, r := range t.Records {
		if r.Kind != KindEmpty || r.Unreadable() {
			records = append(records, r)
		}
	}

	return records
}

// Count returns the number of readable records of the given kind.
func (t *Table) Count(kind Kind) int {
	n := 0
	for i := range t.Records {
		r := &t.Records[i]
		if r.Kind == kind && !r.Unreadable() {
			n++
		}
	}

	return n
}

// Unreadable returns the number of slots that could not be read.
func (t *Table) Unreadable() int {
	n := 0
	for i := range t.Records {
		if t.Records[i].Unreadable() {
			n++
		}
	}

	return n
}

// Leaves returns the number of readable leaf entries, huge or not.
func (t *Table) Leaves() int {
	return t.Count(KindLeafFrame) + t.Count(KindLeafHuge)
}

// HasEntries reports whether at least one readable slot is nonzero.
func (t *Table) HasEntries() bool {
	return len(t.Records)-t.Count(KindEmpty)-t.Unreadable() > 0
}

// Find returns the record of the given slot if it has been walked.
func (t *Table) Find(slot int) (Record, bool) {
	for _, r := range t.Records {
		if r.Slot == slot {
			return r, true
		}
	}

	return Record{}, false
}
