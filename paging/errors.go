package paging

import (
	"errors"
	"fmt"
)

var (
	// ErrMisalignedBase is reported when a table base address has any of
	// its low 12 bits set. The walk continues on the aligned address.
	ErrMisalignedBase = errors.New("table misaligned")

	// ErrLevelAssumed is reported when the level of a table cannot be
	// inferred from its address and PML4 is used instead.
	ErrLevelAssumed = errors.New("table level not recognized, assuming PML4")

	// ErrInvalidArgument is returned when an address argument cannot be
	// parsed as an integer.
	ErrInvalidArgument = errors.New("argument must be an integer")

	// ErrInvalidLevel is returned when a level outside 1..4 is requested.
	ErrInvalidLevel = errors.New("level must be between 1 and 4")

	// ErrInvalidHugeFlag marks an entry with the HUGE bit set in a PML4 or
	// a PT, where it has no meaning.
	ErrInvalidHugeFlag = errors.New(
		"unsupported HUGE flag (only applies to levels 2 and 3)")

	// ErrCancelled is returned when a walk stops before the last slot.
	ErrCancelled = errors.New("walk cancelled")
)

// A ReadError is attached to a record whose entry could not be read.
type ReadError struct {
	Addr uint64
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("cannot read entry at %#x: %v", e.Addr, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}
