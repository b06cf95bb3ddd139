package paging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rs/xid"
)

// A Reader provides access to the memory that holds page tables.
type Reader interface {
	// ReadUint64 returns the 8-byte value at addr.
	ReadUint64(addr uint64) (uint64, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(addr uint64) (uint64, error)

// ReadUint64 calls f.
func (f ReaderFunc) ReadUint64(addr uint64) (uint64, error) {
	return f(addr)
}

// A Walker decodes every slot of a page table.
type Walker struct {
	HookableBase

	reader Reader
	level  Level
	logger *slog.Logger
}

// Walk reads and decodes the 512 entries of the table at base.
//
// A misaligned base is aligned and reported as a warning. An entry that
// cannot be read is recorded with a *ReadError and the walk moves on to the
// next slot. The context is checked between slots; when it is done, Walk
// returns the records produced so far together with an error wrapping
// ErrCancelled.
func (w *Walker) Walk(ctx context.Context, base uint64) (*Table, error) {
	t := &Table{
		ID:            xid.New().String(),
		RequestedBase: base,
		Records:       make([]Record, 0, EntriesPerTable),
	}

	w.resolveBase(t)
	w.resolveLevel(t)

	w.InvokeHook(HookCtx{Domain: w, Pos: HookPosWalkStart, Table: t})

	var err error
	for slot := 0; slot < EntriesPerTable; slot++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			t.Cancelled = true
			err = fmt.Errorf("%w after %d of %d slots: %v",
				ErrCancelled, slot, EntriesPerTable, ctxErr)

			break
		}

		t.Records = append(t.Records, w.walkSlot(t, slot))
		w.InvokeHook(HookCtx{
			Domain: w,
			Pos:    HookPosEntry,
			Table:  t,
			Record: &t.Records[len(t.Records)-1],
		})
	}

	w.InvokeHook(HookCtx{Domain: w, Pos: HookPosWalkEnd, Table: t})

	return t, err
}

func (w *Walker) resolveBase(t *Table) {
	aligned, misaligned := AlignBase(t.RequestedBase)
	t.Base = aligned

	if misaligned {
		t.Warnings = append(t.Warnings,
			fmt.Errorf("%w, masking to %#016x", ErrMisalignedBase, aligned))
		w.logger.Warn("table misaligned",
			"requested", fmt.Sprintf("%#x", t.RequestedBase),
			"aligned", fmt.Sprintf("%#016x", aligned))
	}
}

func (w *Walker) resolveLevel(t *Table) {
	if w.level != 0 {
		t.Level = w.level
		return
	}

	level, ok := InferLevel(t.Base)
	t.Level = level
	t.LevelInferred = true

	if !ok {
		t.Warnings = append(t.Warnings, ErrLevelAssumed)
		w.logger.Warn("table level not recognized",
			"base", fmt.Sprintf("%#016x", t.Base),
			"assumed", level.String())
	}
}

func (w *Walker) walkSlot(t *Table, slot int) Record {
	addr := t.Base + uint64(slot)*EntrySize
	r := Record{
		Entry: Entry{Slot: slot},
		Addr:  addr,
	}

	raw, err := w.reader.ReadUint64(addr)
	if err != nil {
		r.Err = &ReadError{Addr: addr, Err: err}
		return r
	}

	r.Entry = DecodeEntry(raw, slot, t.Level)
	r.Mapping, r.Err = ComputeMapping(t.Level, t.Base, r.Entry)

	return r
}
