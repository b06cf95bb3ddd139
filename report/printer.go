// Package report renders decoded page tables as text.
package report

import (
	"fmt"
	"io"

	"github.com/sarchlab/ptdump/paging"
)

// A Printer writes decoded tables in a human-readable layout. It is a
// paging.Hook, so attaching it to a walker prints every entry as soon as it
// is decoded.
type Printer struct {
	w         io.Writer
	showEmpty bool
	err       error
}

// NewPrinter creates a Printer that writes to w and skips empty entries.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// WithEmpty makes the printer also list empty entries.
func (p *Printer) WithEmpty(show bool) *Printer {
	p.showEmpty = show
	return p
}

// Err returns the first error that happened while writing.
func (p *Printer) Err() error {
	return p.err
}

// Func prints the part of the table that corresponds to the hook position.
func (p *Printer) Func(ctx paging.HookCtx) {
	switch ctx.Pos {
	case paging.HookPosWalkStart:
		p.header(ctx.Table)
	case paging.HookPosEntry:
		p.record(ctx.Table.Level, ctx.Record)
	case paging.HookPosWalkEnd:
		p.footer(ctx.Table)
	}
}

// PrintTable writes a whole table at once.
func (p *Printer) PrintTable(t *paging.Table) error {
	p.header(t)

	for i := range t.Records {
		p.record(t.Level, &t.Records[i])
	}

	p.footer(t)

	return p.err
}

// PrintRecord writes a single record decoded from a table at level l.
func (p *Printer) PrintRecord(l paging.Level, r *paging.Record) error {
	p.entry(l, r)
	return p.err
}

func (p *Printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}

	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *Printer) header(t *paging.Table) {
	for _, w := range t.Warnings {
		p.printf("WARN: %v\n", w)
	}

	if t.LevelInferred {
		p.printf("inferred table level: %d (%s)\n", t.Level, t.Level)
	} else {
		p.printf("table level: %d (%s)\n", t.Level, t.Level)
	}
}

func (p *Printer) record(l paging.Level, r *paging.Record) {
	if r.Kind == paging.KindEmpty && !r.Unreadable() && !p.showEmpty {
		return
	}

	p.printf("\n")
	p.entry(l, r)
}

func (p *Printer) entry(l paging.Level, r *paging.Record) {
	p.printf("entry %d [%#x]\n", r.Slot, r.Addr)

	if r.Unreadable() {
		p.printf("\tERROR: %v\n", r.Err)
		return
	}

	p.printf("\traw: %#016x\n", r.Raw)
	p.printf("\tflags: %s\n", r.Flags)

	switch r.Kind {
	case paging.KindSubtable:
		p.subtable(r)
	case paging.KindLeafFrame, paging.KindLeafHuge:
		p.leaf(r)
	case paging.KindInvalidHuge:
		p.printf("\tERROR: %v\n", r.Err)
		p.printf("\tframe: %#x\n", r.Frame)
	}
}

func (p *Printer) subtable(r *paging.Record) {
	m := r.Mapping

	p.printf("\tpointed table:\n")
	p.printf("\t\tvmem range: %#x - %#x\n", m.Virt.Low, m.Virt.High)
	p.printf("\t\tframe: %#x\n", r.Frame)
	p.printf("\t\taddr: %#016x\n", m.ChildTable)
}

func (p *Printer) leaf(r *paging.Record) {
	m := r.Mapping

	p.printf("\taddressing characteristics:\n")
	p.printf("\t\tvmem: %#x - %#x\n", m.Virt.Low, m.Virt.High)

	if m.Frames.Single() {
		p.printf("\t\tframe: %#x\n", m.Frames.First)
	} else {
		p.printf("\t\tframes: %#x - %#x\n", m.Frames.First, m.Frames.Last)
	}

	unit := "frames"
	if m.Frames.Count() == 1 {
		unit = "frame"
	}

	p.printf("\t\tsize: %#x bytes (%d %s)\n", m.Size, m.Frames.Count(), unit)
}

func (p *Printer) footer(t *paging.Table) {
	if !t.HasEntries() {
		p.printf("\tno entries\n")
	}

	if n := t.Unreadable(); n > 0 {
		p.printf("\n%d of %d entries could not be read\n", n, len(t.Records))
	}

	if t.Cancelled {
		p.printf("\ninterrupted after %d of %d entries\n",
			len(t.Records), paging.EntriesPerTable)
	}
}

// Summary returns a one-line description of the table contents.
func Summary(t *paging.Table) string {
	return fmt.Sprintf(
		"%s table at %#016x: %d subtables, %d frames, %d huge, "+
			"%d invalid, %d empty, %d unreadable",
		t.Level, t.Base,
		t.Count(paging.KindSubtable),
		t.Count(paging.KindLeafFrame),
		t.Count(paging.KindLeafHuge),
		t.Count(paging.KindInvalidHuge),
		t.Count(paging.KindEmpty),
		t.Unreadable(),
	)
}
