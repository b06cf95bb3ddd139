package datarecording

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sarchlab/ptdump/paging"
)

// Table names used by the WalkRecorder.
const (
	WalkTable  = "walks"
	EntryTable = "entries"
)

// WalkRow is one walked table. Addresses are stored as hex strings because
// SQLite integers cannot hold canonical upper-half addresses.
type WalkRow struct {
	WalkID        string
	Base          string
	RequestedBase string
	Level         int
	LevelInferred bool
	Subtables     int
	Frames        int
	Huge          int
	InvalidHuge   int
	Empty         int
	Unreadable    int
	Cancelled     bool
	Warnings      string
}

// EntryRow is one nonempty or unreadable slot of a walked table.
type EntryRow struct {
	WalkID     string
	Slot       int
	Addr       string
	Raw        string
	Flags      string
	Kind       string
	VirtLow    string
	VirtHigh   string
	FrameFirst string
	FrameLast  string
	ChildTable string
	Error      string
}

// A WalkRecorder is a paging.Hook that records every walk it observes.
type WalkRecorder struct {
	recorder DataRecorder
	logger   *slog.Logger
}

// NewWalkRecorder creates the walk and entry tables in recorder.
func NewWalkRecorder(recorder DataRecorder) (*WalkRecorder, error) {
	if err := recorder.CreateTable(WalkTable, WalkRow{}); err != nil {
		return nil, err
	}

	if err := recorder.CreateTable(EntryTable, EntryRow{}); err != nil {
		return nil, err
	}

	return &WalkRecorder{recorder: recorder, logger: slog.Default()}, nil
}

// Func records entries as they are decoded and the walk once it ends.
func (r *WalkRecorder) Func(ctx paging.HookCtx) {
	var err error

	switch ctx.Pos {
	case paging.HookPosEntry:
		rec := ctx.Record
		if rec.Kind == paging.KindEmpty && !rec.Unreadable() {
			return
		}

		err = r.recorder.InsertData(EntryTable, MakeEntryRow(ctx.Table.ID, rec))
	case paging.HookPosWalkEnd:
		err = r.recorder.InsertData(WalkTable, MakeWalkRow(ctx.Table))
		if err == nil {
			err = r.recorder.Flush()
		}
	}

	if err != nil {
		r.logger.Error("recording walk failed",
			"walk", ctx.Table.ID, "error", err)
	}
}

func hex(v uint64) string {
	return fmt.Sprintf("%#016x", v)
}

// MakeWalkRow summarizes a table.
func MakeWalkRow(t *paging.Table) WalkRow {
	warnings := make([]string, 0, len(t.Warnings))
	for _, w := range t.Warnings {
		warnings = append(warnings, w.Error())
	}

	return WalkRow{
		WalkID:        t.ID,
		Base:          hex(t.Base),
		RequestedBase: hex(t.RequestedBase),
		Level:         int(t.Level),
		LevelInferred: t.LevelInferred,
		Subtables:     t.Count(paging.KindSubtable),
		Frames:        t.Count(paging.KindLeafFrame),
		Huge:          t.Count(paging.KindLeafHuge),
		InvalidHuge:   t.Count(paging.KindInvalidHuge),
		Empty:         t.Count(paging.KindEmpty),
		Unreadable:    t.Unreadable(),
		Cancelled:     t.Cancelled,
		Warnings:      strings.Join(warnings, "; "),
	}
}

// MakeEntryRow flattens a record.
func MakeEntryRow(walkID string, r *paging.Record) EntryRow {
	row := EntryRow{
		WalkID: walkID,
		Slot:   r.Slot,
		Addr:   hex(r.Addr),
		Kind:   r.Kind.String(),
	}

	if r.Err != nil {
		row.Error = r.Err.Error()
	}

	if r.Unreadable() {
		row.Kind = "unreadable"
		return row
	}

	row.Raw = hex(r.Raw)
	row.Flags = r.Flags.String()

	switch r.Kind {
	case paging.KindSubtable:
		row.ChildTable = hex(r.Mapping.ChildTable)
		fallthrough
	case paging.KindLeafFrame, paging.KindLeafHuge:
		row.VirtLow = hex(r.Mapping.Virt.Low)
		row.VirtHigh = hex(r.Mapping.Virt.High)
		row.FrameFirst = hex(r.Mapping.Frames.First)
		row.FrameLast = hex(r.Mapping.Frames.Last)
	case paging.KindInvalidHuge:
		row.FrameFirst = hex(r.Frame)
		row.FrameLast = hex(r.Frame)
	}

	return row
}
