package paging_test

import (
	"context"
	"errors"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/ptdump/paging"
)

var _ = Describe("Walker", func() {
	var (
		mockCtrl *gomock.Controller
		reader   *MockReader
		builder  paging.Builder
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		reader = NewMockReader(mockCtrl)
		builder = paging.MakeBuilder().
			WithReader(reader).
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	zeroEverywhere := func() {
		reader.EXPECT().
			ReadUint64(gomock.Any()).
			Return(uint64(0), nil).
			AnyTimes()
	}

	It("should report a table without entries", func() {
		zeroEverywhere()

		t, err := builder.Build().Walk(context.Background(), 0x1000)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Base).To(Equal(uint64(0x1000)))
		Expect(t.Records).To(HaveLen(paging.EntriesPerTable))
		Expect(t.HasEntries()).To(BeFalse())
		Expect(t.NonEmpty()).To(BeEmpty())
		Expect(t.Count(paging.KindEmpty)).To(Equal(paging.EntriesPerTable))
		Expect(t.Leaves()).To(BeZero())
		Expect(t.Count(paging.KindSubtable)).To(BeZero())
		Expect(t.ID).NotTo(BeEmpty())
	})

	It("should assume PML4 when the level is not recognized", func() {
		zeroEverywhere()

		t, err := builder.Build().Walk(context.Background(), 0x1000)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Level).To(Equal(paging.LevelPML4))
		Expect(t.LevelInferred).To(BeTrue())
		Expect(t.Warnings).To(ConsistOf(MatchError(paging.ErrLevelAssumed)))
	})

	It("should decode a PML4 subtable pointer", func() {
		reader.EXPECT().
			ReadUint64(uint64(0x1000)).
			Return(uint64(0x0000_0000_0020_3003), nil)
		zeroEverywhere()

		t, err := builder.Build().Walk(context.Background(), 0x1000)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.HasEntries()).To(BeTrue())
		Expect(t.NonEmpty()).To(HaveLen(1))

		r := t.NonEmpty()[0]
		Expect(r.Slot).To(Equal(0))
		Expect(r.Addr).To(Equal(uint64(0x1000)))
		Expect(r.Kind).To(Equal(paging.KindSubtable))
		Expect(r.Frame).To(Equal(uint64(0x203)))
		Expect(r.Mapping.ChildTable).To(Equal(uint64(0x1000 << 9)))
		Expect(r.Err).NotTo(HaveOccurred())
	})

	It("should align a misaligned base and warn", func() {
		var addrs []uint64
		reader.EXPECT().
			ReadUint64(gomock.Any()).
			DoAndReturn(func(addr uint64) (uint64, error) {
				addrs = append(addrs, addr)
				return 0, nil
			}).
			Times(paging.EntriesPerTable)

		t, err := builder.Build().Walk(context.Background(), 0x1001)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.RequestedBase).To(Equal(uint64(0x1001)))
		Expect(t.Base).To(Equal(uint64(0x1000)))
		Expect(t.Warnings).To(ContainElement(MatchError(paging.ErrMisalignedBase)))
		Expect(t.Warnings[0]).To(MatchError(
			"table misaligned, masking to 0x0000000000001000"))
		Expect(addrs[0]).To(Equal(uint64(0x1000)))
		Expect(addrs[511]).To(Equal(uint64(0x1000 + 511*8)))
	})

	It("should use the level it is given", func() {
		reader.EXPECT().
			ReadUint64(uint64(0x1000 + 8)).
			Return(uint64(0x1234_5083), nil)
		zeroEverywhere()

		t, err := builder.WithLevel(paging.LevelPD).Build().
			Walk(context.Background(), 0x1000)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Level).To(Equal(paging.LevelPD))
		Expect(t.LevelInferred).To(BeFalse())
		Expect(t.Warnings).To(BeEmpty())

		r, ok := t.Find(1)
		Expect(ok).To(BeTrue())
		Expect(r.Kind).To(Equal(paging.KindLeafHuge))
		Expect(r.Mapping.Size).To(Equal(uint64(2 << 20)))
		Expect(r.Mapping.Frames).To(Equal(paging.FrameRange{
			First: 0x12345,
			Last:  0x12345 + 511,
		}))
	})

	It("should report a huge PML4 entry without stopping", func() {
		reader.EXPECT().
			ReadUint64(uint64(pml4Base)).
			Return(uint64(0x1234_5083), nil)
		reader.EXPECT().
			ReadUint64(uint64(pml4Base + 8)).
			Return(uint64(0x203003), nil)
		zeroEverywhere()

		t, err := builder.Build().Walk(context.Background(), pml4Base)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Level).To(Equal(paging.LevelPML4))
		Expect(t.Warnings).To(BeEmpty())
		Expect(t.Count(paging.KindInvalidHuge)).To(Equal(1))
		Expect(t.Count(paging.KindSubtable)).To(Equal(1))

		r, _ := t.Find(0)
		Expect(r.Err).To(MatchError(paging.ErrInvalidHugeFlag))
		Expect(r.Frame).To(Equal(uint64(0x12345)))
	})

	It("should continue after an unreadable entry", func() {
		failure := errors.New("cannot access memory")
		reader.EXPECT().
			ReadUint64(uint64(pdBase + 2*8)).
			Return(uint64(0), failure)
		reader.EXPECT().
			ReadUint64(uint64(pdBase + 3*8)).
			Return(uint64(0x5003), nil)
		zeroEverywhere()

		t, err := builder.Build().Walk(context.Background(), pdBase)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Level).To(Equal(paging.LevelPD))
		Expect(t.Records).To(HaveLen(paging.EntriesPerTable))
		Expect(t.Unreadable()).To(Equal(1))
		Expect(t.NonEmpty()).To(HaveLen(2))

		r, _ := t.Find(2)
		Expect(r.Unreadable()).To(BeTrue())
		Expect(r.Err).To(MatchError(failure))

		var readErr *paging.ReadError
		Expect(errors.As(r.Err, &readErr)).To(BeTrue())
		Expect(readErr.Addr).To(Equal(pdBase + 16))

		r, _ = t.Find(3)
		Expect(r.Kind).To(Equal(paging.KindSubtable))
	})

	It("should stop between slots when cancelled", func() {
		zeroEverywhere()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		walker := builder.
			WithHook(paging.HookFunc(func(hc paging.HookCtx) {
				if hc.Pos == paging.HookPosEntry && hc.Record.Slot == 9 {
					cancel()
				}
			})).
			Build()

		t, err := walker.Walk(ctx, 0x1000)

		Expect(err).To(MatchError(paging.ErrCancelled))
		Expect(errors.Is(err, context.Canceled)).To(BeFalse())
		Expect(t.Cancelled).To(BeTrue())
		Expect(t.Records).To(HaveLen(10))
	})

	It("should invoke hooks in walk order", func() {
		zeroEverywhere()

		var positions []string
		slots := 0
		walker := builder.Build()
		walker.AcceptHook(paging.HookFunc(func(hc paging.HookCtx) {
			if hc.Pos == paging.HookPosEntry {
				Expect(hc.Record.Slot).To(Equal(slots))
				slots++
				return
			}

			Expect(hc.Domain).To(BeIdenticalTo(walker))
			positions = append(positions, hc.Pos.Name)
		}))

		_, err := walker.Walk(context.Background(), pml4Base)

		Expect(err).NotTo(HaveOccurred())
		Expect(walker.NumHooks()).To(Equal(1))
		Expect(positions).To(Equal([]string{"WalkStart", "WalkEnd"}))
		Expect(slots).To(Equal(paging.EntriesPerTable))
	})

	It("should panic without a reader", func() {
		Expect(func() { paging.MakeBuilder().Build() }).To(Panic())
	})
})
