package memory_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ptdump/memory"
)

var _ = Describe("Storage", func() {
	var storage *memory.Storage

	BeforeEach(func() {
		storage = memory.NewStorage()
	})

	It("should read and write in single unit", func() {
		Expect(storage.Write(0, []byte{1, 2, 3, 4})).To(Succeed())

		res, err := storage.Read(0, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal([]byte{1, 2}))

		res, _ = storage.Read(1, 2)
		Expect(res).To(Equal([]byte{2, 3}))
	})

	It("should read and write across units", func() {
		Expect(storage.Write(4094, []byte{1, 2, 3, 4})).To(Succeed())

		res, err := storage.Read(4094, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal([]byte{1, 2, 3, 4}))
		Expect(storage.NumUnits()).To(Equal(2))
	})

	It("should fail to read memory that was never written", func() {
		_, err := storage.Read(0x2000, 8)
		Expect(err).To(MatchError(memory.ErrUnmapped))

		Expect(storage.Write(0x1ff8, []byte{1, 2, 3, 4, 5, 6, 7, 8})).To(Succeed())
		_, err = storage.Read(0x1ffc, 8)
		Expect(err).To(MatchError(memory.ErrUnmapped))
		Expect(storage.Mapped(0x1000)).To(BeTrue())
		Expect(storage.Mapped(0x2000)).To(BeFalse())
	})

	It("should hold the top of the address space", func() {
		Expect(storage.WriteUint64(0xffff_ffff_ffff_fff8, 0x8000_0000_0000_0001)).
			To(Succeed())

		v, err := storage.ReadUint64(0xffff_ffff_ffff_fff8)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(0x8000_0000_0000_0001)))
	})

	It("should reject accesses that wrap around", func() {
		err := storage.Write(0xffff_ffff_ffff_fffc, make([]byte, 8))
		Expect(err).To(MatchError(memory.ErrOutOfRange))

		_, err = storage.Read(0xffff_ffff_ffff_fffc, 8)
		Expect(err).To(MatchError(memory.ErrOutOfRange))
	})

	It("should decode little-endian entries", func() {
		Expect(storage.Write(0x1000, []byte{0x03, 0x30, 0x20, 0, 0, 0, 0, 0})).
			To(Succeed())

		v, err := storage.ReadUint64(0x1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(0x203003)))
	})

	It("should load a segment from a reader", func() {
		data := bytes.Repeat([]byte{0xab}, 4096+16)

		n, err := storage.LoadSegment(0x10_0000, bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(uint64(len(data))))
		Expect(storage.NumUnits()).To(Equal(2))

		res, err := storage.Read(0x10_0ff8, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal(bytes.Repeat([]byte{0xab}, 8)))
	})

	It("should load files into a new storage", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "pml4.bin")
		Expect(os.WriteFile(path, []byte{1, 0, 0, 0, 0, 0, 0, 0}, 0644)).
			To(Succeed())

		s, err := memory.Load([]memory.Segment{{Addr: 0xffff_ffff_ffff_f000, Path: path}})
		Expect(err).NotTo(HaveOccurred())

		v, err := s.ReadUint64(0xffff_ffff_ffff_f000)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(1)))

		_, err = memory.Load([]memory.Segment{{Addr: 0, Path: filepath.Join(dir, "missing")}})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Segment", func() {
	It("should parse ADDR=PATH", func() {
		seg, err := memory.ParseSegment("0xfffffffffffff000=dumps/pml4.bin")
		Expect(err).NotTo(HaveOccurred())
		Expect(seg.Addr).To(Equal(uint64(0xffff_ffff_ffff_f000)))
		Expect(seg.Path).To(Equal("dumps/pml4.bin"))
		Expect(seg.String()).To(Equal("0xfffffffffffff000=dumps/pml4.bin"))
	})

	It("should reject malformed segments", func() {
		for _, s := range []string{"pml4.bin", "0x1000=", "rip=pml4.bin"} {
			_, err := memory.ParseSegment(s)
			Expect(err).To(MatchError(memory.ErrInvalidSegment))
		}
	})

	It("should parse a list of segments", func() {
		segs, err := memory.ParseSegments("0x1000=a.bin, ,4096=b.bin")
		Expect(err).NotTo(HaveOccurred())
		Expect(segs).To(Equal([]memory.Segment{
			{Addr: 0x1000, Path: "a.bin"},
			{Addr: 4096, Path: "b.bin"},
		}))
	})
})
