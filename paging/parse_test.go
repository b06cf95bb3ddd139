package paging_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ptdump/paging"
)

var _ = Describe("Parsing", func() {
	It("should parse addresses in any base", func() {
		for s, v := range map[string]uint64{
			"4096":                  4096,
			"0x1000":                0x1000,
			"0xffff_ffff_ffff_f000": 0xffff_ffff_ffff_f000,
			" 0o10000 ":             4096,
		} {
			got, err := paging.ParseAddress(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(v))
		}
	})

	It("should reject addresses that are not integers", func() {
		_, err := paging.ParseAddress("rsp")
		Expect(err).To(MatchError(paging.ErrInvalidArgument))

		_, err = paging.ParseAddress("0x1_0000_0000_0000_0000")
		Expect(err).To(MatchError(paging.ErrInvalidArgument))
	})

	It("should parse levels", func() {
		for s, l := range map[string]paging.Level{
			"":     0,
			"auto": 0,
			"1":    paging.LevelPT,
			"pd":   paging.LevelPD,
			"PDPT": paging.LevelPDPT,
			"4":    paging.LevelPML4,
		} {
			got, err := paging.ParseLevel(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(l))
		}

		_, err := paging.ParseLevel("5")
		Expect(err).To(MatchError(paging.ErrInvalidLevel))

		_, err = paging.ParseLevel("pml5")
		Expect(err).To(MatchError(paging.ErrInvalidLevel))
	})
})
