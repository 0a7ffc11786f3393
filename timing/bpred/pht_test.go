package bpred_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/specbp/timing/bpred"
)

var _ = Describe("PatternHistoryTable", func() {
	var pht *bpred.PatternHistoryTable

	BeforeEach(func() {
		var err error
		pht, err = bpred.NewPatternHistoryTable(16, 4, 2)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should combine address and history with OR", func() {
		Expect(pht.Index(0b0101, 0b0011)).To(Equal(uint64(0b0111)))
		Expect(pht.Index(0b0100, 0b0100)).To(Equal(uint64(0b0100)))
	})

	It("should mask the index to the history width", func() {
		Expect(pht.Index(0x35, 0)).To(Equal(uint64(0x5)))
	})

	It("should predict not taken until trained past the threshold", func() {
		Expect(pht.Threshold()).To(Equal(uint8(1)))
		Expect(pht.Predict(3)).To(BeFalse())

		pht.Commit(3, true)
		Expect(pht.Predict(3)).To(BeFalse())

		pht.Commit(3, true)
		Expect(pht.Predict(3)).To(BeTrue())
		Expect(pht.Counter(3)).To(Equal(uint8(2)))
	})

	It("should saturate counters", func() {
		for i := 0; i < 10; i++ {
			pht.Commit(1, true)
		}
		Expect(pht.Counter(1)).To(Equal(uint8(3)))

		for i := 0; i < 10; i++ {
			pht.Commit(1, false)
		}
		Expect(pht.Counter(1)).To(Equal(uint8(0)))
	})

	It("should reset counters", func() {
		pht.Commit(2, true)
		pht.Reset()
		Expect(pht.Counter(2)).To(Equal(uint8(0)))
		Expect(pht.Size()).To(Equal(16))
	})

	It("should reject a table smaller than the index space", func() {
		_, err := bpred.NewPatternHistoryTable(4, 4, 2)
		Expect(err).To(HaveOccurred())

		var cfgErr *bpred.ConfigurationError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("at least 16"))
	})
})
