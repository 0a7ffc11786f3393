package bpred_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/specbp/timing/bpred"
)

// addrFor returns a branch address whose shifted form is idx.
func addrFor(idx uint64) uint64 {
	return idx << 2
}

var _ = Describe("Predictor", func() {
	var (
		config bpred.Config
		p      *bpred.Predictor
	)

	BeforeEach(func() {
		config = bpred.Config{
			NumThreads:        2,
			GlobalHistoryBits: 4,
			PredictorSize:     16,
			PHTCtrBits:        2,
			InstShiftAmt:      2,
		}

		var err error
		p, err = bpred.NewPredictor(config)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Construction", func() {
		It("should fail when the table is smaller than 2^history bits", func() {
			config.PredictorSize = 4
			_, err := bpred.NewPredictor(config)

			var cfgErr *bpred.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("predictor_size 4 is too small"))
		})

		It("should accept a table larger than needed", func() {
			config.PredictorSize = 64
			_, err := bpred.NewPredictor(config)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Unconditional branches", func() {
		It("should always predict taken and shift in a 1", func() {
			for i := 0; i < 6; i++ {
				taken, tok := p.PredictUnconditional(0, 0x1000)
				Expect(taken).To(BeTrue())
				Expect(tok.Taken()).To(BeTrue())
			}
			Expect(p.History(0)).To(Equal(uint64(0xF)))
		})

		It("should snapshot the history before the shift", func() {
			p.PredictUnconditional(0, 0x1000)
			_, tok := p.PredictUnconditional(0, 0x1000)
			Expect(tok.Snapshot()).To(Equal(uint64(1)))
			Expect(p.History(0)).To(Equal(uint64(3)))
		})

		It("should not touch the PHT", func() {
			_, tok := p.PredictUnconditional(0, addrFor(5))
			Expect(p.Squash(0, tok)).To(Succeed())
			for i := 0; i < 16; i++ {
				Expect(p.PHT().Counter(uint64(i))).To(Equal(uint8(0)))
			}
		})
	})

	Describe("Conditional branches", func() {
		It("should predict not taken from a cold counter and train it on resolve", func() {
			taken, tok := p.PredictConditional(0, addrFor(5))
			Expect(taken).To(BeFalse())
			Expect(tok.Snapshot()).To(Equal(uint64(0)))
			Expect(p.History(0)).To(Equal(uint64(0)))

			Expect(p.Resolve(0, addrFor(5), false, tok, false)).To(Succeed())
			Expect(p.PHT().Counter(5)).To(Equal(uint8(0)))
			Expect(tok.Consumed()).To(BeTrue())
		})

		It("should learn a taken branch", func() {
			for i := 0; i < 2; i++ {
				_, tok := p.PredictConditional(0, addrFor(5))
				Expect(p.Resolve(0, addrFor(5), true, tok, false)).To(Succeed())
			}
			Expect(p.PHT().Counter(5)).To(Equal(uint8(2)))

			taken, _ := p.PredictConditional(0, addrFor(5))
			Expect(taken).To(BeTrue())
			Expect(p.History(0)).To(Equal(uint64(1)))
		})

		It("should index with the token snapshot on resolve", func() {
			p.PredictUnconditional(0, 0x2000)
			_, tok := p.PredictConditional(0, addrFor(4))
			Expect(tok.Snapshot()).To(Equal(uint64(1)))

			// History moved on since the prediction.
			p.PredictUnconditional(0, 0x2000)

			Expect(p.Resolve(0, addrFor(4), true, tok, false)).To(Succeed())
			Expect(p.PHT().Counter(4 | 1)).To(Equal(uint8(1)))
			Expect(p.PHT().Counter(4 | 3)).To(Equal(uint8(0)))
		})

		It("should not touch history on a correct resolve", func() {
			_, tok := p.PredictConditional(0, addrFor(2))
			p.PredictUnconditional(0, 0x2000)
			before := p.History(0)

			Expect(p.Resolve(0, addrFor(2), false, tok, false)).To(Succeed())
			Expect(p.History(0)).To(Equal(before))
		})

		It("should mask oversized addresses", func() {
			_, tok := p.PredictConditional(0, addrFor(0xF5))
			Expect(p.Resolve(0, addrFor(0xF5), true, tok, false)).To(Succeed())
			Expect(p.PHT().Counter(5)).To(Equal(uint8(1)))
		})

		It("should share the PHT between threads", func() {
			for i := 0; i < 2; i++ {
				_, tok := p.PredictConditional(1, addrFor(6))
				Expect(p.Resolve(1, addrFor(6), true, tok, false)).To(Succeed())
			}

			taken, _ := p.PredictConditional(0, addrFor(6))
			Expect(taken).To(BeTrue())
			Expect(p.History(1)).To(Equal(uint64(0)))
		})
	})

	Describe("BTB miss", func() {
		It("should clear bit 0 and leave other bits", func() {
			p.PredictUnconditional(0, 0x1000)
			p.PredictConditional(0, addrFor(0))
			p.PredictUnconditional(0, 0x1000)
			before := p.History(0)
			Expect(before & 1).To(Equal(uint64(1)))

			p.NotifyBTBMiss(0)

			Expect(p.History(0) & 1).To(Equal(uint64(0)))
			Expect(p.History(0) &^ 1).To(Equal(before &^ 1))
			Expect(p.Stats().BTBMisses).To(Equal(uint64(1)))
		})
	})

	Describe("Recovery", func() {
		It("should restore the snapshot on squash", func() {
			p.PredictUnconditional(0, 0x1000)
			s := p.History(0)
			_, tok := p.PredictUnconditional(0, 0x1004)

			Expect(p.Squash(0, tok)).To(Succeed())
			Expect(p.History(0)).To(Equal(s))
		})

		It("should restore and append the real outcome on a squashed resolve", func() {
			p.PredictUnconditional(0, 0x1000)
			s0 := p.History(0)

			predicted, tokA := p.PredictConditional(0, addrFor(3))
			Expect(predicted).To(BeFalse())
			_, tokB := p.PredictConditional(0, addrFor(9))
			Expect(tokB.Snapshot()).To(Equal(s0 << 1))

			// Youngest first: B, then the mispredicted A.
			Expect(p.Squash(0, tokB)).To(Succeed())
			Expect(p.History(0)).To(Equal(tokB.Snapshot()))

			Expect(p.Resolve(0, addrFor(3), true, tokA, true)).To(Succeed())
			Expect(p.History(0)).To(Equal((s0<<1 | 1) & 0xF))
		})

		It("should not train the PHT on a squashed resolve by default", func() {
			_, tok := p.PredictConditional(0, addrFor(5))
			Expect(p.Resolve(0, addrFor(5), true, tok, true)).To(Succeed())
			Expect(p.PHT().Counter(5)).To(Equal(uint8(0)))
			Expect(p.Stats().SquashedResolves).To(Equal(uint64(1)))
		})

		It("should train the PHT on a squashed resolve when configured", func() {
			config.TrainOnSquash = true
			p, _ = bpred.NewPredictor(config)

			_, tok := p.PredictConditional(0, addrFor(5))
			Expect(p.Resolve(0, addrFor(5), true, tok, true)).To(Succeed())
			Expect(p.PHT().Counter(5)).To(Equal(uint8(1)))
		})

		It("should unwind a deep speculative path", func() {
			s0 := p.History(0)
			tokens := make([]*bpred.Token, 0)
			for i := 0; i < 6; i++ {
				_, tok := p.PredictUnconditional(0, uint64(0x1000+4*i))
				tokens = append(tokens, tok)
			}

			for i := len(tokens) - 1; i >= 0; i-- {
				Expect(p.Squash(0, tokens[i])).To(Succeed())
				Expect(p.History(0)).To(Equal(tokens[i].Snapshot()))
			}
			Expect(p.History(0)).To(Equal(s0))
		})
	})

	Describe("Contract checks", func() {
		BeforeEach(func() {
			var err error
			p, err = bpred.NewPredictor(config, bpred.WithContractChecks())
			Expect(err).NotTo(HaveOccurred())
		})

		It("should reject a token used twice", func() {
			_, tok := p.PredictConditional(0, addrFor(1))
			Expect(p.Resolve(0, addrFor(1), false, tok, false)).To(Succeed())

			err := p.Squash(0, tok)
			Expect(errors.Is(err, bpred.ErrTokenConsumed)).To(BeTrue())
		})

		It("should reject a token returned to another thread", func() {
			_, tok := p.PredictConditional(0, addrFor(1))
			err := p.Resolve(1, addrFor(1), false, tok, false)
			Expect(errors.Is(err, bpred.ErrThreadMismatch)).To(BeTrue())
		})

		It("should reject a restore with younger branches in flight", func() {
			_, tokA := p.PredictConditional(0, addrFor(3))
			_, tokB := p.PredictConditional(0, addrFor(9))
			before := p.History(0)

			err := p.Resolve(0, addrFor(3), true, tokA, true)
			Expect(errors.Is(err, bpred.ErrOutOfOrder)).To(BeTrue())
			Expect(p.History(0)).To(Equal(before))
			Expect(tokA.Consumed()).To(BeFalse())

			Expect(p.Squash(0, tokB)).To(Succeed())
			Expect(p.Resolve(0, addrFor(3), true, tokA, true)).To(Succeed())
			Expect(p.InFlight(0)).To(Equal(0))
		})

		It("should allow in-order retirement with younger branches in flight", func() {
			_, tokA := p.PredictConditional(0, addrFor(3))
			_, tokB := p.PredictConditional(0, addrFor(9))

			Expect(p.Resolve(0, addrFor(3), false, tokA, false)).To(Succeed())
			Expect(p.InFlight(0)).To(Equal(1))
			Expect(p.Resolve(0, addrFor(9), false, tokB, false)).To(Succeed())
			Expect(p.InFlight(0)).To(Equal(0))
		})

		It("should track threads separately", func() {
			_, tok0 := p.PredictConditional(0, addrFor(3))
			p.PredictConditional(1, addrFor(3))

			Expect(p.Squash(0, tok0)).To(Succeed())
			Expect(p.InFlight(1)).To(Equal(1))
		})
	})

	Describe("Without contract checks", func() {
		It("should apply a reused token silently", func() {
			_, tok := p.PredictUnconditional(0, 0x1000)
			Expect(p.Squash(0, tok)).To(Succeed())

			p.PredictUnconditional(0, 0x1000)
			p.PredictUnconditional(0, 0x1000)
			Expect(p.Squash(0, tok)).To(Succeed())
			Expect(p.History(0)).To(Equal(tok.Snapshot()))
			Expect(p.InFlight(0)).To(Equal(0))
		})
	})

	Describe("Statistics and reset", func() {
		It("should count operations", func() {
			_, t1 := p.PredictConditional(0, addrFor(1))
			_, t2 := p.PredictUnconditional(0, 0x1000)
			Expect(p.Squash(0, t2)).To(Succeed())
			Expect(p.Resolve(0, addrFor(1), true, t1, true)).To(Succeed())

			stats := p.Stats()
			Expect(stats.Lookups).To(Equal(uint64(1)))
			Expect(stats.Unconditional).To(Equal(uint64(1)))
			Expect(stats.Predictions()).To(Equal(uint64(2)))
			Expect(stats.PredictedTaken).To(Equal(uint64(1)))
			Expect(stats.Squashes).To(Equal(uint64(1)))
			Expect(stats.SquashedResolves).To(Equal(uint64(1)))
			Expect(stats.MispredictionRate()).To(BeNumerically("~", 100.0, 0.1))
			Expect(stats.TakenRate()).To(BeNumerically("~", 50.0, 0.1))
		})

		It("should clear all state", func() {
			for i := 0; i < 3; i++ {
				_, tok := p.PredictConditional(0, addrFor(7))
				Expect(p.Resolve(0, addrFor(7), true, tok, false)).To(Succeed())
			}
			p.PredictUnconditional(1, 0x1000)

			p.Reset()

			Expect(p.History(0)).To(Equal(uint64(0)))
			Expect(p.History(1)).To(Equal(uint64(0)))
			Expect(p.PHT().Counter(7)).To(Equal(uint8(0)))
			Expect(p.Stats()).To(Equal(bpred.Stats{}))

			_, tok := p.PredictConditional(0, addrFor(7))
			Expect(tok.Seq()).To(Equal(uint64(0)))
		})
	})

	It("should keep instances independent", func() {
		other, err := bpred.NewPredictor(config)
		Expect(err).NotTo(HaveOccurred())

		p.PredictUnconditional(0, 0x1000)
		Expect(other.History(0)).To(Equal(uint64(0)))
	})
})
