package bpred

// GlobalHistoryBank holds one global history register per hardware thread.
// Bit 0 of a register is the most recent outcome (1 = taken).
type GlobalHistoryBank struct {
	regs []uint64
	mask uint64
}

// NewGlobalHistoryBank creates numThreads registers of the given width, all
// initialized to 0.
func NewGlobalHistoryBank(numThreads int, historyBits uint) *GlobalHistoryBank {
	return &GlobalHistoryBank{
		regs: make([]uint64, numThreads),
		mask: lowMask(historyBits),
	}
}

// lowMask returns a mask with the low n bits set.
func lowMask(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}

	return (uint64(1) << n) - 1
}

// NumThreads returns the number of registers in the bank.
func (b *GlobalHistoryBank) NumThreads() int {
	return len(b.regs)
}

// Mask returns the history mask.
func (b *GlobalHistoryBank) Mask() uint64 {
	return b.mask
}

// Current returns the masked history register of thread tid.
func (b *GlobalHistoryBank) Current(tid int) uint64 {
	return b.regs[tid] & b.mask
}

// ShiftIn appends an outcome as the new bit 0, dropping the oldest bit.
func (b *GlobalHistoryBank) ShiftIn(tid int, taken bool) {
	v := b.regs[tid] << 1
	if taken {
		v |= 1
	}

	b.regs[tid] = v & b.mask
}

// Restore overwrites the register of thread tid with a snapshot.
func (b *GlobalHistoryBank) Restore(tid int, snapshot uint64) {
	b.regs[tid] = snapshot & b.mask
}

// ClearLastBit zeroes bit 0 and leaves the older bits alone. It marks the most
// recent outcome as not taken; it does not restore any earlier state.
func (b *GlobalHistoryBank) ClearLastBit(tid int) {
	b.regs[tid] &= b.mask &^ 1
}

// Reset sets every register back to 0.
func (b *GlobalHistoryBank) Reset() {
	for i := range b.regs {
		b.regs[i] = 0
	}
}
