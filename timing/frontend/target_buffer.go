package frontend

// TargetBuffer is a direct-mapped table of taken-branch targets. The front
// end only needs to know whether a target is known at fetch time.
type TargetBuffer struct {
	entries []targetEntry
	valid   []bool
	size    uint32

	hits   uint64
	misses uint64
}

// targetEntry represents an entry in the target buffer.
type targetEntry struct {
	pc     uint64 // The PC of the branch instruction
	target uint64 // The target address
}

// NewTargetBuffer creates a target buffer. size must be a power of 2; 0
// selects 256 entries.
func NewTargetBuffer(size uint32) *TargetBuffer {
	if size == 0 {
		size = 256
	}

	return &TargetBuffer{
		entries: make([]targetEntry, size),
		valid:   make([]bool, size),
		size:    size,
	}
}

// index uses the low PC bits above the alignment bits.
func (b *TargetBuffer) index(pc uint64) uint32 {
	return uint32((pc >> 2) & uint64(b.size-1))
}

// Lookup returns the target recorded for pc, if any.
func (b *TargetBuffer) Lookup(pc uint64) (uint64, bool) {
	idx := b.index(pc)
	if b.valid[idx] && b.entries[idx].pc == pc {
		b.hits++
		return b.entries[idx].target, true
	}

	b.misses++
	return 0, false
}

// Update records the target of a taken branch, evicting any conflicting
// entry.
func (b *TargetBuffer) Update(pc, target uint64) {
	idx := b.index(pc)
	b.entries[idx] = targetEntry{pc: pc, target: target}
	b.valid[idx] = true
}

// HitRate returns the lookup hit rate as a percentage.
func (b *TargetBuffer) HitRate() float64 {
	total := b.hits + b.misses
	if total == 0 {
		return 0
	}
	return float64(b.hits) / float64(total) * 100
}

// Reset invalidates every entry and clears the counters.
func (b *TargetBuffer) Reset() {
	for i := range b.valid {
		b.valid[i] = false
	}
	b.hits = 0
	b.misses = 0
}
