package bpred

// PatternHistoryTable is an array of saturating counters shared by all
// threads.
//
// Entries are indexed by OR-ing the shifted branch address with the global
// history, not XOR-ing as gshare does. An address bit that is already 1 hides
// the history bit at the same position. This matches the predictor being
// modeled and must stay an OR.
type PatternHistoryTable struct {
	counters  []SatCounter
	mask      uint64
	threshold uint8
}

// NewPatternHistoryTable creates a table of size counters, each ctrBits wide.
// The index space 2^historyBits must fit in the table.
func NewPatternHistoryTable(
	size uint64,
	historyBits uint,
	ctrBits uint,
) (*PatternHistoryTable, error) {
	if err := checkTableSize(size, historyBits); err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	t := &PatternHistoryTable{
		counters: make([]SatCounter, size),
		mask:     lowMask(historyBits),
	}

	proto := NewSatCounter(ctrBits)
	for i := range t.counters {
		t.counters[i] = proto
	}
	t.threshold = proto.Threshold()

	return t, nil
}

// Index computes the table index for a shifted branch address and a history
// value.
func (t *PatternHistoryTable) Index(shiftedAddr, history uint64) uint64 {
	return (shiftedAddr | history) & t.mask
}

// Predict returns true (taken) if the counter at idx is above the threshold.
func (t *PatternHistoryTable) Predict(idx uint64) bool {
	return t.counters[idx].Read() > t.threshold
}

// Commit trains the counter at idx toward the given outcome.
func (t *PatternHistoryTable) Commit(idx uint64, taken bool) {
	if taken {
		t.counters[idx].Increment()
	} else {
		t.counters[idx].Decrement()
	}
}

// Counter returns the value of the counter at idx.
func (t *PatternHistoryTable) Counter(idx uint64) uint8 {
	return t.counters[idx].Read()
}

// Threshold returns the taken threshold shared by all counters.
func (t *PatternHistoryTable) Threshold() uint8 {
	return t.threshold
}

// Size returns the number of entries.
func (t *PatternHistoryTable) Size() int {
	return len(t.counters)
}

// Reset clears every counter to 0.
func (t *PatternHistoryTable) Reset() {
	for i := range t.counters {
		t.counters[i].Reset()
	}
}
