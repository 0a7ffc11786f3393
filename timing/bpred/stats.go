package bpred

// Stats holds statistics for the predictor.
type Stats struct {
	// Lookups is the number of conditional predictions made.
	Lookups uint64
	// Unconditional is the number of unconditional predictions made.
	Unconditional uint64
	// PredictedTaken counts predictions (of both kinds) that returned taken.
	PredictedTaken uint64
	// BTBMisses is the number of BTB miss notifications.
	BTBMisses uint64
	// Commits is the number of resolves of correctly predicted branches.
	Commits uint64
	// CommitsTaken is the number of Commits whose outcome was taken.
	CommitsTaken uint64
	// SquashedResolves is the number of resolves of mispredicted branches.
	SquashedResolves uint64
	// Squashes is the number of tokens discarded through Squash.
	Squashes uint64
}

// Predictions returns the total number of predictions made.
func (s Stats) Predictions() uint64 {
	return s.Lookups + s.Unconditional
}

// MispredictionRate returns the share of resolved branches that were
// mispredicted, as a percentage.
func (s Stats) MispredictionRate() float64 {
	resolved := s.Commits + s.SquashedResolves
	if resolved == 0 {
		return 0
	}
	return float64(s.SquashedResolves) / float64(resolved) * 100
}

// TakenRate returns the share of predictions that were taken, as a
// percentage.
func (s Stats) TakenRate() float64 {
	total := s.Predictions()
	if total == 0 {
		return 0
	}
	return float64(s.PredictedTaken) / float64(total) * 100
}
