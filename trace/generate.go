package trace

// Loop generates the branches of a counted loop executed iterations times.
// The backward conditional branch at pc is taken trip-1 times and then falls
// through. Each loop execution is followed by an unconditional jump back to
// the loop head at target, modeling an enclosing loop.
func Loop(thread int, pc, target uint64, trip, iterations int) []Record {
	records := make([]Record, 0, iterations*(trip+1))

	for i := 0; i < iterations; i++ {
		for j := 0; j < trip; j++ {
			records = append(records, Record{
				Thread: thread,
				PC:     pc,
				Kind:   Conditional,
				Taken:  j < trip-1,
				Target: target,
			})
		}

		records = append(records, Record{
			Thread: thread,
			PC:     pc + 4,
			Kind:   Unconditional,
			Taken:  true,
			Target: target,
		})
	}

	return records
}

// Alternating generates n executions of a conditional branch that flips
// between taken and not taken, starting with taken.
func Alternating(thread int, pc, target uint64, n int) []Record {
	records := make([]Record, n)

	for i := range records {
		records[i] = Record{
			Thread: thread,
			PC:     pc,
			Kind:   Conditional,
			Taken:  i%2 == 0,
			Target: target,
		}
	}

	return records
}

// Interleave merges per-thread traces round-robin, one record at a time.
// Program order within each input is kept.
func Interleave(traces ...[]Record) []Record {
	total := 0
	for _, t := range traces {
		total += len(t)
	}

	merged := make([]Record, 0, total)
	for i := 0; len(merged) < total; i++ {
		for _, t := range traces {
			if i < len(t) {
				merged = append(merged, t[i])
			}
		}
	}

	return merged
}
