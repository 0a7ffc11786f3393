// Package bpred provides a speculative global-history branch predictor.
//
// The predictor keeps one global history register per hardware thread and a
// shared pattern history table (PHT) of saturating counters. Every prediction
// hands back a Token holding the history value seen before the prediction's
// own speculative update. The pipeline later returns the token exactly once,
// to Resolve when the branch retires or to Squash when it is flushed, and the
// predictor uses the snapshot to train the PHT or to roll the history back.
package bpred

// SatCounter is an unsigned counter that clamps at its limits instead of
// wrapping. Widths of 1 to 8 bits are supported.
type SatCounter struct {
	value uint8
	max   uint8
}

// NewSatCounter creates a counter of the given bit width, initialized to 0.
func NewSatCounter(width uint) SatCounter {
	if width == 0 || width > 8 {
		panic("bpred: saturating counter width must be between 1 and 8")
	}

	return SatCounter{max: uint8((uint16(1) << width) - 1)}
}

// Increment raises the counter by one, saturating at Max.
func (c *SatCounter) Increment() {
	if c.value < c.max {
		c.value++
	}
}

// Decrement lowers the counter by one, saturating at 0.
func (c *SatCounter) Decrement() {
	if c.value > 0 {
		c.value--
	}
}

// Read returns the current counter value.
func (c SatCounter) Read() uint8 {
	return c.value
}

// Max returns the largest value the counter can hold.
func (c SatCounter) Max() uint8 {
	return c.max
}

// Threshold returns 2^(width-1) - 1. Values above it mean "taken".
func (c SatCounter) Threshold() uint8 {
	return c.max >> 1
}

// Reset sets the counter back to 0.
func (c *SatCounter) Reset() {
	c.value = 0
}
