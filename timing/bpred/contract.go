package bpred

import "github.com/pkg/errors"

// contractChecker tracks the outstanding tokens of every thread in issue
// order so that reuse and out-of-order restores can be reported.
type contractChecker struct {
	outstanding [][]uint64
}

func newContractChecker(numThreads int) *contractChecker {
	return &contractChecker{outstanding: make([][]uint64, numThreads)}
}

func (c *contractChecker) issue(tid int, seq uint64) {
	c.outstanding[tid] = append(c.outstanding[tid], seq)
}

// check validates handing tok back for thread tid. restoring is true for
// operations that overwrite the history register.
func (c *contractChecker) check(tid int, tok *Token, restoring bool) error {
	if tok.consumed {
		return errors.Wrapf(ErrTokenConsumed, "thread %d, seq %d", tok.thread, tok.seq)
	}

	if tok.thread != tid {
		return errors.Wrapf(ErrThreadMismatch,
			"token of thread %d returned for thread %d", tok.thread, tid)
	}

	if !restoring {
		return nil
	}

	live := c.outstanding[tid]
	if n := len(live); n > 0 && live[n-1] != tok.seq {
		return errors.Wrapf(ErrOutOfOrder,
			"thread %d: restore of seq %d while seq %d is in flight",
			tid, tok.seq, live[n-1])
	}

	return nil
}

func (c *contractChecker) retire(tid int, seq uint64) {
	live := c.outstanding[tid]
	for i := len(live) - 1; i >= 0; i-- {
		if live[i] == seq {
			c.outstanding[tid] = append(live[:i], live[i+1:]...)
			return
		}
	}
}

func (c *contractChecker) inFlight(tid int) int {
	return len(c.outstanding[tid])
}

func (c *contractChecker) reset() {
	for i := range c.outstanding {
		c.outstanding[i] = c.outstanding[i][:0]
	}
}
