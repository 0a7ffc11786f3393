package bpred

import (
	"github.com/sarchlab/akita/v4/sim"
)

// Token carries the speculative state of one in-flight branch from its
// prediction to its resolve or squash. A token must be handed back exactly
// once.
type Token struct {
	// ID names the branch in hook events. It is only assigned when the
	// predictor has hooks attached.
	ID string

	thread   int
	seq      uint64
	snapshot uint64
	taken    bool
	consumed bool
}

// Thread returns the thread that issued the token.
func (t *Token) Thread() int { return t.thread }

// Seq returns the per-thread issue sequence number of the token.
func (t *Token) Seq() uint64 { return t.seq }

// Snapshot returns the history register value before the prediction.
func (t *Token) Snapshot() uint64 { return t.snapshot }

// Taken returns the predicted outcome.
func (t *Token) Taken() bool { return t.taken }

// Consumed reports whether the token was already resolved or squashed.
func (t *Token) Consumed() bool { return t.consumed }

// Option configures a Predictor.
type Option func(*Predictor)

// WithName sets the name reported to hooks.
func WithName(name string) Option {
	return func(p *Predictor) {
		p.name = name
	}
}

// WithHook attaches a hook at construction time.
func WithHook(hook sim.Hook) Option {
	return func(p *Predictor) {
		p.AcceptHook(hook)
	}
}

// WithContractChecks makes Resolve and Squash reject reused tokens, tokens
// returned for the wrong thread and out-of-order history restores.
func WithContractChecks() Option {
	return func(p *Predictor) {
		p.checker = newContractChecker(p.config.NumThreads)
	}
}

// Predictor is a global-history predictor with a per-thread speculative
// history register and a shared PHT.
//
// Callers must hand history restores back youngest first: when a branch
// turns out mispredicted, every younger in-flight branch of the same thread
// has to be squashed before the mispredicted branch is resolved.
type Predictor struct {
	sim.HookableBase

	name    string
	config  Config
	history *GlobalHistoryBank
	pht     *PatternHistoryTable

	branchMask uint64
	nextSeq    []uint64
	checker    *contractChecker

	stats Stats
}

// NewPredictor creates a predictor. It returns a *ConfigurationError if the
// configuration cannot be built.
func NewPredictor(config Config, opts ...Option) (*Predictor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	pht, err := NewPatternHistoryTable(
		config.PredictorSize, config.GlobalHistoryBits, config.PHTCtrBits)
	if err != nil {
		return nil, err
	}

	p := &Predictor{
		name:       "BranchPredictor",
		config:     config,
		history:    NewGlobalHistoryBank(config.NumThreads, config.GlobalHistoryBits),
		pht:        pht,
		branchMask: lowMask(config.GlobalHistoryBits),
		nextSeq:    make([]uint64, config.NumThreads),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Name returns the name of the predictor.
func (p *Predictor) Name() string {
	return p.name
}

// Config returns a copy of the predictor configuration.
func (p *Predictor) Config() Config {
	return p.config
}

// History returns the current history register of thread tid.
func (p *Predictor) History(tid int) uint64 {
	return p.history.Current(tid)
}

// PHT returns the pattern history table.
func (p *Predictor) PHT() *PatternHistoryTable {
	return p.pht
}

// Stats returns the predictor statistics.
func (p *Predictor) Stats() Stats {
	return p.stats
}

// InFlight returns the number of outstanding tokens of thread tid. It is only
// tracked with contract checks enabled and is 0 otherwise.
func (p *Predictor) InFlight(tid int) int {
	if p.checker == nil {
		return 0
	}
	return p.checker.inFlight(tid)
}

func (p *Predictor) shiftAddr(addr uint64) uint64 {
	return (addr >> p.config.InstShiftAmt) & p.branchMask
}

func (p *Predictor) issue(tid int, snapshot uint64, taken bool) *Token {
	tok := &Token{
		thread:   tid,
		seq:      p.nextSeq[tid],
		snapshot: snapshot,
		taken:    taken,
	}
	p.nextSeq[tid]++

	if p.NumHooks() > 0 {
		tok.ID = sim.GetIDGenerator().Generate()
	}

	if p.checker != nil {
		p.checker.issue(tid, tok.seq)
	}

	return tok
}

func (p *Predictor) consume(tid int, tok *Token) {
	tok.consumed = true

	if p.checker != nil {
		p.checker.retire(tid, tok.seq)
	}
}

func (p *Predictor) invoke(pos *sim.HookPos, tok *Token, evt Event) {
	if p.NumHooks() == 0 {
		return
	}

	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    pos,
		Item:   tok,
		Detail: evt,
	})
}

// PredictUnconditional records an unconditional branch. It is always
// predicted taken and does not look at the PHT.
func (p *Predictor) PredictUnconditional(tid int, pc uint64) (bool, *Token) {
	snapshot := p.history.Current(tid)
	p.history.ShiftIn(tid, true)

	tok := p.issue(tid, snapshot, true)
	p.stats.Unconditional++
	p.stats.PredictedTaken++

	p.invoke(HookPosPredict, tok, Event{
		Thread:        tid,
		PC:            pc,
		Unconditional: true,
		Predicted:     true,
		HistoryBefore: snapshot,
		HistoryAfter:  p.history.Current(tid),
	})

	return true, tok
}

// PredictConditional predicts a conditional branch at branchAddr and shifts
// the prediction into the thread's history.
func (p *Predictor) PredictConditional(tid int, branchAddr uint64) (bool, *Token) {
	idx := p.pht.Index(p.shiftAddr(branchAddr), p.history.Current(tid))
	taken := p.pht.Predict(idx)

	snapshot := p.history.Current(tid)
	p.history.ShiftIn(tid, taken)

	tok := p.issue(tid, snapshot, taken)
	p.stats.Lookups++
	if taken {
		p.stats.PredictedTaken++
	}

	p.invoke(HookPosPredict, tok, Event{
		Thread:        tid,
		PC:            branchAddr,
		Predicted:     taken,
		HistoryBefore: snapshot,
		HistoryAfter:  p.history.Current(tid),
	})

	return taken, tok
}

// NotifyBTBMiss marks the latest history bit of thread tid as not taken. It
// is called when a branch predicted taken has no known target.
func (p *Predictor) NotifyBTBMiss(tid int) {
	before := p.history.Current(tid)
	p.history.ClearLastBit(tid)
	p.stats.BTBMisses++

	p.invoke(HookPosBTBMiss, nil, Event{
		Thread:        tid,
		HistoryBefore: before,
		HistoryAfter:  p.history.Current(tid),
	})
}

// Resolve hands a token back once the branch outcome is known.
//
// If squashed is false the prediction was right: the PHT entry chosen with
// the token's snapshot is trained and the history is left as it is. If
// squashed is true the branch was mispredicted: the history is restored to
// the snapshot and the real outcome is shifted in. Younger branches of the
// thread must have been squashed already.
func (p *Predictor) Resolve(
	tid int,
	branchAddr uint64,
	taken bool,
	tok *Token,
	squashed bool,
) error {
	if p.checker != nil {
		if err := p.checker.check(tid, tok, squashed); err != nil {
			return err
		}
	}

	before := p.history.Current(tid)
	idx := p.pht.Index(p.shiftAddr(branchAddr), tok.snapshot)

	if squashed {
		p.history.Restore(tid, tok.snapshot)
		p.history.ShiftIn(tid, taken)
		if p.config.TrainOnSquash {
			p.pht.Commit(idx, taken)
		}
		p.stats.SquashedResolves++
	} else {
		p.pht.Commit(idx, taken)
		p.stats.Commits++
		if taken {
			p.stats.CommitsTaken++
		}
	}

	p.consume(tid, tok)

	p.invoke(HookPosResolve, tok, Event{
		Thread:        tid,
		PC:            branchAddr,
		Predicted:     tok.taken,
		Taken:         taken,
		Squashed:      squashed,
		HistoryBefore: before,
		HistoryAfter:  p.history.Current(tid),
	})

	return nil
}

// Squash discards a branch whose outcome will never be known and restores
// the thread's history to the token's snapshot.
func (p *Predictor) Squash(tid int, tok *Token) error {
	if p.checker != nil {
		if err := p.checker.check(tid, tok, true); err != nil {
			return err
		}
	}

	before := p.history.Current(tid)
	p.history.Restore(tid, tok.snapshot)
	p.stats.Squashes++

	p.consume(tid, tok)

	p.invoke(HookPosSquash, tok, Event{
		Thread:        tid,
		Predicted:     tok.taken,
		HistoryBefore: before,
		HistoryAfter:  p.history.Current(tid),
	})

	return nil
}

// Reset clears all histories, counters and statistics. Tokens issued before
// the reset must not be handed back.
func (p *Predictor) Reset() {
	p.history.Reset()
	p.pht.Reset()

	for i := range p.nextSeq {
		p.nextSeq[i] = 0
	}

	if p.checker != nil {
		p.checker.reset()
	}

	p.stats = Stats{}
}
