// Package frontend models the fetch and branch-resolution side of a pipeline
// around a bpred.Predictor.
//
// The model replays a correct-path branch trace. Each thread keeps a window of
// in-flight branches. A branch is predicted when fetched and resolved once
// ResolveDepth younger branches have been fetched behind it. When a resolved
// branch turns out mispredicted, every younger branch of that thread is
// squashed youngest first, the mispredicted branch is resolved as squashed,
// and the discarded branches are fetched again.
package frontend

import (
	"io"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/specbp/timing/bpred"
	"github.com/sarchlab/specbp/trace"
)

// Config holds the front-end model parameters.
type Config struct {
	// ResolveDepth is the number of younger branches a thread fetches before
	// its oldest in-flight branch resolves. 0 resolves every branch right
	// after it is fetched. Default: 8.
	ResolveDepth int
	// TargetBufferSize is the number of target buffer entries. Must be a
	// power of 2. Default: 256.
	TargetBufferSize uint32
	// WindowSize is the number of retired branches per misprediction-rate
	// sample. Default: 1000.
	WindowSize int
	// MispredictPenalty is the number of cycles charged per misprediction
	// in the report. Default: 12 cycles.
	MispredictPenalty uint64
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ResolveDepth:      8,
		TargetBufferSize:  256,
		WindowSize:        1000,
		MispredictPenalty: 12,
	}
}

// Stats holds front-end statistics.
type Stats struct {
	// Branches is the number of retired branches.
	Branches      uint64
	Conditional   uint64
	Unconditional uint64
	// Mispredictions counts retired branches whose fetch direction was wrong.
	Mispredictions uint64
	// Squashed counts in-flight branches discarded during recovery.
	Squashed uint64
	// Refetches counts branches fetched again after a recovery.
	Refetches uint64
	// BTBMisses counts taken predictions fetched down the fall-through path
	// because no target was known.
	BTBMisses uint64
}

// MispredictionRate returns the misprediction rate as a percentage.
func (s Stats) MispredictionRate() float64 {
	if s.Branches == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.Branches) * 100
}

// Report summarizes a run.
type Report struct {
	Stats          Stats
	Predictor      bpred.Stats
	TargetHitRate  float64
	PenaltyCycles  uint64
	Windows        int
	MeanWindowRate float64
	P90WindowRate  float64
	MaxWindowRate  float64
}

// Option configures a Frontend.
type Option func(*Frontend)

// WithLogger sets the logger used for recovery events.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(f *Frontend) {
		f.logger = logger
	}
}

type inflightBranch struct {
	rec trace.Record
	tok *bpred.Token
	// predicted is the direction fetch followed.
	predicted bool
}

// Frontend drives a predictor with a branch trace.
type Frontend struct {
	predictor *bpred.Predictor
	targets   *TargetBuffer
	config    Config
	logger    logrus.FieldLogger

	windows [][]*inflightBranch
	stats   Stats

	windowRates       []float64
	windowRetired     int
	windowMispredicts int
}

// New creates a Frontend around predictor.
func New(predictor *bpred.Predictor, config Config, opts ...Option) *Frontend {
	if config.ResolveDepth < 0 {
		config.ResolveDepth = 0
	}
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultConfig().WindowSize
	}

	f := &Frontend{
		predictor: predictor,
		targets:   NewTargetBuffer(config.TargetBufferSize),
		config:    config,
		logger:    logrus.StandardLogger(),
		windows:   make([][]*inflightBranch, predictor.Config().NumThreads),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Stats returns the front-end statistics.
func (f *Frontend) Stats() Stats {
	return f.stats
}

// InFlight returns the number of in-flight branches of thread tid.
func (f *Frontend) InFlight(tid int) int {
	return len(f.windows[tid])
}

// Run replays src to the end and drains every thread.
func (f *Frontend) Run(src trace.Source) error {
	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		if err := f.Fetch(rec); err != nil {
			return err
		}
	}

	return f.Drain()
}

// Fetch predicts one branch and resolves older branches of the same thread
// as the window fills up.
func (f *Frontend) Fetch(rec trace.Record) error {
	if rec.Thread < 0 || rec.Thread >= len(f.windows) {
		return errors.Errorf("branch for thread %d, predictor has %d threads",
			rec.Thread, len(f.windows))
	}

	f.fetch(rec)

	for len(f.windows[rec.Thread]) > f.config.ResolveDepth {
		if err := f.retireOldest(rec.Thread); err != nil {
			return err
		}
	}

	return nil
}

// Drain resolves every in-flight branch, oldest first.
func (f *Frontend) Drain() error {
	for tid := range f.windows {
		for len(f.windows[tid]) > 0 {
			if err := f.retireOldest(tid); err != nil {
				return err
			}
		}
	}

	f.closeWindow()

	return nil
}

func (f *Frontend) fetch(rec trace.Record) {
	var (
		predicted bool
		tok       *bpred.Token
	)

	if rec.Kind == trace.Unconditional {
		predicted, tok = f.predictor.PredictUnconditional(rec.Thread, rec.PC)
	} else {
		predicted, tok = f.predictor.PredictConditional(rec.Thread, rec.PC)
	}

	if predicted {
		if _, ok := f.targets.Lookup(rec.PC); !ok {
			f.predictor.NotifyBTBMiss(rec.Thread)
			f.stats.BTBMisses++
			predicted = false
		}
	}

	f.windows[rec.Thread] = append(f.windows[rec.Thread], &inflightBranch{
		rec:       rec,
		tok:       tok,
		predicted: predicted,
	})
}

func (f *Frontend) retireOldest(tid int) error {
	b := f.windows[tid][0]

	if b.predicted != b.rec.Taken {
		return f.recover(tid)
	}

	err := f.predictor.Resolve(tid, b.rec.PC, b.rec.Taken, b.tok, false)
	if err != nil {
		return errors.Wrapf(err, "resolve of branch at 0x%x", b.rec.PC)
	}

	f.windows[tid] = f.windows[tid][1:]
	f.retired(b, false)

	return nil
}

// recover handles a mispredicted oldest branch. Younger branches are
// squashed youngest first so that each restore sees the history its own
// prediction left behind.
func (f *Frontend) recover(tid int) error {
	window := f.windows[tid]
	b := window[0]
	younger := window[1:]

	for i := len(younger) - 1; i >= 0; i-- {
		if err := f.predictor.Squash(tid, younger[i].tok); err != nil {
			return errors.Wrapf(err, "squash of branch at 0x%x", younger[i].rec.PC)
		}
		f.stats.Squashed++
	}

	err := f.predictor.Resolve(tid, b.rec.PC, b.rec.Taken, b.tok, true)
	if err != nil {
		return errors.Wrapf(err, "resolve of mispredicted branch at 0x%x", b.rec.PC)
	}

	refetch := make([]trace.Record, len(younger))
	for i, y := range younger {
		refetch[i] = y.rec
	}

	f.windows[tid] = nil
	f.retired(b, true)

	f.logger.WithFields(logrus.Fields{
		"tid":      tid,
		"pc":       b.rec.PC,
		"taken":    b.rec.Taken,
		"squashed": len(younger),
	}).Debug("branch mispredicted, refetching")

	for _, rec := range refetch {
		f.fetch(rec)
		f.stats.Refetches++
	}

	return nil
}

func (f *Frontend) retired(b *inflightBranch, mispredicted bool) {
	if b.rec.Taken {
		f.targets.Update(b.rec.PC, b.rec.Target)
	}

	f.stats.Branches++
	if b.rec.Kind == trace.Unconditional {
		f.stats.Unconditional++
	} else {
		f.stats.Conditional++
	}

	f.windowRetired++
	if mispredicted {
		f.stats.Mispredictions++
		f.windowMispredicts++
	}

	if f.windowRetired == f.config.WindowSize {
		f.closeWindow()
	}
}

func (f *Frontend) closeWindow() {
	if f.windowRetired == 0 {
		return
	}

	rate := float64(f.windowMispredicts) / float64(f.windowRetired) * 100
	f.windowRates = append(f.windowRates, rate)
	f.windowRetired = 0
	f.windowMispredicts = 0
}

// WindowRates returns the misprediction rate of every closed window.
func (f *Frontend) WindowRates() []float64 {
	return f.windowRates
}

// Report summarizes the run so far.
func (f *Frontend) Report() (Report, error) {
	r := Report{
		Stats:         f.stats,
		Predictor:     f.predictor.Stats(),
		TargetHitRate: f.targets.HitRate(),
		PenaltyCycles: f.stats.Mispredictions * f.config.MispredictPenalty,
		Windows:       len(f.windowRates),
	}

	if len(f.windowRates) == 0 {
		return r, nil
	}

	data := stats.Float64Data(f.windowRates)

	var err error
	if r.MeanWindowRate, err = stats.Mean(data); err != nil {
		return r, errors.Wrap(err, "failed to compute mean window rate")
	}
	if r.P90WindowRate, err = stats.Percentile(data, 90); err != nil {
		return r, errors.Wrap(err, "failed to compute p90 window rate")
	}
	if r.MaxWindowRate, err = stats.Max(data); err != nil {
		return r, errors.Wrap(err, "failed to compute max window rate")
	}

	return r, nil
}

// Reset clears the in-flight windows, target buffer, statistics and the
// predictor.
func (f *Frontend) Reset() {
	for i := range f.windows {
		f.windows[i] = nil
	}

	f.targets.Reset()
	f.predictor.Reset()
	f.stats = Stats{}
	f.windowRates = nil
	f.windowRetired = 0
	f.windowMispredicts = 0
}
