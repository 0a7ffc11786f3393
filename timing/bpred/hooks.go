package bpred

import (
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"
)

// Hook positions invoked by the Predictor. Hooks receive the token as the
// HookCtx Item and an Event as the Detail.
var (
	HookPosPredict = &sim.HookPos{Name: "BPred Predict"}
	HookPosBTBMiss = &sim.HookPos{Name: "BPred BTB Miss"}
	HookPosResolve = &sim.HookPos{Name: "BPred Resolve"}
	HookPosSquash  = &sim.HookPos{Name: "BPred Squash"}
)

// Event describes one predictor operation.
type Event struct {
	Thread        int
	PC            uint64
	Unconditional bool
	// Predicted is the outcome returned at predict time.
	Predicted bool
	// Taken is the actual outcome. Only set on resolve.
	Taken bool
	// Squashed is set when a resolve followed a misprediction.
	Squashed      bool
	HistoryBefore uint64
	HistoryAfter  uint64
}

// LogHook writes every predictor event to a logrus logger at debug level.
type LogHook struct {
	logger logrus.FieldLogger
}

// NewLogHook creates a LogHook writing to logger.
func NewLogHook(logger logrus.FieldLogger) *LogHook {
	return &LogHook{logger: logger}
}

// Func implements sim.Hook.
func (h *LogHook) Func(ctx sim.HookCtx) {
	evt, ok := ctx.Detail.(Event)
	if !ok {
		return
	}

	fields := logrus.Fields{
		"tid":     evt.Thread,
		"pc":      evt.PC,
		"history": evt.HistoryBefore,
		"next":    evt.HistoryAfter,
	}
	if tok, ok := ctx.Item.(*Token); ok && tok != nil {
		fields["token"] = tok.ID
		fields["seq"] = tok.seq
	}

	entry := h.logger.WithFields(fields)

	switch ctx.Pos {
	case HookPosPredict:
		entry.WithField("uncond", evt.Unconditional).
			Debugf("predict %v", evt.Predicted)
	case HookPosBTBMiss:
		entry.Debug("btb miss, last history bit cleared")
	case HookPosResolve:
		entry.WithField("squashed", evt.Squashed).
			Debugf("resolve taken=%v predicted=%v", evt.Taken, evt.Predicted)
	case HookPosSquash:
		entry.Debug("squash")
	}
}
