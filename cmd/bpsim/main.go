// Package main provides bpsim, a trace-driven simulator for the speculative
// global-history branch predictor.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/k0kubun/pp/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sarchlab/specbp/timing/bpred"
	"github.com/sarchlab/specbp/timing/frontend"
	"github.com/sarchlab/specbp/trace"
)

var (
	configPath  = flag.String("config", "", "Path to predictor configuration JSON file")
	depth       = flag.Int("depth", frontend.DefaultConfig().ResolveDepth, "In-flight branches per thread before the oldest resolves")
	btbSize     = flag.Uint("btb", uint(frontend.DefaultConfig().TargetBufferSize), "Target buffer entries (power of 2)")
	window      = flag.Int("window", frontend.DefaultConfig().WindowSize, "Retired branches per misprediction-rate window")
	penalty     = flag.Uint64("penalty", frontend.DefaultConfig().MispredictPenalty, "Cycles charged per misprediction")
	check       = flag.Bool("check", false, "Reject out-of-order or repeated token hand-backs")
	traceEvents = flag.Bool("trace-events", false, "Log every predictor operation (implies -v)")
	verbose     = flag.Bool("v", false, "Verbose output")
	dump        = flag.Bool("dump", false, "Pretty-print the final predictor state")
	gen         = flag.String("gen", "", "Write a synthetic trace (loop|alt) to the output file instead of simulating")
	genCount    = flag.Int("n", 100, "Iterations for -gen")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: bpsim [options] <trace-file>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *verbose || *traceEvents {
		log.SetLevel(log.DebugLevel)
	}

	path := flag.Arg(0)

	if *gen != "" {
		if err := generateFile(*gen, *genCount, path); err != nil {
			log.WithError(err).Error("Failed to generate trace")
			os.Exit(1)
		}
		return
	}

	bpConfig := bpred.DefaultConfig()
	if *configPath != "" {
		var err error
		bpConfig, err = bpred.LoadConfig(*configPath)
		if err != nil {
			log.WithError(err).Error("Failed to load predictor config")
			os.Exit(1)
		}
	}

	feConfig := frontend.Config{
		ResolveDepth:      *depth,
		TargetBufferSize:  uint32(*btbSize),
		WindowSize:        *window,
		MispredictPenalty: *penalty,
	}

	var opts []bpred.Option
	if *check {
		opts = append(opts, bpred.WithContractChecks())
	}
	if *traceEvents {
		opts = append(opts, bpred.WithHook(bpred.NewLogHook(log.StandardLogger())))
	}

	p, report, err := simulate(*bpConfig, feConfig, path, opts...)
	if err != nil {
		log.WithError(err).Error("Simulation failed")
		os.Exit(1)
	}

	printReport(os.Stdout, path, report)

	if *dump {
		pp.Println(p.Config(), p.Stats())
	}
}

// simulate replays the trace at path through a new predictor.
func simulate(
	bpConfig bpred.Config,
	feConfig frontend.Config,
	path string,
	opts ...bpred.Option,
) (*bpred.Predictor, frontend.Report, error) {
	p, err := bpred.NewPredictor(bpConfig, opts...)
	if err != nil {
		return nil, frontend.Report{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, frontend.Report{}, errors.Wrapf(err, "failed to open trace %q", path)
	}
	defer f.Close()

	log.WithFields(log.Fields{
		"trace":        path,
		"threads":      bpConfig.NumThreads,
		"history_bits": bpConfig.GlobalHistoryBits,
		"depth":        feConfig.ResolveDepth,
	}).Debug("Starting simulation")

	fe := frontend.New(p, feConfig, frontend.WithLogger(log.StandardLogger()))
	if err := fe.Run(trace.NewReader(f)); err != nil {
		return nil, frontend.Report{}, errors.Wrapf(err, "failed to simulate %q", path)
	}

	report, err := fe.Report()
	if err != nil {
		return nil, frontend.Report{}, err
	}

	return p, report, nil
}

// generateFile writes a synthetic single-thread trace.
func generateFile(kind string, n int, path string) error {
	var records []trace.Record

	switch kind {
	case "loop":
		records = trace.Loop(0, 0x1010, 0x1000, 8, n)
	case "alt":
		records = trace.Alternating(0, 0x1010, 0x1000, n)
	default:
		return errors.Errorf("unknown trace kind %q", kind)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	defer f.Close()

	return trace.Write(f, records)
}

// printReport prints the simulation report.
func printReport(w io.Writer, path string, r frontend.Report) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Trace: %s\n", path)
	fmt.Fprintf(w, "Branches: %d (%d conditional, %d unconditional)\n",
		r.Stats.Branches, r.Stats.Conditional, r.Stats.Unconditional)
	fmt.Fprintf(w, "Mispredictions: %d (%.2f%%)\n",
		r.Stats.Mispredictions, r.Stats.MispredictionRate())
	fmt.Fprintf(w, "Penalty: %d cycles\n", r.PenaltyCycles)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Recovery:\n")
	fmt.Fprintf(w, "  Squashed:   %d\n", r.Stats.Squashed)
	fmt.Fprintf(w, "  Refetches:  %d\n", r.Stats.Refetches)
	fmt.Fprintf(w, "  BTB misses: %d (target hit rate %.1f%%)\n",
		r.Stats.BTBMisses, r.TargetHitRate)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Predictor:\n")
	fmt.Fprintf(w, "  Predictions:       %d (%.1f%% taken)\n",
		r.Predictor.Predictions(), r.Predictor.TakenRate())
	fmt.Fprintf(w, "  Commits:           %d\n", r.Predictor.Commits)
	fmt.Fprintf(w, "  Squashed resolves: %d\n", r.Predictor.SquashedResolves)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Windows: %d (mean %.2f%%, p90 %.2f%%, max %.2f%%)\n",
		r.Windows, r.MeanWindowRate, r.P90WindowRate, r.MaxWindowRate)
}
