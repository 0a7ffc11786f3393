package bpred

import (
	"encoding/json"
	"os"

	"github.com/go-multierror/multierror"
	"github.com/pkg/errors"
)

// Config holds the construction parameters of the predictor.
type Config struct {
	// NumThreads is the number of hardware thread contexts. Each thread gets
	// its own global history register. Default: 1.
	NumThreads int `json:"num_threads"`

	// GlobalHistoryBits is the width of each history register and of the
	// PHT index mask. Default: 6.
	GlobalHistoryBits uint `json:"global_history_bits"`

	// PredictorSize is the number of PHT entries. It must be at least
	// 2^GlobalHistoryBits. Default: 64.
	PredictorSize uint64 `json:"predictor_size"`

	// PHTCtrBits is the width of each PHT saturating counter (1 to 8).
	// Default: 2.
	PHTCtrBits uint `json:"phtctr_bits"`

	// InstShiftAmt is the number of low branch address bits dropped before
	// indexing (instruction alignment). Default: 2.
	InstShiftAmt uint `json:"inst_shift_amt"`

	// TrainOnSquash makes a resolve of a mispredicted branch also train the
	// PHT with the correct outcome. Off by default, in which case only
	// correctly predicted branches train the table.
	TrainOnSquash bool `json:"train_on_squash"`
}

// DefaultConfig returns the 6-bit OR-indexed configuration.
func DefaultConfig() *Config {
	return &Config{
		NumThreads:        1,
		GlobalHistoryBits: 6,
		PredictorSize:     64,
		PHTCtrBits:        2,
		InstShiftAmt:      2,
	}
}

// LoadConfig loads a Config from a JSON file. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read predictor config from %q", path)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse predictor config from %q", path)
	}

	return config, nil
}

// SaveConfig writes the Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to serialize predictor config")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write predictor config to %q", path)
	}

	return nil
}

// Validate reports every invalid parameter at once. The returned error, if
// any, is a *ConfigurationError.
func (c *Config) Validate() error {
	var problems []error

	if c.NumThreads < 1 {
		problems = append(problems, errors.New("num_threads must be >= 1"))
	}
	if c.GlobalHistoryBits == 0 || c.GlobalHistoryBits > 32 {
		problems = append(problems,
			errors.New("global_history_bits must be between 1 and 32"))
	} else if err := checkTableSize(c.PredictorSize, c.GlobalHistoryBits); err != nil {
		problems = append(problems, err)
	}
	if c.PHTCtrBits == 0 || c.PHTCtrBits > 8 {
		problems = append(problems, errors.New("phtctr_bits must be between 1 and 8"))
	}
	if c.InstShiftAmt >= 64 {
		problems = append(problems, errors.New("inst_shift_amt must be < 64"))
	}

	if len(problems) == 0 {
		return nil
	}

	return &ConfigurationError{Err: multierror.Of(problems...)}
}

// checkTableSize makes sure every index reachable with historyBits fits in a
// table of size entries.
func checkTableSize(size uint64, historyBits uint) error {
	if historyBits >= 64 {
		return errors.Errorf("global_history_bits %d cannot be indexed", historyBits)
	}

	need := uint64(1) << historyBits
	if size < need {
		return errors.Errorf(
			"predictor_size %d is too small for %d global history bits, "+
				"must be at least %d",
			size, historyBits, need)
	}

	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
