package bpred

import "github.com/pkg/errors"

// ConfigurationError reports predictor parameters that cannot be built. It
// is fatal: the simulator has to be reconfigured.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "invalid branch predictor configuration: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Contract violations. They are only reported when the predictor is built
// with WithContractChecks; otherwise the call is applied as given.
var (
	// ErrTokenConsumed is returned when a token is passed to Resolve or
	// Squash a second time.
	ErrTokenConsumed = errors.New("token already consumed")

	// ErrThreadMismatch is returned when a token is returned for a thread
	// other than the one that issued it.
	ErrThreadMismatch = errors.New("token issued for another thread")

	// ErrOutOfOrder is returned when a history restore arrives while a
	// younger branch of the same thread is still in flight.
	ErrOutOfOrder = errors.New("history restore while younger branches are in flight")
)
