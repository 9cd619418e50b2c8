// Package simerr defines the error classes raised by the simulation core.
//
// Errors are plain values wrapped with fmt.Errorf and classified with
// errors.Is against the sentinels below.
package simerr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks malformed or out-of-range settings. Raised before
	// the first timestep runs.
	ErrConfiguration = errors.New("configuration error")

	// ErrLogic marks a state that construction-time validation should have
	// made unreachable.
	ErrLogic = errors.New("logic error")

	// ErrAssertion marks a violated runtime invariant (budget underflow,
	// empty active set).
	ErrAssertion = errors.New("runtime assertion failed")
)

// Configf returns an error wrapping ErrConfiguration.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Logicf returns an error wrapping ErrLogic.
func Logicf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLogic, fmt.Sprintf(format, args...))
}

// Assertf returns an error wrapping ErrAssertion.
func Assertf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAssertion, fmt.Sprintf(format, args...))
}
