package core

import "errors"

var (
	// ErrInvalidConfig indicates a dimensional inconsistency or a degenerate
	// noise parameter discovered during Configure. The simulator stays
	// Unconfigured when Configure fails.
	ErrInvalidConfig = errors.New("invalid simulator configuration")
	// ErrInvalidInput indicates a per-call input rejected without tearing
	// down the simulation (bad factorial argument, non-finite command).
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyConfigured indicates Configure on a non-Unconfigured simulator.
	ErrAlreadyConfigured = errors.New("simulator already configured")
	// ErrNotConfigured indicates Start before a successful Configure.
	ErrNotConfigured = errors.New("simulator not configured")
	// ErrNotRunning indicates a timer event or Stop outside the Running phase.
	ErrNotRunning = errors.New("simulator not running")
	// ErrNotStopped indicates Cleanup while the simulator is still running.
	ErrNotStopped = errors.New("simulator not stopped")
)
