package sync

import (
	"errors"
)

// ErrCycleInProgress is returned when a cycle is requested while another is
// still running.
var ErrCycleInProgress = errors.New("a mailbox cycle is already in progress")

// ConfigurationError indicates the mailbox settings are incomplete, so no
// cycle can run.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "mailbox not configured: " + e.Reason
}

// IsConfigurationError reports whether err (or any error in its chain) is a
// ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// errStopped ends a wait for the cycle guard when the scheduler stops.
var errStopped = errors.New("scheduler stopped")

var errNotConfigured = &ConfigurationError{Reason: "host, username and password are required"}
