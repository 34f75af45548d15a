package errutil

import "errors"

// Steady-state conditions: both are expected outcomes of repeated scheduled
// runs and must never abort a module.
var (
	// ErrDataNotAvailableYet means the upstream source has no data for the
	// requested period yet, e.g. reporting lag. The request is persisted as
	// a retry record for a later run.
	ErrDataNotAvailableYet = errors.New("data not available yet")

	// ErrDataAlreadyExist means an idempotency pre-check found data for this
	// identity and date. The step is skipped with an EXISTS status.
	ErrDataAlreadyExist = errors.New("data already exist")
)

// ConfigurationMissingError is raised when a required setting or connection
// is absent. Fatal to the current module invocation, never retried.
type ConfigurationMissingError struct {
	Key string
}

func (e *ConfigurationMissingError) Error() string {
	return "missing configuration: " + e.Key
}

// ConfigurationInvalidError is raised when a setting has the wrong shape or
// value. Fatal, not retried.
type ConfigurationInvalidError struct {
	Key    string
	Reason string
}

func (e *ConfigurationInvalidError) Error() string {
	return "invalid configuration " + e.Key + ": " + e.Reason
}

// IsConfiguration reports whether err belongs to the configuration error
// class, which aborts the whole module run.
func IsConfiguration(err error) bool {
	var missing *ConfigurationMissingError
	var invalid *ConfigurationInvalidError

	return errors.As(err, &missing) || errors.As(err, &invalid)
}
