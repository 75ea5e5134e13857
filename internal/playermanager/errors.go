package playermanager

import "github.com/sendspin/endpoint-core/internal/errors"

// FailureMode names the closed vocabulary of C7 failure modes (spec §4.7).
// Callers (notably internal/api) switch on this to pick an HTTP status.
type FailureMode string

const (
	FailureNameInvalid    FailureMode = "NameInvalid"
	FailureNameConflict   FailureMode = "NameConflict"
	FailureNotFound       FailureMode = "NotFound"
	FailureDeviceInvalid  FailureMode = "DeviceInvalid"
	FailureAlreadyRunning FailureMode = "AlreadyRunning"
	FailureNotRunning     FailureMode = "NotRunning"
	FailureBusy           FailureMode = "Busy"
	FailureTimeout        FailureMode = "Timeout"
	FailureInternal       FailureMode = "Internal"
)

// categoryFor maps a FailureMode to the errors package's category, which
// internal/api in turn maps to an HTTP status (spec §6).
func categoryFor(mode FailureMode) errors.ErrorCategory {
	switch mode {
	case FailureNameInvalid, FailureDeviceInvalid:
		return errors.CategoryValidation
	case FailureNameConflict, FailureAlreadyRunning, FailureNotRunning:
		return errors.CategoryConflict
	case FailureNotFound:
		return errors.CategoryNotFound
	case FailureBusy:
		return errors.CategoryConflict
	case FailureTimeout:
		return errors.CategoryTimeout
	default:
		return errors.CategoryGeneric
	}
}

// newFailure builds a tagged EnhancedError for one of C7's failure modes.
func newFailure(mode FailureMode, format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("playermanager").
		Category(categoryFor(mode)).
		Context("failure_mode", string(mode)).
		Build()
}

// FailureModeOf extracts the FailureMode tagged onto err by this package,
// or "" if err didn't come from here (used by internal/api's status
// mapping and by tests).
func FailureModeOf(err error) FailureMode {
	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		return ""
	}
	if ee.Context == nil {
		return ""
	}
	if mode, ok := ee.Context["failure_mode"].(string); ok {
		return FailureMode(mode)
	}
	return ""
}
