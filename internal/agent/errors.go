package agent

import (
	"errors"
	"fmt"
)

// TransientUIError marks a device interaction that failed but is worth
// retrying on a later profile (tap missed, screenshot failed).
type TransientUIError struct {
	Op  string
	Err error
}

func (e *TransientUIError) Error() string { return fmt.Sprintf("transient ui failure in %s: %v", e.Op, e.Err) }
func (e *TransientUIError) Unwrap() error { return e.Err }

// VerificationMismatch means an action completed but the screen did not
// end up in the expected state.
type VerificationMismatch struct {
	Expected string
	Got      string
}

func (e *VerificationMismatch) Error() string {
	return fmt.Sprintf("verification mismatch: expected %s, got %s", e.Expected, e.Got)
}

// OracleCallFailure wraps a failed model call after retries.
type OracleCallFailure struct {
	Op  string
	Err error
}

func (e *OracleCallFailure) Error() string { return fmt.Sprintf("oracle call %s failed: %v", e.Op, e.Err) }
func (e *OracleCallFailure) Unwrap() error { return e.Err }

// FatalInitError aborts the whole session: no device, no model, no
// usable configuration.
type FatalInitError struct {
	Err error
}

func (e *FatalInitError) Error() string { return fmt.Sprintf("fatal init failure: %v", e.Err) }
func (e *FatalInitError) Unwrap() error { return e.Err }

// IsFatal reports whether the error must end the session immediately.
func IsFatal(err error) bool {
	var fatal *FatalInitError
	return errors.As(err, &fatal)
}

// Categorize maps an error to a short class label for logs and summary
// counters.
func Categorize(err error) string {
	if err == nil {
		return "none"
	}
	var (
		transient *TransientUIError
		mismatch  *VerificationMismatch
		oracleErr *OracleCallFailure
		fatal     *FatalInitError
	)
	switch {
	case errors.As(err, &fatal):
		return "fatal_init"
	case errors.As(err, &oracleErr):
		return "oracle"
	case errors.As(err, &mismatch):
		return "verification"
	case errors.As(err, &transient):
		return "transient_ui"
	default:
		return "other"
	}
}
