package errorsx

import (
	"errors"
	"fmt"
)

// ReasonedError wraps an error with a reason code.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error {
	return e.Err
}

// Wrap attaches a reason code to an error (no-op if err is nil or already reasoned).
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Classify ties err to a taxonomy sentinel and a reason code in one step,
// so callers can match either with errors.Is or Reason.
func Classify(sentinel error, err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel) {
		return Wrap(err, reason)
	}
	return Wrap(fmt.Errorf("%w: %w", sentinel, err), reason)
}

// Configf builds a fatal configuration error.
func Configf(format string, args ...any) error {
	return Classify(ErrConfiguration, fmt.Errorf(format, args...), ReasonConfiguration)
}

// Reason extracts a reason code from an error, if present.
func Reason(err error) ReasonCode {
	if err == nil {
		return ReasonUnknown
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

// HasReason returns true if err contains the given reason code.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}
