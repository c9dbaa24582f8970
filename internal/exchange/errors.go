package exchange

import (
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying: timeouts, 5xx-equivalents,
// connection resets. A timed-out call is an unknown outcome, not a confirmed
// failure; reconciliation settles it.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("exchange %s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a rejection that retrying cannot fix: invalid symbol,
// below-minimum quantity, rejected order.
type PermanentError struct {
	Op     string
	Reason string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("exchange %s: rejected: %s", e.Op, e.Reason)
}

func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

func Permanent(op, reason string) error {
	return &PermanentError{Op: op, Reason: reason}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
