package pipeline

import (
	"errors"
	"fmt"
)

// StepError wraps a stage-step failure with a retry class. Fatal failures
// (content policy rejections, personas with no usable data) will not succeed
// on a later attempt, so the watchdog and resumption logic should not burn
// external calls retrying them.
type StepError struct {
	Fatal bool
	Err   error
}

func (e *StepError) Error() string {
	return e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func Fatalf(format string, args ...any) error {
	return &StepError{Fatal: true, Err: fmt.Errorf(format, args...)}
}

func Transientf(format string, args ...any) error {
	return &StepError{Fatal: false, Err: fmt.Errorf(format, args...)}
}

func IsFatal(err error) bool {
	var stepErr *StepError
	return errors.As(err, &stepErr) && stepErr.Fatal
}
