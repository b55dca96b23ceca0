package runtime

import (
	"errors"
	"fmt"
)

// ErrFatal marks every error that aborts the run. The walker population is
// unusable after one of these.
var ErrFatal = errors.New("fatal walker set error")

var (
	ErrEmptySet           = errors.New("walker set is empty")
	ErrInvalidSize        = errors.New("invalid walker count")
	ErrTargetMismatch     = errors.New("global target population mismatch")
	ErrPopulationMismatch = errors.New("population does not match target")
	ErrZeroWeight         = errors.New("global weight sum is zero")
	ErrLiveViews          = errors.New("walker views still live")
	ErrNotSetup           = errors.New("walker set not set up")
)

// FatalError records the operation that hit a fatal condition.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() []error {
	return []error{ErrFatal, e.Err}
}
