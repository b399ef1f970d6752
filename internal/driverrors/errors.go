// Package driverrors classifies failures the way the driver's batch loop needs them
// classified: as something to retry within the same batch, something that means give
// up on this batch and move to the next, a benign contract rejection that is not an
// error at all, or something unexpected that should reach logs and metrics untouched.
// Grounded on the original's services-core/src/driver/stablex_driver.rs DriverError
// and core/src/solution_submission.rs SolutionSubmissionError enums.
package driverrors

import (
	"errors"
	"fmt"
)

// Kind discriminates how the batch loop should react to a failure.
type Kind int

const (
	// KindRetry means the failure was transient (e.g. an RPC call to the node or
	// event stream failed) and the same batch should be retried with whatever
	// deadline remains.
	KindRetry Kind = iota
	// KindSkip means the orderbook was fetched fine but solving it failed (price
	// finder crashed or returned malformed output); give up on this batch only.
	KindSkip
	// KindBenign means the contract rejected the submission for an economically
	// acceptable reason (objective not improved enough, or a SafeMath revert from a
	// stale solution); this is success from the driver's point of view.
	KindBenign
	// KindUnexpected means something structural went wrong that should be surfaced
	// to logs and metrics as-is.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindRetry:
		return "retry"
	case KindSkip:
		return "skip"
	case KindBenign:
		return "benign"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the Kind that determines how the caller reacts.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retry wraps err as a retryable failure.
func Retry(err error) error { return &Error{Kind: KindRetry, Err: err} }

// Skip wraps err as a give-up-on-this-batch failure.
func Skip(err error) error { return &Error{Kind: KindSkip, Err: err} }

// Benign wraps a reason as a non-error outcome worth recording.
func Benign(reason string) error { return &Error{Kind: KindBenign, Err: fmt.Errorf("%s", reason)} }

// Unexpected wraps err as a structural failure that should reach logs/metrics as-is.
func Unexpected(err error) error { return &Error{Kind: KindUnexpected, Err: err} }

// Is reports whether err carries the given Kind.
func Is(err error, k Kind) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Kind == k
}

// benignRevertReasons are exchange contract revert strings the submission path
// treats as acceptable rejections rather than errors, per the contract's own
// "don't waste gas re-submitting a worse or already-beaten solution" rules.
var benignRevertReasons = map[string]bool{
	"New objective doesn't sufficiently improve current solution":    true,
	"Claimed objective doesn't sufficiently improve current solution": true,
	"SafeMath: subtraction overflow":                                  true,
}

// ClassifyRevert maps a contract revert reason string to Benign or Unexpected.
func ClassifyRevert(reason string) error {
	if benignRevertReasons[reason] {
		return Benign(reason)
	}
	return Unexpected(fmt.Errorf("revert: %s", reason))
}
