package models

import "errors"

// Errors returned while applying events to, or reading from, orderbook state. These
// never escape internal/orderbook.AuctionStateForBatch beyond internal/driver, which
// surfaces them all as a Retry per the driver's error policy.
var (
	ErrUnknownToken           = errors.New("unknown token")
	ErrUnknownOrder           = errors.New("unknown order")
	ErrOrderAlreadyExists     = errors.New("order already exists")
	ErrMathUnderflow          = errors.New("math underflow")
	ErrSolutionWithoutFeeToken = errors.New("solution submitted but there is no fee token")
	ErrDeletingValidOrder     = errors.New("attempt to delete an order that is still valid")
	ErrNeedsToApplySolution   = errors.New("orderbook has a pending solution that must be applied first")
	ErrBatchInFuture          = errors.New("requested batch is in the future relative to the given block")
)
