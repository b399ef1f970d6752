// Package batchclock maps wall-clock time to batch ids and back. It is a pure
// function over whatever time source it is given, grounded on the original
// implementation's `BatchId::from_timestamp`/`solve_start_time`/`solve_end_time`.
package batchclock

import (
	"time"

	"github.com/gnosis/dex-driver/pkg/models"
)

// Duration is the fixed wall-clock length of a batch.
const Duration = models.BatchDuration * time.Second

// Clock converts between wall-clock instants and batch ids. The zero value is
// ready to use: batches are numbered from the Unix epoch.
type Clock struct{}

// New returns a Clock numbering batches from the Unix epoch, per spec.
func New() Clock { return Clock{} }

// Current returns the batch id that is accepting orders at instant now.
func (Clock) Current(now time.Time) models.BatchId {
	return models.BatchId(now.Unix() / models.BatchDuration)
}

// Solving returns the batch id currently accepting solutions at instant now: one
// less than the batch currently accepting orders.
func (c Clock) Solving(now time.Time) models.BatchId {
	return c.Current(now) - 1
}

// SolveStartTime returns the instant batch b started accepting orders, which is also
// the instant it became the "solving" batch's successor started.
func (Clock) SolveStartTime(b models.BatchId) time.Time {
	return time.Unix(int64(b)*models.BatchDuration, 0).UTC()
}

// SolveEndTime returns the instant batch b stopped accepting orders, i.e. the start
// of batch b+1 — the deadline by which a solution for b should be on-chain.
func (c Clock) SolveEndTime(b models.BatchId) time.Time {
	return c.SolveStartTime(b + 1)
}

// Next returns the batch id that follows b.
func (Clock) Next(b models.BatchId) models.BatchId {
	return b + 1
}

// ElapsedInBatch returns how far into batch Current(now) we are.
func (c Clock) ElapsedInBatch(now time.Time) time.Duration {
	return now.Sub(c.SolveStartTime(c.Current(now)))
}
