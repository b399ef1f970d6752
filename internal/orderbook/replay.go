package orderbook

import (
	"fmt"

	"github.com/gnosis/dex-driver/internal/eventlog"
	"github.com/gnosis/dex-driver/pkg/models"
)

// Reader answers orderbook state queries by replaying an eventlog.Log from genesis on
// every call. Callers that need this on a hot path (the scheduler, once per batch) are
// expected to cache the result keyed by (batch, log.Revision()); Reader itself does no
// caching, matching the original's preference for a dumb, obviously-correct replay
// over an incrementally maintained index.
type Reader struct {
	log *eventlog.Log
}

// New returns a Reader backed by log. The log is never mutated by Reader.
func New(log *eventlog.Log) *Reader {
	return &Reader{log: log}
}

// replay folds the given log entries, in order, into a fresh State, applying each
// event with the batch id the block it was mined in belongs to.
func replay(entries []eventlog.Entry) (*State, error) {
	s := newState()
	for _, e := range entries {
		if err := s.applyEvent(e.Event, e.BatchId); err != nil {
			return nil, fmt.Errorf("apply %s at block %d log %d: %w", e.Event.Kind(), e.BlockNumber, e.LogIndex, err)
		}
	}
	return s, nil
}

// AuctionStateForBatch returns the account balances and open orders as of the start of
// batch b — i.e. after folding in every event with batch_id <= b, with any solution
// submitted for a batch before b already applied. This is what a price finder solves
// against when asked to solve batch b.
func (r *Reader) AuctionStateForBatch(b models.BatchId) (models.AccountState, []models.Order, error) {
	entries := r.log.EventsUntilBatch(b)
	s, err := replay(entries)
	if err != nil {
		return nil, nil, err
	}
	// Batch b has fully elapsed once the caller asks to solve the batch after it, so
	// any pending solution for a batch strictly before b+1 is due.
	s.applyPendingSolutionIfNeeded(b)
	return s.snapshot(b), s.openOrders(b), nil
}

// AuctionStateAtBlock returns state canonicalized at the start of batch b, the same way
// AuctionStateForBatch does, but using every event mined at or before blockNumber as
// the replay cutoff instead of a batch boundary. blockBatchId is the batch id of
// blockNumber's own block; requesting a batch b beyond it is rejected since the log has
// no events for a batch that hasn't happened yet from that block's point of view.
func (r *Reader) AuctionStateAtBlock(b models.BatchId, blockNumber uint64, blockBatchId models.BatchId) (models.AccountState, []models.Order, error) {
	if b > blockBatchId {
		return nil, nil, fmt.Errorf("requested batch %d is in the future relative to block %d (batch %d)", b, blockNumber, blockBatchId)
	}
	entries := r.log.EventsAtOrBeforeBlock(blockNumber)
	s, err := replay(entries)
	if err != nil {
		return nil, nil, err
	}
	s.applyPendingSolutionIfNeeded(b)
	return s.snapshot(b), s.openOrders(b), nil
}

// NeedsToApplySolution reports whether state as of blockBatchId still carries a
// SubmittedSolution whose effects have not yet matured — i.e. whether the next
// observed block must apply it before any new trade can be trusted. Grounded on the
// original's needs_to_apply_solution, which the driver polls before deciding whether
// it is safe to begin computing a new solution.
func (r *Reader) NeedsToApplySolution(asOfBatch models.BatchId) (bool, error) {
	entries := r.log.EventsUntilBatch(asOfBatch)
	s, err := replay(entries)
	if err != nil {
		return false, err
	}
	return s.needsToApplySolution(asOfBatch + 1), nil
}

// snapshot reads out every (user, token) balance pair known to the state as of the
// start of batch b, keyed by TokenId rather than Address (the form the price finder
// protocol and the rest of the driver expect).
func (s *State) snapshot(b models.BatchId) models.AccountState {
	out := make(models.AccountState, len(s.balances))
	for key, bal := range s.balances {
		tokenId, ok := s.tokens.IdOf(key.token)
		if !ok {
			continue
		}
		out[models.AccountBalanceKey{User: key.user, TokenId: tokenId}] = bal.CurrentBalance(b)
	}
	return out
}

// openOrders returns every order valid in batch b, in no particular guaranteed order
// (callers needing a stable order should sort).
func (s *State) openOrders(b models.BatchId) []models.Order {
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if o.IsValidInBatch(b) {
			out = append(out, *o)
		}
	}
	return out
}
