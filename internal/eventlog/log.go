// Package eventlog is the ordered, reorg-aware append-only store of contract events.
// It owns every event exclusively; orderbook state is rebuilt by replaying a prefix of
// it rather than mutated in place. Grounded on the original's
// core/src/history/events.rs EventRegistry (BTreeMap<EventSortKey, Value>, write-then-
// rename persistence, split_off-based truncation).
package eventlog

import (
	"sort"
	"sync"

	"github.com/gnosis/dex-driver/pkg/models"
)

// entry is one logged occurrence: the event itself plus the batch id computed from
// the containing block's timestamp.
type entry struct {
	Key     Key
	Event   models.Event
	BatchId models.BatchId
}

// Log is an ordered, reorg-aware, append-only store of contract events, safe for
// concurrent use by one appending ingestion goroutine and many readers.
type Log struct {
	mu      sync.RWMutex
	entries []entry // always sorted by Key
	rev     uint64  // incremented on every mutation, exposed via Revision
}

// New returns an empty event log.
func New() *Log {
	return &Log{}
}

// Revision returns a counter incremented on every Append call and on every
// TruncateFrom call that removes entries. A caller that caches derived state can
// compare it to detect staleness without hashing the whole log; no package in this
// module does so. It has no bearing on the log's observable event sequence.
func (l *Log) Revision() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rev
}

// Append inserts event at the position determined by (blockNumber, blockHash,
// logIndex), with batch id computed from blockTimestamp. Re-appending at an existing
// key overwrites the previous value there, making Append idempotent under duplicate
// delivery (e.g. a node replaying the same log range twice).
func (l *Log) Append(event models.Event, blockNumber uint64, blockHash models.BlockHash, logIndex uint64, blockTimestamp uint64) {
	key := Key{BlockNumber: blockNumber, BlockHash: blockHash, LogIndex: logIndex}
	batchId := models.BatchId(blockTimestamp / models.BatchDuration)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rev++

	i := sort.Search(len(l.entries), func(i int) bool { return !l.entries[i].Key.Less(key) })
	if i < len(l.entries) && l.entries[i].Key == key {
		l.entries[i].Event = event
		l.entries[i].BatchId = batchId
		return
	}
	l.entries = append(l.entries, entry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = entry{Key: key, Event: event, BatchId: batchId}
}

// TruncateFrom removes every entry with a block number >= blockNumber. Used on chain
// reorganization, or to force a resync from a known-good height. Truncation is
// irreversible: the removed events are gone until (if ever) re-appended by the caller.
func (l *Log) TruncateFrom(blockNumber uint64) {
	boundary := firstKeyAtBlock(blockNumber)

	l.mu.Lock()
	defer l.mu.Unlock()
	i := sort.Search(len(l.entries), func(i int) bool { return !l.entries[i].Key.Less(boundary) })
	if i < len(l.entries) {
		l.rev++
		l.entries = l.entries[:i:i]
	}
}

// LastHandledBlock returns the highest block number present in the log, if any.
func (l *Log) LastHandledBlock() (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return 0, false
	}
	return l.entries[len(l.entries)-1].Key.BlockNumber, true
}

// Entry is the read-only view of a logged occurrence handed to callers iterating
// the log.
type Entry struct {
	BlockNumber uint64
	BlockHash   models.BlockHash
	LogIndex    uint64
	Event       models.Event
	BatchId     models.BatchId
}

func toEntry(e entry) Entry {
	return Entry{
		BlockNumber: e.Key.BlockNumber,
		BlockHash:   e.Key.BlockHash,
		LogIndex:    e.Key.LogIndex,
		Event:       e.Event,
		BatchId:     e.BatchId,
	}
}

// All returns every entry in key order.
func (l *Log) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = toEntry(e)
	}
	return out
}

// EventsUntilBatch returns every entry whose batch id is <= b, in key order.
func (l *Log) EventsUntilBatch(b models.BatchId) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.BatchId <= b {
			out = append(out, toEntry(e))
		}
	}
	return out
}

// EventsForBatch returns every entry whose batch id is exactly b, in key order.
func (l *Log) EventsForBatch(b models.BatchId) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0)
	for _, e := range l.entries {
		if e.BatchId == b {
			out = append(out, toEntry(e))
		}
	}
	return out
}

// EventsAtOrBeforeBlock returns every entry with block number <= blockNumber, in key
// order.
func (l *Log) EventsAtOrBeforeBlock(blockNumber uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Key.BlockNumber > blockNumber
	})
	out := make([]Entry, i)
	for j := 0; j < i; j++ {
		out[j] = toEntry(l.entries[j])
	}
	return out
}

// Len returns the number of entries currently in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
