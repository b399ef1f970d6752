package eventlog

import "github.com/gnosis/dex-driver/pkg/models"

// Key totally orders log entries. Sort order is block number, then block hash (to
// disambiguate reorg siblings at the same height), then log index within the block.
// Insertion order is irrelevant — only the key matters, matching the original's
// BTreeMap<EventSortKey, Value>.
type Key struct {
	BlockNumber uint64
	BlockHash   models.BlockHash
	LogIndex    uint64
}

// Less reports whether k sorts strictly before other.
func (k Key) Less(other Key) bool {
	if k.BlockNumber != other.BlockNumber {
		return k.BlockNumber < other.BlockNumber
	}
	if k.BlockHash != other.BlockHash {
		return bytesLess(k.BlockHash[:], other.BlockHash[:])
	}
	return k.LogIndex < other.LogIndex
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// firstKeyAtBlock is the smallest possible Key for a given block number, used as the
// truncation boundary: all entries with key >= this one are removed on reorg.
func firstKeyAtBlock(blockNumber uint64) Key {
	return Key{BlockNumber: blockNumber}
}
