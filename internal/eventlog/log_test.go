package eventlog

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gnosis/dex-driver/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hash(b byte) models.BlockHash {
	var h common.Hash
	h[31] = b
	return h
}

func sampleEvents() []struct {
	event models.Event
	block uint64
	hash  models.BlockHash
	log   uint64
	ts    uint64
} {
	return []struct {
		event models.Event
		block uint64
		hash  models.BlockHash
		log   uint64
		ts    uint64
	}{
		{models.TokenListing{Id: 0, Address: common.HexToAddress("0x1")}, 1, hash(1), 0, 100},
		{models.Deposit{User: common.HexToAddress("0xa"), Token: common.HexToAddress("0x1"), Amount: models.NewAmount(10), BatchId: 0}, 2, hash(2), 0, 200},
		{models.OrderPlacement{Owner: common.HexToAddress("0xa"), Index: 0, BuyToken: 1, SellToken: 0, ValidFrom: 0, ValidUntil: 5, PriceNumerator: models.NewAmount(1), PriceDenominator: models.NewAmount(1)}, 3, hash(3), 1, 300},
	}
}

func buildLog(t *testing.T) *Log {
	t.Helper()
	l := New()
	for _, s := range sampleEvents() {
		l.Append(s.event, s.block, s.hash, s.log, s.ts)
	}
	return l
}

func TestAppendIsOrderedByKeyNotInsertionOrder(t *testing.T) {
	l := New()
	samples := sampleEvents()
	// append in reverse
	for i := len(samples) - 1; i >= 0; i-- {
		s := samples[i]
		l.Append(s.event, s.block, s.hash, s.log, s.ts)
	}
	all := l.All()
	require.Len(t, all, 3)
	assert.Equal(t, uint64(1), all[0].BlockNumber)
	assert.Equal(t, uint64(2), all[1].BlockNumber)
	assert.Equal(t, uint64(3), all[2].BlockNumber)
}

func TestAppendIsIdempotentOnDuplicateKey(t *testing.T) {
	l := New()
	l.Append(models.TokenListing{Id: 0, Address: common.HexToAddress("0x1")}, 1, hash(1), 0, 100)
	l.Append(models.TokenListing{Id: 1, Address: common.HexToAddress("0x2")}, 1, hash(1), 0, 100)
	all := l.All()
	require.Len(t, all, 1)
	listing := all[0].Event.(models.TokenListing)
	assert.Equal(t, models.TokenId(1), listing.Id)
}

func TestTruncateFromRemovesAtOrAboveBlock(t *testing.T) {
	l := buildLog(t)
	l.TruncateFrom(2)
	all := l.All()
	require.Len(t, all, 1)
	assert.Equal(t, uint64(1), all[0].BlockNumber)
}

func TestTruncateFromIsLeftInverse(t *testing.T) {
	l := buildLog(t)
	original := l.All()
	l.TruncateFrom(2)
	removed := sampleEvents()[1:]
	for _, s := range removed {
		l.Append(s.event, s.block, s.hash, s.log, s.ts)
	}
	assert.Equal(t, original, l.All())
}

func TestLastHandledBlock(t *testing.T) {
	l := buildLog(t)
	b, ok := l.LastHandledBlock()
	require.True(t, ok)
	assert.Equal(t, uint64(3), b)

	empty := New()
	_, ok = empty.LastHandledBlock()
	assert.False(t, ok)
}

func TestEventsUntilAndForBatch(t *testing.T) {
	l := buildLog(t)
	assert.Len(t, l.EventsUntilBatch(0), 2)
	assert.Len(t, l.EventsUntilBatch(1), 3)
	assert.Len(t, l.EventsForBatch(1), 1)
}

func TestEventsAtOrBeforeBlock(t *testing.T) {
	l := buildLog(t)
	assert.Len(t, l.EventsAtOrBeforeBlock(1), 1)
	assert.Len(t, l.EventsAtOrBeforeBlock(2), 2)
	assert.Len(t, l.EventsAtOrBeforeBlock(10), 3)
}

func TestSerializeRoundTrip(t *testing.T) {
	l := buildLog(t)
	data, err := l.ToBytes()
	require.NoError(t, err)

	restored, err := FromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, l.All(), restored.All())
}

func TestWriteAndReadFromFile(t *testing.T) {
	l := buildLog(t)
	path := filepath.Join(t.TempDir(), "events.bin")

	require.NoError(t, l.WriteToFile(path))
	restored, err := ReadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, l.All(), restored.All())
}

func TestReadFromFileMissingIsEmptyLog(t *testing.T) {
	restored, err := ReadFromFile(filepath.Join(t.TempDir(), "missing.bin"))
	require.NoError(t, err)
	assert.Equal(t, 0, restored.Len())
}

// TestIterationOrderIsTotalAndDeterministic exercises property 1 from the testable
// properties list: replaying in various insertion orders always yields the same
// sorted sequence.
func TestIterationOrderIsTotalAndDeterministic(t *testing.T) {
	samples := sampleEvents()
	rng := rand.New(rand.NewSource(7))

	var firstResult []Entry
	for attempt := 0; attempt < 5; attempt++ {
		shuffled := append([]struct {
			event models.Event
			block uint64
			hash  models.BlockHash
			log   uint64
			ts    uint64
		}{}, samples...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		l := New()
		for _, s := range shuffled {
			l.Append(s.event, s.block, s.hash, s.log, s.ts)
		}
		result := l.All()
		if firstResult == nil {
			firstResult = result
		} else {
			assert.Equal(t, firstResult, result)
		}
	}
}
