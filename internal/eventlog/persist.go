package eventlog

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/gnosis/dex-driver/pkg/models"
)

// currentVersion is the on-disk format tag written as the first byte of every
// serialized log. Bump it whenever the gob-encoded entry shape changes.
const currentVersion byte = 1

func init() {
	gob.Register(models.Deposit{})
	gob.Register(models.WithdrawRequest{})
	gob.Register(models.Withdraw{})
	gob.Register(models.TokenListing{})
	gob.Register(models.OrderPlacement{})
	gob.Register(models.OrderCancellation{})
	gob.Register(models.OrderDeletion{})
	gob.Register(models.Trade{})
	gob.Register(models.TradeReversion{})
	gob.Register(models.SolutionSubmission{})
	gob.Register(&big.Int{})
}

// gobEntry is the wire shape for one logged occurrence; models.Event is encoded
// through gob's interface support, which requires each concrete variant to have been
// registered (done in this file's init).
type gobEntry struct {
	Key     Key
	Event   models.Event
	BatchId models.BatchId
}

// ToBytes serializes the whole log, preceded by a one-byte version tag.
func (l *Log) ToBytes() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	payload := make([]gobEntry, len(l.entries))
	for i, e := range l.entries {
		payload[i] = gobEntry{Key: e.Key, Event: e.Event, BatchId: e.BatchId}
	}

	var buf bytes.Buffer
	buf.WriteByte(currentVersion)
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode event log: %w", err)
	}
	return buf.Bytes(), nil
}

// FromBytes reconstructs a Log previously produced by ToBytes.
func FromBytes(data []byte) (*Log, error) {
	if len(data) == 0 {
		return New(), nil
	}
	version, body := data[0], data[1:]
	if version != currentVersion {
		return nil, fmt.Errorf("unsupported event log version %d", version)
	}
	var payload []gobEntry
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode event log: %w", err)
	}
	entries := make([]entry, len(payload))
	for i, e := range payload {
		entries[i] = entry{Key: e.Key, Event: e.Event, BatchId: e.BatchId}
	}
	return &Log{entries: entries}, nil
}

// WriteToFile serializes the log and atomically replaces path: it writes to a
// temporary file in the same directory and renames it over path, so a reader never
// observes a partially written file.
func (l *Log) WriteToFile(path string) error {
	data, err := l.ToBytes()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file onto %s: %w", path, err)
	}
	return nil
}

// ReadFromFile loads a log previously written by WriteToFile. A missing file is not
// an error: it yields an empty log, matching first-run behavior.
func ReadFromFile(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read event log %s: %w", path, err)
	}
	return FromBytes(data)
}
