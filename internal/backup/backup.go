// Package backup exports and imports the ledger's persisted state as an
// xz-compressed JSON snapshot. Snapshots operate on the raw key-value
// records, so a restore followed by a reload reproduces the exact ledger
// state including verification results.
package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/wileschulpusi/Review/internal/keyValStore"
)

const snapshotVersion = 1

// snapshotPrefixes are the key families a snapshot carries.
var snapshotPrefixes = [][]byte{
	[]byte("paper::"),
	[]byte("review::"),
	[]byte("handle::"),
}

type Entry struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

type Snapshot struct {
	Version int       `json:"version"`
	TakenAt time.Time `json:"takenAt"`
	Entries []Entry   `json:"entries"`
}

// Export writes a snapshot of all ledger records to w.
func Export(kv *keyValStore.KeyValStore, w io.Writer, now time.Time) error {
	snap := Snapshot{Version: snapshotVersion, TakenAt: now.UTC()}
	for _, prefix := range snapshotPrefixes {
		items, err := kv.GetItemsWithPrefix(prefix)
		if err != nil {
			return fmt.Errorf("scan prefix %q: %w", prefix, err)
		}
		for _, kvPair := range items {
			snap.Entries = append(snap.Entries, Entry{Key: kvPair[0], Value: kvPair[1]})
		}
	}

	xzWriter, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("open xz writer: %w", err)
	}
	if err := json.NewEncoder(xzWriter).Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return xzWriter.Close()
}

// Import reads a snapshot from r and writes its entries into the store.
// Existing keys are overwritten; the caller reloads the in-memory stores
// afterwards.
func Import(kv *keyValStore.KeyValStore, r io.Reader) (int, error) {
	xzReader, err := xz.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("open xz reader: %w", err)
	}

	var snap Snapshot
	if err := json.NewDecoder(xzReader).Decode(&snap); err != nil {
		return 0, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return 0, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	batch := make([][2][]byte, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		batch = append(batch, [2][]byte{e.Key, e.Value})
	}
	if err := kv.WriteBatch(batch); err != nil {
		return 0, fmt.Errorf("write snapshot entries: %w", err)
	}
	return len(snap.Entries), nil
}
