package chainindex

import (
	"encoding/binary"
	"fmt"

	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/store"
)

// consistencyEntryLength is the encoded size of one ring-buffer entry: a
// height plus the connected block's hash and its parent's hash.
const consistencyEntryLength = 4 + chaintypes.HashLength*2

// consistencyEntry records one connected block for the startup
// consistency check (SPEC_FULL.md).
type consistencyEntry struct {
	Height   uint32
	Hash     chaintypes.Hash
	PrevHash chaintypes.Hash
}

func encodeConsistencyWindow(entries []consistencyEntry) []byte {
	buf := make([]byte, len(entries)*consistencyEntryLength)
	for i, e := range entries {
		off := i * consistencyEntryLength
		binary.BigEndian.PutUint32(buf[off:], e.Height)
		copy(buf[off+4:], e.Hash[:])
		copy(buf[off+4+chaintypes.HashLength:], e.PrevHash[:])
	}
	return buf
}

func decodeConsistencyWindow(b []byte) ([]consistencyEntry, error) {
	if len(b)%consistencyEntryLength != 0 {
		return nil, fmt.Errorf("chainindex: malformed consistency window (%d bytes)", len(b))
	}
	entries := make([]consistencyEntry, len(b)/consistencyEntryLength)
	for i := range entries {
		off := i * consistencyEntryLength
		entries[i].Height = binary.BigEndian.Uint32(b[off:])
		copy(entries[i].Hash[:], b[off+4:])
		copy(entries[i].PrevHash[:], b[off+4+chaintypes.HashLength:])
	}
	return entries, nil
}

// loadConsistencyWindow returns the persisted ring buffer, oldest entry
// first, or nil if none has been written yet.
func loadConsistencyWindow(db store.Store) ([]consistencyEntry, error) {
	v, err := db.Get(keyConsistencyWindow)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chainindex: load consistency window: %w", err)
	}
	return decodeConsistencyWindow(v)
}

// appendConsistencyOp returns the batch Op that appends a newly connected
// block to the persisted ring buffer, evicting the oldest entry once
// capacity is exceeded. It is folded into the Block Applier's single
// atomic commit so the buffer always reflects exactly the blocks that
// made it to disk (§4.5, I5).
func appendConsistencyOp(db store.Store, capacity int, block *chaintypes.Block) (store.Op, error) {
	entries, err := loadConsistencyWindow(db)
	if err != nil {
		return store.Op{}, err
	}
	entries = append(entries, consistencyEntry{Height: block.Height, Hash: block.Hash, PrevHash: block.PrevHash})
	if len(entries) > capacity {
		entries = entries[len(entries)-capacity:]
	}
	return store.Put(keyConsistencyWindow, encodeConsistencyWindow(entries)), nil
}

// checkConsistencyWindow replays entries and asserts they form an
// unbroken, strictly height-monotonic chain. A gap or hash mismatch
// means the ring buffer — or the history it was built from — is
// corrupt, and is reported as store-class corruption requiring a
// reindex rather than a resumable error.
func checkConsistencyWindow(entries []consistencyEntry) error {
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if cur.Height != prev.Height+1 {
			return fmt.Errorf("%w: consistency window height gap: %d then %d", store.ErrStoreIO, prev.Height, cur.Height)
		}
		if cur.PrevHash != prev.Hash {
			return fmt.Errorf("%w: consistency window hash break at height %d: expected parent %s, recorded %s",
				store.ErrStoreIO, cur.Height, prev.Hash, cur.PrevHash)
		}
	}
	return nil
}
