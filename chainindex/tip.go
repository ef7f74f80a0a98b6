package chainindex

import (
	"encoding/binary"
	"fmt"

	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/store"
)

// TipRecordLength is the encoded size of a Tip Record: 32-byte hash plus
// a big-endian 4-byte height (§3, §4.5).
const TipRecordLength = chaintypes.HashLength + 4

// TipRecord names the most recently committed block on a cursor.
type TipRecord struct {
	Hash   chaintypes.Hash
	Height uint32
}

func EncodeTipRecord(r TipRecord) []byte {
	buf := make([]byte, TipRecordLength)
	copy(buf, r.Hash[:])
	binary.BigEndian.PutUint32(buf[chaintypes.HashLength:], r.Height)
	return buf
}

func DecodeTipRecord(b []byte) (TipRecord, error) {
	if len(b) != TipRecordLength {
		return TipRecord{}, fmt.Errorf("chainindex: tip record has %d bytes, want %d", len(b), TipRecordLength)
	}
	var r TipRecord
	copy(r.Hash[:], b[:chaintypes.HashLength])
	r.Height = binary.BigEndian.Uint32(b[chaintypes.HashLength:])
	return r, nil
}

// TipCursor distinguishes the serial tip from the concurrent tip (§4).
type TipCursor int

const (
	SerialTip TipCursor = iota
	ConcurrentTip
)

func (c TipCursor) key() []byte {
	if c == ConcurrentTip {
		return keyConcurrentTip
	}
	return keyTip
}

// TipKeeper persists and loads the serial and concurrent tip cursors
// (the Tip Bookkeeper, §2.4).
type TipKeeper struct {
	db store.Store
}

func NewTipKeeper(db store.Store) *TipKeeper {
	return &TipKeeper{db: db}
}

// Load returns the persisted tip for cursor, or (TipRecord{}, false, nil)
// if none has ever been written.
func (k *TipKeeper) Load(cursor TipCursor) (TipRecord, bool, error) {
	v, err := k.db.Get(cursor.key())
	if err == store.ErrNotFound {
		return TipRecord{}, false, nil
	}
	if err != nil {
		return TipRecord{}, false, fmt.Errorf("chainindex: load tip: %w", err)
	}
	r, err := DecodeTipRecord(v)
	if err != nil {
		return TipRecord{}, false, err
	}
	return r, true, nil
}

// PutOp builds the batch Op that advances cursor to r, for inclusion in
// the Block Applier's single atomic commit (§4.5 step 3).
func (k *TipKeeper) PutOp(cursor TipCursor, r TipRecord) store.Op {
	return store.Put(cursor.key(), EncodeTipRecord(r))
}
