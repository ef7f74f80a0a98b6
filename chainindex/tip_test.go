package chainindex

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/store"
)

func TestTipRecordRoundTrip(t *testing.T) {
	r := TipRecord{Hash: chaintypes.BytesToHash([]byte("block-hash-bytes")), Height: 12345}
	decoded, err := DecodeTipRecord(EncodeTipRecord(r))
	require.NoError(t, err)
	require.Equal(t, r, decoded)
}

func TestDecodeTipRecordRejectsBadLength(t *testing.T) {
	_, err := DecodeTipRecord([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestTipKeeperLoadMissing(t *testing.T) {
	k := NewTipKeeper(store.NewMemStore())
	_, ok, err := k.Load(SerialTip)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTipKeeperPutOpThenLoad(t *testing.T) {
	db := store.NewMemStore()
	k := NewTipKeeper(db)
	r := TipRecord{Hash: chaintypes.BytesToHash([]byte("h")), Height: 7}
	require.NoError(t, db.Batch([]store.Op{k.PutOp(SerialTip, r)}))

	loaded, ok, err := k.Load(SerialTip)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, r, loaded)

	_, ok, err = k.Load(ConcurrentTip)
	require.NoError(t, err)
	require.False(t, ok)
}
