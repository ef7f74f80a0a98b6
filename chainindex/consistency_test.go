package chainindex

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zencash/chainindex/chaintypes"
	"github.com/zencash/chainindex/store"
)

func TestConsistencyWindowEncodeDecodeRoundTrip(t *testing.T) {
	entries := []consistencyEntry{
		{Height: 0, Hash: chaintypes.BytesToHash([]byte("g")), PrevHash: chaintypes.Hash{}},
		{Height: 1, Hash: chaintypes.BytesToHash([]byte("b1")), PrevHash: chaintypes.BytesToHash([]byte("g"))},
	}
	decoded, err := decodeConsistencyWindow(encodeConsistencyWindow(entries))
	require.NoError(t, err)
	require.Equal(t, entries, decoded)
}

func TestAppendConsistencyOpEvictsOldestPastCapacity(t *testing.T) {
	db := store.NewMemStore()
	for i := uint32(0); i < 5; i++ {
		block := &chaintypes.Block{Hash: chaintypes.BytesToHash([]byte{byte(i)}), Height: i}
		op, err := appendConsistencyOp(db, 3, block)
		require.NoError(t, err)
		require.NoError(t, db.Put(op.Key, op.Value))
	}

	entries, err := loadConsistencyWindow(db)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, []uint32{2, 3, 4}, []uint32{entries[0].Height, entries[1].Height, entries[2].Height})
}

func TestCheckConsistencyWindowAcceptsUnbrokenChain(t *testing.T) {
	g := genesisBlock()
	c := childBlock(g)
	entries := []consistencyEntry{
		{Height: g.Height, Hash: g.Hash, PrevHash: g.PrevHash},
		{Height: c.Height, Hash: c.Hash, PrevHash: c.PrevHash},
	}
	require.NoError(t, checkConsistencyWindow(entries))
}

func TestCheckConsistencyWindowRejectsHeightGap(t *testing.T) {
	entries := []consistencyEntry{
		{Height: 0, Hash: chaintypes.BytesToHash([]byte("g"))},
		{Height: 2, Hash: chaintypes.BytesToHash([]byte("b2")), PrevHash: chaintypes.BytesToHash([]byte("g"))},
	}
	err := checkConsistencyWindow(entries)
	require.ErrorIs(t, err, store.ErrStoreIO)
}

func TestCheckConsistencyWindowRejectsHashBreak(t *testing.T) {
	entries := []consistencyEntry{
		{Height: 0, Hash: chaintypes.BytesToHash([]byte("g"))},
		{Height: 1, Hash: chaintypes.BytesToHash([]byte("b1")), PrevHash: chaintypes.BytesToHash([]byte("not-g"))},
	}
	err := checkConsistencyWindow(entries)
	require.ErrorIs(t, err, store.ErrStoreIO)
}

func TestApplierConnectPersistsConsistencyWindow(t *testing.T) {
	db := store.NewMemStore()
	tips := NewTipKeeper(db)
	a := NewApplier(db, nil, tips, nil)

	g := genesisBlock()
	c := childBlock(g)
	require.NoError(t, a.Apply(g, chaintypes.Connect))
	require.NoError(t, a.Apply(c, chaintypes.Connect))

	entries, err := loadConsistencyWindow(db)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NoError(t, checkConsistencyWindow(entries))
	require.Equal(t, c.Hash, entries[1].Hash)
}

func TestLifecycleCheckConsistencyFailsOnCorruptWindow(t *testing.T) {
	db := store.NewMemStore()
	corrupt := encodeConsistencyWindow([]consistencyEntry{
		{Height: 0, Hash: chaintypes.BytesToHash([]byte("g"))},
		{Height: 5, Hash: chaintypes.BytesToHash([]byte("b5")), PrevHash: chaintypes.BytesToHash([]byte("g"))},
	})
	require.NoError(t, db.Put(keyConsistencyWindow, corrupt))

	lc := New(db, nil, NewRegistry(), nil, false)
	err := lc.checkConsistency()
	require.ErrorIs(t, err, store.ErrStoreIO)
}
