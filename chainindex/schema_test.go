package chainindex

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zencash/chainindex/store"
)

func TestAssignPrefixUniqueAndIdempotent(t *testing.T) {
	db := store.NewMemStore()
	a := NewAllocator(db)

	p1, err := a.AssignPrefix("address")
	require.NoError(t, err)
	p2, err := a.AssignPrefix("timestamp")
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)

	p1Again, err := a.AssignPrefix("address")
	require.NoError(t, err)
	require.Equal(t, p1, p1Again)
}

func TestAssignPrefixStartsAtOne(t *testing.T) {
	db := store.NewMemStore()
	a := NewAllocator(db)
	p, err := a.AssignPrefix("address")
	require.NoError(t, err)
	require.Equal(t, [2]byte{0x00, 0x01}, p)
}

func TestAssignPrefixExhausted(t *testing.T) {
	db := store.NewMemStore()
	require.NoError(t, db.Put(keyNextUnused, []byte{0x00, 0x00}))
	a := NewAllocator(db)
	_, err := a.AssignPrefix("overflow")
	require.ErrorIs(t, err, ErrPrefixExhausted)
}
