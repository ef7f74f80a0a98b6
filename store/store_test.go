package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	bolt, err := Open(filepath.Join(t.TempDir(), "test.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })
	return map[string]Store{
		"mem":  NewMemStore(),
		"bolt": bolt,
	}
}

func TestPutGetDel(t *testing.T) {
	for name, s := range testStores(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			_, err := s.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put([]byte("k1"), []byte("v1")))
			v, err := s.Get([]byte("k1"))
			require.NoError(t, err)
			require.Equal(t, []byte("v1"), v)

			require.NoError(t, s.Del([]byte("k1")))
			_, err = s.Get([]byte("k1"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBatchAtomicAcrossKeys(t *testing.T) {
	for name, s := range testStores(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Batch([]Op{
				Put([]byte("a"), []byte("1")),
				Put([]byte("b"), []byte("2")),
				Del([]byte("a")),
			}))

			_, err := s.Get([]byte("a"))
			require.ErrorIs(t, err, ErrNotFound)
			v, err := s.Get([]byte("b"))
			require.NoError(t, err)
			require.Equal(t, []byte("2"), v)
		})
	}
}

func TestIteratePrefixOrder(t *testing.T) {
	for name, s := range testStores(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Batch([]Op{
				Put([]byte{0x01, 0x00, 'b'}, []byte("2")),
				Put([]byte{0x01, 0x00, 'a'}, []byte("1")),
				Put([]byte{0x01, 0x00, 'c'}, []byte("3")),
				Put([]byte{0x02, 0x00, 'z'}, []byte("other-prefix")),
			}))

			it, err := s.Iterate([]byte{0x01, 0x00})
			require.NoError(t, err)
			defer it.Close()

			var keys []string
			var vals []string
			for it.Next() {
				keys = append(keys, string(it.Key()))
				vals = append(vals, string(it.Value()))
			}
			require.NoError(t, it.Err())
			require.Equal(t, []string{"\x01\x00a", "\x01\x00b", "\x01\x00c"}, keys)
			require.Equal(t, []string{"1", "2", "3"}, vals)
		})
	}
}
