package chainindex

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zencash/chainindex/store"
)

func TestCheckVersionFreshDatabase(t *testing.T) {
	db := store.NewMemStore()
	require.NoError(t, CheckVersion(db))

	v, err := readStoredVersion(db)
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, v)
}

func TestCheckVersionMatchingExistingDatabase(t *testing.T) {
	db := store.NewMemStore()
	require.NoError(t, db.Put(keyTip, []byte("anything")))
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, CurrentSchemaVersion)
	require.NoError(t, db.Put(keyVersion, buf))

	require.NoError(t, CheckVersion(db))
}

func TestCheckVersionLegacyDatabaseWithoutVersionKey(t *testing.T) {
	db := store.NewMemStore()
	require.NoError(t, db.Put(keyTip, []byte("anything")))

	err := CheckVersion(db)
	if legacySchemaVersion == CurrentSchemaVersion {
		require.NoError(t, err)
	} else {
		require.ErrorIs(t, err, ErrVersionMismatch)
	}
}

func TestCheckVersionMismatch(t *testing.T) {
	db := store.NewMemStore()
	require.NoError(t, db.Put(keyTip, []byte("anything")))
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, CurrentSchemaVersion+1)
	require.NoError(t, db.Put(keyVersion, buf))

	err := CheckVersion(db)
	require.ErrorIs(t, err, ErrVersionMismatch)
}
