package chainindex

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/zencash/chainindex/store"
)

// CurrentSchemaVersion is the schema version this build writes and
// requires (§4.2). Bump it whenever an indexer's key layout changes in a
// backward-incompatible way.
const CurrentSchemaVersion uint32 = 2

// legacySchemaVersion is assumed when tip is present but version is
// absent, matching DBs written before the version key existed.
const legacySchemaVersion uint32 = 1

// CheckVersion implements the Version Guard (§4.2). On a fresh DB (no
// tip recorded yet) it writes CurrentSchemaVersion and returns nil. On
// an existing DB it fails with ErrVersionMismatch unless the stored
// version equals CurrentSchemaVersion.
func CheckVersion(db store.Store) error {
	_, err := db.Get(keyTip)
	fresh := err == store.ErrNotFound
	if err != nil && !fresh {
		return fmt.Errorf("chainindex: version guard: %w", err)
	}

	if fresh {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, CurrentSchemaVersion)
		if err := db.Put(keyVersion, buf); err != nil {
			return fmt.Errorf("chainindex: write initial version: %w", err)
		}
		log.Info("initialized fresh database", "version", CurrentSchemaVersion)
		return nil
	}

	stored, err := readStoredVersion(db)
	if err != nil {
		return err
	}
	if stored != CurrentSchemaVersion {
		log.Error("schema version mismatch, reindex required",
			"stored", stored, "want", CurrentSchemaVersion)
		return fmt.Errorf("%w: stored=%d want=%d (reindex required)", ErrVersionMismatch, stored, CurrentSchemaVersion)
	}
	return nil
}

func readStoredVersion(db store.Store) (uint32, error) {
	v, err := db.Get(keyVersion)
	if err == store.ErrNotFound {
		return legacySchemaVersion, nil
	}
	if err != nil {
		return 0, fmt.Errorf("chainindex: read version: %w", err)
	}
	if len(v) != 4 {
		return 0, fmt.Errorf("chainindex: malformed version record (%d bytes)", len(v))
	}
	return binary.BigEndian.Uint32(v), nil
}
