package chainindex

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/zencash/chainindex/store"
)

// SystemPrefix is the two-byte namespace reserved for core bookkeeping
// (§3). Every other key must begin with a service prefix assigned by
// AssignPrefix (I1).
var SystemPrefix = [2]byte{0x00, 0x00}

var (
	keyTip               = sysKey("tip")
	keyConcurrentTip     = sysKey("concurrentTip")
	keyVersion           = sysKey("version")
	keyNextUnused        = sysKey("nextUnused")
	keyConsistencyWindow = sysKey("consistencyWindow")
)

func sysKey(name string) []byte {
	return append(append([]byte{}, SystemPrefix[:]...), []byte(name)...)
}

func prefixKey(name string) []byte {
	return append(sysKey("prefix-"), []byte(name)...)
}

// firstUnusedPrefix is the initial value of nextUnused (§3): 0x0001, since
// 0x0000 is reserved for the system namespace.
const firstUnusedPrefix uint16 = 0x0001

// Allocator assigns and persists the two-byte per-service key prefixes
// (§4.3). Assignment is idempotent: a retried AssignPrefix for a name
// that already has one returns the existing value.
type Allocator struct {
	db store.Store
}

func NewAllocator(db store.Store) *Allocator {
	return &Allocator{db: db}
}

// AssignPrefix returns the two-byte prefix for serviceName, allocating a
// fresh one from nextUnused if none exists yet.
func (a *Allocator) AssignPrefix(serviceName string) ([2]byte, error) {
	key := prefixKey(serviceName)
	if v, err := a.db.Get(key); err == nil {
		return [2]byte{v[0], v[1]}, nil
	} else if err != store.ErrNotFound {
		return [2]byte{}, fmt.Errorf("chainindex: read prefix for %s: %w", serviceName, err)
	}

	next, err := a.readNextUnused()
	if err != nil {
		return [2]byte{}, err
	}
	if next == 0 {
		return [2]byte{}, fmt.Errorf("%w: service %s", ErrPrefixExhausted, serviceName)
	}

	var assigned [2]byte
	binary.BigEndian.PutUint16(assigned[:], next)

	if err := a.db.Put(key, assigned[:]); err != nil {
		return [2]byte{}, fmt.Errorf("chainindex: persist prefix for %s: %w", serviceName, err)
	}

	nextBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(nextBuf, next+1) // wraps to 0 on overflow, caught above next call
	if err := a.db.Put(keyNextUnused, nextBuf); err != nil {
		return [2]byte{}, fmt.Errorf("chainindex: advance nextUnused past %s: %w", serviceName, err)
	}

	log.Info("assigned service prefix", "service", serviceName, "prefix", fmt.Sprintf("%04x", next))
	return assigned, nil
}

func (a *Allocator) readNextUnused() (uint16, error) {
	v, err := a.db.Get(keyNextUnused)
	if err == store.ErrNotFound {
		return firstUnusedPrefix, nil
	}
	if err != nil {
		return 0, fmt.Errorf("chainindex: read nextUnused: %w", err)
	}
	return binary.BigEndian.Uint16(v), nil
}

// HasSystemPrefix reports whether key begins with the system prefix (the
// system half of I1); it does not check service prefixes. It is intended for invariant
// assertions in tests, not the hot commit path.
func HasSystemPrefix(key []byte) bool {
	return len(key) >= 2 && key[0] == SystemPrefix[0] && key[1] == SystemPrefix[1]
}
