package store

import (
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/ethereum/go-ethereum/log"
	bolt "go.etcd.io/bbolt"
)

// kvBucket is the single bbolt bucket all core and indexer keys live in.
// The two-byte system/service prefix scheme (I1) provides namespace
// isolation inside this one flat keyspace, the way turbo-geth's
// ethdb.ObjectDatabase layers logical buckets over a physical bolt/lmdb
// store.
var kvBucket = []byte("kv")

// DefaultMaxOpenFiles is the default ceiling on concurrently open
// read-only snapshots (§6 "maxOpenFiles").
const DefaultMaxOpenFiles = 200

// Options configures a bbolt-backed Store.
type Options struct {
	// MaxOpenFiles bounds how many read-only transactions (used for
	// point-reads and Iterate) may be outstanding at once. bbolt itself
	// holds a single file descriptor for the whole database; this knob
	// instead throttles snapshot fan-out the way LMDB's reader-slot
	// table would, so callers retain the §6 configuration surface.
	MaxOpenFiles int
}

// BoltStore is a Store backed by a single bbolt database file.
type BoltStore struct {
	db   *bolt.DB
	sema chan struct{}
}

// Open opens (creating if absent) a bbolt-backed Store at path.
func Open(path string, opts Options) (*BoltStore, error) {
	if opts.MaxOpenFiles <= 0 {
		opts.MaxOpenFiles = DefaultMaxOpenFiles
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w: %v", path, ErrStoreIO, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(kvBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init bucket: %w: %v", ErrStoreIO, err)
	}
	log.Info("store opened", "path", path, "maxOpenFiles", opts.MaxOpenFiles,
		"readerQueueCapacity", datasize.ByteSize(opts.MaxOpenFiles).String())
	return &BoltStore{db: db, sema: make(chan struct{}, opts.MaxOpenFiles)}, nil
}

func (s *BoltStore) acquire() { s.sema <- struct{}{} }
func (s *BoltStore) release() { <-s.sema }

func (s *BoltStore) Get(key []byte) ([]byte, error) {
	s.acquire()
	defer s.release()

	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(kvBucket).Get(key)
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get: %w: %v", ErrStoreIO, err)
	}
	return out, nil
}

func (s *BoltStore) Put(key, value []byte) error {
	return s.Batch([]Op{Put(key, value)})
}

func (s *BoltStore) Del(key []byte) error {
	return s.Batch([]Op{Del(key)})
}

// Batch commits ops atomically. bbolt's Update runs inside a single
// read-write transaction that is fsync'd on commit, giving the I5
// all-or-nothing guarantee.
func (s *BoltStore) Batch(ops []Op) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		for _, op := range ops {
			switch op.Kind {
			case OpPut:
				if err := b.Put(op.Key, op.Value); err != nil {
					return err
				}
			case OpDel:
				if err := b.Delete(op.Key); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: batch of %d ops: %w: %v", len(ops), ErrStoreIO, err)
	}
	return nil
}

func (s *BoltStore) Iterate(prefix []byte) (Iterator, error) {
	s.acquire()
	tx, err := s.db.Begin(false)
	if err != nil {
		s.release()
		return nil, fmt.Errorf("store: iterate: %w: %v", ErrStoreIO, err)
	}
	c := tx.Bucket(kvBucket).Cursor()
	return &boltIterator{tx: tx, cursor: c, prefix: prefix, release: s.release, first: true}, nil
}

func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w: %v", ErrStoreIO, err)
	}
	return nil
}

type boltIterator struct {
	tx      *bolt.Tx
	cursor  *bolt.Cursor
	prefix  []byte
	release func()
	first   bool
	key     []byte
	val     []byte
	closed  bool
}

func (it *boltIterator) Next() bool {
	var k, v []byte
	if it.first {
		it.first = false
		k, v = it.cursor.Seek(it.prefix)
	} else {
		k, v = it.cursor.Next()
	}
	if k == nil || !hasPrefix(k, it.prefix) {
		it.key, it.val = nil, nil
		return false
	}
	it.key = append([]byte(nil), k...)
	it.val = append([]byte(nil), v...)
	return true
}

func (it *boltIterator) Key() []byte   { return it.key }
func (it *boltIterator) Value() []byte { return it.val }
func (it *boltIterator) Err() error    { return nil }

func (it *boltIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	err := it.tx.Rollback()
	it.release()
	if err != nil {
		return fmt.Errorf("store: close iterator: %w: %v", ErrStoreIO, err)
	}
	return nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
