// Package store provides the ordered, byte-keyed, byte-valued embedded KV
// engine the chain-indexing engine persists all state to. It wraps
// go.etcd.io/bbolt, the lineage of embedded key-value engine the teacher
// codebase reaches for (a single-file, copy-on-write B+tree store, same
// family as the bolt/lmdb backends turbo-geth's ethdb package switches
// between at open time).
package store

import "errors"

// ErrStoreIO is returned for failures in the underlying storage engine.
var ErrStoreIO = errors.New("store: I/O error")

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: not found")

// OpKind distinguishes a put from a delete within a Batch.
type OpKind uint8

const (
	OpPut OpKind = iota
	OpDel
)

// Op is one mutation within an atomic Batch.
type Op struct {
	Kind  OpKind
	Key   []byte
	Value []byte // unused for OpDel
}

func Put(key, value []byte) Op { return Op{Kind: OpPut, Key: key, Value: value} }
func Del(key []byte) Op        { return Op{Kind: OpDel, Key: key} }

// Iterator walks keys in ascending byte order within a fixed prefix.
type Iterator interface {
	// Next advances the iterator and reports whether an item is available.
	Next() bool
	Key() []byte
	Value() []byte
	// Close releases resources held by the iterator (its underlying
	// read transaction). Callers must always call Close.
	Close() error
	Err() error
}

// Store is the contract every indexer and core component mutates and reads
// through. Implementations must guarantee that, once Batch returns nil,
// every operation within it survives a process crash (I5).
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Del(key []byte) error

	// Batch commits ops atomically: either all become durable or none do.
	Batch(ops []Op) error

	// Iterate returns keys with the given prefix in ascending order.
	Iterate(prefix []byte) (Iterator, error)

	Close() error
}
