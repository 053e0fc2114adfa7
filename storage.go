package merkledb

import (
	"encoding/binary"
	"fmt"
)

//go:generate mockgen -source storage.go -destination storage_mocks.go -package merkledb

// Storage represents an ordered key-value engine (Bolt, Badger, LevelDB,
// in-memory). Keys are grouped into namespaces; within a namespace keys are
// ordered by their bytes. Keys are never empty.
type Storage interface {
	// Snapshot returns a consistent point-in-time read view.
	Snapshot() (StorageSnapshot, error)

	// Apply atomically applies the batch: either every operation becomes
	// visible or none does.
	Apply(b *Batch) error

	// Close closes the storage.
	Close() error
}

// StorageSnapshot is an immutable read view of a Storage. It must be
// released when no longer needed. Snapshots are safe for concurrent use,
// cursors are not.
type StorageSnapshot interface {
	// Get retrieves a value by key. Returns nil, nil if not found.
	// The returned slice is owned by the caller.
	Get(ns string, key []byte) ([]byte, error)

	// Cursor returns a cursor over the namespace. Must be closed before the
	// snapshot is released.
	Cursor(ns string) (StorageCursor, error)

	// Release frees the engine resources held by the snapshot. It should be
	// safe to call multiple times.
	Release()
}

// StorageCursor iterates over a namespace in key order. Returned slices are
// only valid until the next call.
type StorageCursor interface {
	// First moves to the first key-value pair.
	First() (key, value []byte)

	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	// Next moves to the next key-value pair.
	Next() (key, value []byte)

	// Err returns the first I/O error the cursor encountered, if any.
	Err() error

	// Close releases the cursor.
	Close()
}

// BatchOp is a single put or delete of a Batch.
type BatchOp struct {
	NS     string `msgpack:"n"`
	Key    []byte `msgpack:"k"`
	Value  []byte `msgpack:"v,omitempty"`
	Delete bool   `msgpack:"d,omitempty"`
}

func (op BatchOp) String() string {
	if op.Delete {
		return fmt.Sprintf("del %s/%s", op.NS, hexstr(op.Key))
	}
	return fmt.Sprintf("put %s/%s = %s", op.NS, hexstr(op.Key), hexstr(op.Value))
}

// Batch is an ordered sequence of puts and deletes applied atomically by
// Storage.Apply.
type Batch struct {
	ops []BatchOp
}

func (b *Batch) Put(ns string, key, value []byte) {
	if value == nil {
		value = emptyValue
	}
	b.ops = append(b.ops, BatchOp{NS: ns, Key: key, Value: value})
}

func (b *Batch) Delete(ns string, key []byte) {
	b.ops = append(b.ops, BatchOp{NS: ns, Key: key, Delete: true})
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

func (b *Batch) Ops() []BatchOp {
	return b.ops
}

var emptyValue = []byte{}

// present maps a found empty value to a non-nil slice, so nil keeps meaning
// "missing" for engines that return nil for zero-length values.
func present(v []byte) []byte {
	if v == nil {
		return emptyValue
	}
	return v
}

// flatPrefix maps a namespace onto a key prefix for engines without native
// buckets. The length prefix makes namespace prefixes prefix-free.
func flatPrefix(ns string) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(ns))
	buf = binary.AppendUvarint(buf, uint64(len(ns)))
	return append(buf, ns...)
}

func flatKey(prefix []byte, key []byte) []byte {
	buf := make([]byte, len(prefix)+len(key))
	copy(buf, prefix)
	copy(buf[len(prefix):], key)
	return buf
}
