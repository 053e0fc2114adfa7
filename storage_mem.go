package merkledb

import (
	"bytes"
	"slices"
	"sort"
	"sync"
)

type memStorage struct {
	mu      sync.Mutex
	buckets map[string]*memBucket
	gen     uint64
	closed  bool
}

// NewMemoryStorage returns a transient in-memory Storage. Buckets are sorted
// runs of small chunks: snapshots share them with the live state, and Apply
// copies only the chunks it modifies.
func NewMemoryStorage() Storage {
	return &memStorage{buckets: make(map[string]*memBucket)}
}

func (s *memStorage) Snapshot() (StorageSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return &memSnapshot{buckets: s.buckets}, nil
}

func (s *memStorage) Apply(b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.gen++
	next := make(map[string]*memBucket, len(s.buckets))
	for k, v := range s.buckets {
		next[k] = v
	}
	copied := make(map[string]bool)
	for _, op := range b.ops {
		buck := next[op.NS]
		if !copied[op.NS] {
			buck = buck.clone()
			next[op.NS] = buck
			copied[op.NS] = true
		}
		if op.Delete {
			buck.delete(op.Key, s.gen)
		} else {
			buck.put(op.Key, op.Value, s.gen)
		}
	}
	for ns, buck := range next {
		if buck.len == 0 {
			delete(next, ns)
		}
	}
	s.buckets = next
	return nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buckets = nil
	return nil
}

type memSnapshot struct {
	buckets map[string]*memBucket
}

func (snap *memSnapshot) Get(ns string, key []byte) ([]byte, error) {
	b := snap.buckets[ns]
	if b == nil {
		return nil, nil
	}
	ci, i, ok := b.find(key)
	if !ok {
		return nil, nil
	}
	return slices.Clone(b.chunks[ci].items[i].value), nil
}

func (snap *memSnapshot) Cursor(ns string) (StorageCursor, error) {
	b := snap.buckets[ns]
	if b == nil {
		b = &memBucket{}
	}
	return &memCursor{b: b}, nil
}

func (snap *memSnapshot) Release() {}

// memChunkSize is the chunk length after a split; chunks grow up to twice
// that before splitting.
const memChunkSize = 128

type memBucket struct {
	chunks []*memChunk // sorted, never empty
	len    int
}

// memChunk is owned by the Apply that created it (gen) and is immutable once
// that Apply returns. Keys and values are never mutated in place.
type memChunk struct {
	items []memKV // sorted by key
	gen   uint64
}

type memKV struct {
	key   []byte
	value []byte
}

// clone copies the chunk list only; chunks are copied on first write.
func (b *memBucket) clone() *memBucket {
	if b == nil {
		return &memBucket{}
	}
	return &memBucket{chunks: slices.Clone(b.chunks), len: b.len}
}

func (b *memBucket) writable(ci int, gen uint64) *memChunk {
	c := b.chunks[ci]
	if c.gen != gen {
		c = &memChunk{items: slices.Clone(c.items), gen: gen}
		b.chunks[ci] = c
	}
	return c
}

func (b *memBucket) put(key, value []byte, gen uint64) {
	key = slices.Clone(key)
	value = slices.Clone(value)
	ci, i, ok := b.find(key)
	if ok {
		b.writable(ci, gen).items[i].value = value
		return
	}
	if len(b.chunks) == 0 {
		b.chunks = append(b.chunks, &memChunk{gen: gen})
	}
	if ci == len(b.chunks) {
		ci = len(b.chunks) - 1
		i = len(b.chunks[ci].items)
	}
	c := b.writable(ci, gen)
	c.items = slices.Insert(c.items, i, memKV{key: key, value: value})
	b.len++
	if len(c.items) > 2*memChunkSize {
		tail := &memChunk{items: slices.Clone(c.items[memChunkSize:]), gen: gen}
		c.items = slices.Clip(c.items[:memChunkSize])
		b.chunks = slices.Insert(b.chunks, ci+1, tail)
	}
}

func (b *memBucket) delete(key []byte, gen uint64) {
	ci, i, ok := b.find(key)
	if !ok {
		return
	}
	c := b.writable(ci, gen)
	c.items = slices.Delete(c.items, i, i+1)
	b.len--
	if len(c.items) == 0 {
		b.chunks = slices.Delete(b.chunks, ci, ci+1)
	}
}

// find returns the chunk and position of the first key >= key. ci is
// len(b.chunks) when every key is smaller.
func (b *memBucket) find(key []byte) (ci, i int, ok bool) {
	chunks := b.chunks
	ci = sort.Search(len(chunks), func(j int) bool {
		items := chunks[j].items
		return bytes.Compare(items[len(items)-1].key, key) >= 0
	})
	if ci == len(chunks) {
		return ci, 0, false
	}
	items := chunks[ci].items
	i = sort.Search(len(items), func(j int) bool {
		return bytes.Compare(items[j].key, key) >= 0
	})
	return ci, i, bytes.Equal(items[i].key, key)
}

type memCursor struct {
	b       *memBucket
	ci, i   int
	started bool
}

func (c *memCursor) at() ([]byte, []byte) {
	chunks := c.b.chunks
	for c.ci < len(chunks) && c.i >= len(chunks[c.ci].items) {
		c.ci++
		c.i = 0
	}
	if c.ci >= len(chunks) {
		return nil, nil
	}
	kv := chunks[c.ci].items[c.i]
	return kv.key, kv.value
}

func (c *memCursor) First() ([]byte, []byte) {
	c.ci, c.i, c.started = 0, 0, true
	return c.at()
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	c.ci, c.i, _ = c.b.find(seek)
	c.started = true
	return c.at()
}

func (c *memCursor) Next() ([]byte, []byte) {
	if !c.started {
		return c.First()
	}
	if c.ci < len(c.b.chunks) {
		c.i++
	}
	return c.at()
}

func (c *memCursor) Err() error { return nil }

func (c *memCursor) Close() {}
