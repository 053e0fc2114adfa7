package merkledb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerOptions configures the Badger backend.
type BadgerOptions struct {
	// Path is the directory for Badger files. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool

	SyncWrites bool

	// Logger receives Badger's internal log output. Nil disables it.
	Logger *slog.Logger
}

type badgerStorage struct {
	bdb *badger.DB
}

// OpenBadgerStorage opens a Badger database. Namespaces are flattened into
// key prefixes.
func OpenBadgerStorage(opt BadgerOptions) (Storage, error) {
	if !opt.InMemory && opt.Path == "" {
		return nil, errors.New("badger: path is required for persistent database")
	}

	var bopt badger.Options
	if opt.InMemory {
		bopt = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opt.Path, 0750); err != nil {
			return nil, fmt.Errorf("badger: create directory %s: %w", opt.Path, err)
		}
		bopt = badger.DefaultOptions(opt.Path)
	}
	bopt = bopt.WithSyncWrites(opt.SyncWrites).WithNumVersionsToKeep(1)
	if opt.Logger != nil {
		bopt = bopt.WithLogger(&badgerLogger{logger: opt.Logger})
	} else {
		bopt = bopt.WithLogger(nil)
	}

	bdb, err := badger.Open(bopt)
	if err != nil {
		return nil, fmt.Errorf("badger: %w", err)
	}
	return &badgerStorage{bdb: bdb}, nil
}

func (s *badgerStorage) Snapshot() (StorageSnapshot, error) {
	if s.bdb.IsClosed() {
		return nil, ErrClosed
	}
	return &badgerSnapshot{txn: s.bdb.NewTransaction(false)}, nil
}

func (s *badgerStorage) Apply(b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	prefixes := make(map[string][]byte)
	err := s.bdb.Update(func(txn *badger.Txn) error {
		for _, op := range b.ops {
			prefix := prefixes[op.NS]
			if prefix == nil {
				prefix = flatPrefix(op.NS)
				prefixes[op.NS] = prefix
			}
			k := flatKey(prefix, op.Key)
			var err error
			if op.Delete {
				err = txn.Delete(k)
			} else {
				err = txn.Set(k, op.Value)
			}
			if err != nil {
				return fmt.Errorf("%v: %w", op, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger: batch of %d: %w", b.Len(), err)
	}
	return nil
}

func (s *badgerStorage) Close() error {
	return s.bdb.Close()
}

type badgerSnapshot struct {
	txn *badger.Txn
}

func (snap *badgerSnapshot) Get(ns string, key []byte) ([]byte, error) {
	item, err := snap.txn.Get(flatKey(flatPrefix(ns), key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("badger: get %s/%s: %w", ns, hexstr(key), err)
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("badger: get %s/%s: %w", ns, hexstr(key), err)
	}
	return present(v), nil
}

func (snap *badgerSnapshot) Cursor(ns string) (StorageCursor, error) {
	prefix := flatPrefix(ns)
	it := snap.txn.NewIterator(badger.IteratorOptions{
		PrefetchValues: true,
		PrefetchSize:   64,
		Prefix:         prefix,
	})
	return &badgerCursor{it: it, prefix: prefix}, nil
}

func (snap *badgerSnapshot) Release() {
	snap.txn.Discard()
}

type badgerCursor struct {
	it     *badger.Iterator
	prefix []byte
	err    error
}

func (c *badgerCursor) at() ([]byte, []byte) {
	if !c.it.ValidForPrefix(c.prefix) {
		return nil, nil
	}
	item := c.it.Item()
	v, err := item.ValueCopy(nil)
	if err != nil {
		if c.err == nil {
			c.err = err
		}
		return nil, nil
	}
	return item.Key()[len(c.prefix):], present(v)
}

func (c *badgerCursor) First() ([]byte, []byte) {
	c.it.Seek(c.prefix)
	return c.at()
}

func (c *badgerCursor) Seek(seek []byte) ([]byte, []byte) {
	c.it.Seek(flatKey(c.prefix, seek))
	return c.at()
}

func (c *badgerCursor) Next() ([]byte, []byte) {
	if !c.it.ValidForPrefix(c.prefix) {
		return nil, nil
	}
	c.it.Next()
	return c.at()
}

func (c *badgerCursor) Err() error { return c.err }

func (c *badgerCursor) Close() {
	c.it.Close()
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
