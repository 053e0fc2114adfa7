// Package mmap maps journal segments into memory for reading and syncs
// segment writes.
package mmap

import (
	"fmt"
	"math"
	"os"
)

// MaxSize is the largest file Open maps. Journal segments roll over long
// before reaching it.
const MaxSize = math.MaxInt32

type Options uint

const (
	// SequentialAccess requests aggressive read-ahead (MADV_SEQUENTIAL).
	SequentialAccess Options = 1 << iota

	// RandomAccess disables most read-ahead (MADV_RANDOM).
	RandomAccess

	// Prefault loads the whole file up front (MAP_POPULATE on Linux).
	Prefault
)

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Region is a read-only view of a whole file.
type Region struct {
	f    *os.File
	Data []byte
}

// Open maps the file at path. An empty file yields an empty region.
func Open(path string, opt Options) (*Region, error) {
	if opt.Has(SequentialAccess) && opt.Has(RandomAccess) {
		return nil, fmt.Errorf("mmap: sequential and random access hints are exclusive")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r := &Region{f: f}
	if size := st.Size(); size > 0 {
		if size > MaxSize {
			f.Close()
			return nil, fmt.Errorf("mmap %s: file too large (%d bytes)", path, size)
		}
		r.Data, err = mapFile(f, int(size), opt)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}
	}
	return r, nil
}

func (r *Region) Close() error {
	var err error
	if r.Data != nil {
		err = unmapFile(r.Data)
		r.Data = nil
	}
	if r.f != nil {
		if cerr := r.f.Close(); err == nil {
			err = cerr
		}
		r.f = nil
	}
	return err
}

// Fdatasync flushes the data written to f, skipping metadata where the
// platform allows it. A failed sync leaves the file in an unknown state; the
// journal treats it as fatal.
func Fdatasync(f *os.File) error {
	return fdatasync(f)
}
