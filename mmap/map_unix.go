//go:build unix

package mmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File, size int, opt Options) ([]byte, error) {
	flags := unix.MAP_SHARED
	if opt.Has(Prefault) {
		flags |= mapPopulate
	}
	b, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, flags)
	if err != nil {
		return nil, err
	}

	advice := -1
	switch {
	case opt.Has(SequentialAccess):
		advice = unix.MADV_SEQUENTIAL
	case opt.Has(RandomAccess):
		advice = unix.MADV_RANDOM
	}
	if advice >= 0 {
		// ENOSYS: the kernel ignores hints, mapping still works.
		if err := unix.Madvise(b, advice); err != nil && err != unix.ENOSYS {
			unix.Munmap(b)
			return nil, fmt.Errorf("madvise(%d): %w", advice, err)
		}
	}
	return b, nil
}

func unmapFile(b []byte) error {
	return unix.Munmap(b)
}
