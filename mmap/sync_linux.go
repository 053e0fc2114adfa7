package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

const mapPopulate = unix.MAP_POPULATE

func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
