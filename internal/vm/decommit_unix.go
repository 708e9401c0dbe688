//go:build unix && !linux

package vm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Outside Linux, MADV_DONTNEED (and MADV_FREE) may leave old contents
// readable until the kernel reclaims the pages, so map fresh zero pages
// over the range instead.
func decommit(b []byte) error {
	_, err := unix.MmapPtr(-1, 0, unsafe.Pointer(unsafe.SliceData(b)), uintptr(len(b)),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_FIXED)
	return err
}
