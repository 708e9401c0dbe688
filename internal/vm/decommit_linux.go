package vm

import "golang.org/x/sys/unix"

// MADV_DONTNEED on private anonymous memory drops the pages; the kernel
// supplies zero-filled ones on the next touch.
func decommit(b []byte) error {
	return unix.Madvise(b, unix.MADV_DONTNEED)
}
