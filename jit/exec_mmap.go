//go:build amd64 && (linux || darwin || freebsd)

package jit

import (
	"golang.org/x/sys/unix"
)

const supported = true

// mapExecutable copies code into fresh anonymous pages and flips them from
// writable to executable.
func mapExecutable(code []byte) ([]byte, error) {
	page := unix.Getpagesize()
	size := (len(code) + page - 1) / page * page
	if size == 0 {
		size = page
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, err
	}
	return mem, nil
}

func unmap(mem []byte) error {
	return unix.Munmap(mem)
}
