package jit

import "unsafe"

// callSelfCheck calls the code at fn with seed in rdi and rcx and
// iterations in esi and edx.
//
//go:noescape
func callSelfCheck(fn uintptr, seed int64, iterations uint32) int64

func call(mem []byte, seed int64, iterations uint32) int64 {
	return callSelfCheck(uintptr(unsafe.Pointer(&mem[0])), seed, iterations)
}
