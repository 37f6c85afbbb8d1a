//go:build !amd64

package jit

func call(mem []byte, seed int64, iterations uint32) int64 {
	panic(ErrUnsupported)
}
