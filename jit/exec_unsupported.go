//go:build !(amd64 && (linux || darwin || freebsd))

package jit

const supported = false

func mapExecutable(code []byte) ([]byte, error) {
	return nil, ErrUnsupported
}

func unmap(mem []byte) error {
	return nil
}
