package abi

import (
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Features lists the ISA extensions the kernels may depend on.
type Features struct {
	SSE2  bool
	AESNI bool
}

// HostFeatures probes the running CPU.
func HostFeatures() Features {
	return Features{
		SSE2:  cpuid.CPU.Supports(cpuid.SSE2),
		AESNI: cpuid.CPU.Supports(cpuid.AESNI),
	}
}

func (f Features) String() string {
	var names []string
	if f.SSE2 {
		names = append(names, "sse2")
	}
	if f.AESNI {
		names = append(names, "aes")
	}
	if len(names) == 0 {
		return "baseline"
	}
	return strings.Join(names, ",")
}
