// Package isa describes the abstract x86-64 instruction stream produced by
// the chain assembler and consumed by the encoder and the simulator.
package isa

import "fmt"

// Reg is a physical register. General-purpose registers use their hardware
// numbers 0-15, vector registers follow at 16-31.
type Reg uint8

// General-purpose registers
const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// Vector registers
const (
	X0 Reg = iota + 16
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
)

// NoReg marks an unused operand.
const NoReg Reg = 0xff

var gprNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var gpr32Names = [16]string{
	"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d",
}

// IsGeneral reports whether r is a general-purpose register.
func (r Reg) IsGeneral() bool {
	return r <= R15
}

// IsVector reports whether r is a 128-bit vector register.
func (r Reg) IsVector() bool {
	return r >= X0 && r <= X15
}

// Valid reports whether r names a register.
func (r Reg) Valid() bool {
	return r.IsGeneral() || r.IsVector()
}

// Num returns the 4-bit hardware number used in REX/ModRM encoding.
func (r Reg) Num() uint8 {
	return uint8(r) & 0x0f
}

// String returns the 64-bit (or xmm) register name.
func (r Reg) String() string {
	switch {
	case r.IsGeneral():
		return gprNames[r]
	case r.IsVector():
		return fmt.Sprintf("xmm%d", r.Num())
	case r == NoReg:
		return "-"
	default:
		return fmt.Sprintf("reg(%d)", uint8(r))
	}
}

// Name32 returns the 32-bit alias of a general-purpose register.
func (r Reg) Name32() string {
	if r.IsGeneral() {
		return gpr32Names[r]
	}
	return r.String()
}
