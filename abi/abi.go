// Package abi describes calling conventions and targets as data, and the
// contract between generated self-check functions and their callers.
package abi

import (
	"fmt"
	"runtime"
	"slices"

	"github.com/dinhngtu/uvtester/isa"
)

// CallingConvention lists the registers a platform uses to pass integer
// arguments and return values, and which registers a callee may clobber.
type CallingConvention struct {
	Name     string
	Args     []isa.Reg
	Return   isa.Reg
	Volatile []isa.Reg
}

// SysV is the System V AMD64 convention (Linux, macOS, BSDs).
var SysV = CallingConvention{
	Name:   "sysv",
	Args:   []isa.Reg{isa.RDI, isa.RSI, isa.RDX, isa.RCX, isa.R8, isa.R9},
	Return: isa.RAX,
	Volatile: []isa.Reg{
		isa.RAX, isa.RCX, isa.RDX, isa.RSI, isa.RDI, isa.R8, isa.R9, isa.R10, isa.R11,
		isa.X0, isa.X1, isa.X2, isa.X3, isa.X4, isa.X5, isa.X6, isa.X7,
		isa.X8, isa.X9, isa.X10, isa.X11, isa.X12, isa.X13, isa.X14, isa.X15,
	},
}

// Win64 is the Microsoft x64 convention.
var Win64 = CallingConvention{
	Name:   "win64",
	Args:   []isa.Reg{isa.RCX, isa.RDX, isa.R8, isa.R9},
	Return: isa.RAX,
	Volatile: []isa.Reg{
		isa.RAX, isa.RCX, isa.RDX, isa.R8, isa.R9, isa.R10, isa.R11,
		isa.X0, isa.X1, isa.X2, isa.X3, isa.X4, isa.X5,
	},
}

// IsVolatile reports whether r may be clobbered without saving it.
func (c CallingConvention) IsVolatile(r isa.Reg) bool {
	return slices.Contains(c.Volatile, r)
}

// ConventionFor returns the convention used on goos.
func ConventionFor(goos string) CallingConvention {
	if goos == "windows" {
		return Win64
	}
	return SysV
}

// LookupConvention resolves a convention by name.
func LookupConvention(name string) (CallingConvention, error) {
	switch name {
	case SysV.Name:
		return SysV, nil
	case Win64.Name:
		return Win64, nil
	default:
		return CallingConvention{}, fmt.Errorf("unknown calling convention: %s", name)
	}
}

// Target describes the platform code is generated for.
type Target struct {
	OS         string
	Arch       string
	Convention CallingConvention
	Features   Features
}

// Host returns the target describing the running process.
func Host() Target {
	return Target{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Convention: ConventionFor(runtime.GOOS),
		Features:   HostFeatures(),
	}
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s (%s, %s)", t.OS, t.Arch, t.Convention.Name, t.Features)
}

// Function is a compiled self-check function. Call returns the divergence
// accumulator: zero when both chains agreed on every iteration. Call is safe
// for concurrent use; Close releases the code and must not race with Call.
type Function interface {
	Call(seed int64, iterations uint32) int64
	Close() error
}

// Emitter finalizes a program into a callable Function.
type Emitter interface {
	Emit(p *isa.Program, t Target) (Function, error)
}
