// Package jit loads emitted machine code into executable memory and calls
// it from Go.
package jit

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"

	"github.com/dinhngtu/uvtester/abi"
	"github.com/dinhngtu/uvtester/emit"
	"github.com/dinhngtu/uvtester/isa"
)

// ErrUnsupported is returned when the host cannot execute generated code.
var ErrUnsupported = errors.New("native execution not supported on this host")

// Supported reports whether this build can map and call generated code.
func Supported() bool {
	return supported && runtime.GOARCH == "amd64"
}

// The trampoline passes seed and iterations in both the SysV and the Win64
// argument registers and is itself called under Go's convention, so code
// may only clobber registers volatile under SysV.
var (
	seedRegs  = []isa.Reg{isa.RDI, isa.RCX}
	countRegs = []isa.Reg{isa.RSI, isa.RDX}
)

// Emitter finalizes programs into native functions.
type Emitter struct{}

// NewEmitter returns a native Emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Emit encodes p and maps it executable.
func (e *Emitter) Emit(p *isa.Program, t abi.Target) (abi.Function, error) {
	if !Supported() {
		return nil, fmt.Errorf("%w (%s/%s)", ErrUnsupported, runtime.GOOS, runtime.GOARCH)
	}
	if t.Arch != "amd64" {
		return nil, fmt.Errorf("cannot run %s code on amd64", t.Arch)
	}
	if err := checkConvention(t.Convention); err != nil {
		return nil, err
	}
	if err := checkRegisters(p); err != nil {
		return nil, err
	}
	host := abi.HostFeatures()
	if p.Uses(isa.OpAESEnc) && !(t.Features.AESNI && host.AESNI) {
		return nil, fmt.Errorf("program %q needs AES-NI, target has %s", p.Name, t.Features)
	}
	if usesVector(p) && !host.SSE2 {
		return nil, fmt.Errorf("program %q needs SSE2", p.Name)
	}

	code, err := emit.Assemble(p)
	if err != nil {
		return nil, err
	}
	mem, err := mapExecutable(code)
	if err != nil {
		return nil, fmt.Errorf("map %d bytes executable: %w", len(code), err)
	}
	f := &Function{name: p.Name, size: len(code)}
	f.mem.Store(&mem)
	return f, nil
}

func checkConvention(c abi.CallingConvention) error {
	if len(c.Args) < 2 || !slices.Contains(seedRegs, c.Args[0]) || !slices.Contains(countRegs, c.Args[1]) {
		return fmt.Errorf("%s convention: arguments not reachable from the call trampoline", c.Name)
	}
	if c.Return != isa.RAX {
		return fmt.Errorf("%s convention: result must be returned in rax", c.Name)
	}
	return nil
}

func checkRegisters(p *isa.Program) error {
	for _, in := range p.Insts {
		for _, r := range []isa.Reg{in.Dst, in.Src} {
			if r != isa.NoReg && !abi.SysV.IsVolatile(r) {
				return fmt.Errorf("program %q: %s clobbers %s", p.Name, in, r)
			}
		}
	}
	return nil
}

func usesVector(p *isa.Program) bool {
	for _, in := range p.Insts {
		if in.Dst.IsVector() || in.Src.IsVector() {
			return true
		}
	}
	return false
}

// Function is generated code mapped read+execute.
type Function struct {
	name string
	size int
	mem  atomic.Pointer[[]byte]
}

// Call runs the self-check. It panics after Close.
func (f *Function) Call(seed int64, iterations uint32) int64 {
	mem := f.mem.Load()
	if mem == nil {
		panic(fmt.Sprintf("jit: call of closed function %q", f.name))
	}
	return call(*mem, seed, iterations)
}

// Code returns a copy of the machine code, or nil after Close.
func (f *Function) Code() []byte {
	mem := f.mem.Load()
	if mem == nil {
		return nil
	}
	return append([]byte(nil), (*mem)[:f.size]...)
}

// Close unmaps the code. Closing twice is a no-op.
func (f *Function) Close() error {
	mem := f.mem.Swap(nil)
	if mem == nil {
		return nil
	}
	return unmap(*mem)
}
