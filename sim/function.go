package sim

import (
	"fmt"

	"github.com/dinhngtu/uvtester/abi"
	"github.com/dinhngtu/uvtester/isa"
)

// Fault flips Bit of chain B's result just before the compare section of
// iteration Iteration (zero based). For vector kernels bits 64..127 select
// the high lane.
type Fault struct {
	Iteration int
	Bit       uint
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithFault injects f into every call.
func WithFault(f Fault) Option {
	return func(e *Emitter) {
		e.faults = append(e.faults, f)
	}
}

// WithHook installs a per-instruction observer.
func WithHook(h Hook) Option {
	return func(e *Emitter) {
		e.hook = h
	}
}

// WithMaxSteps bounds the instructions a single call may execute.
func WithMaxSteps(n int) Option {
	return func(e *Emitter) {
		e.maxSteps = n
	}
}

// Emitter turns programs into interpreted functions.
type Emitter struct {
	faults   []Fault
	hook     Hook
	maxSteps int
}

// NewEmitter returns an Emitter configured by opts.
func NewEmitter(opts ...Option) *Emitter {
	e := &Emitter{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit checks that p uses only registers t's convention allows the
// function to clobber, then wraps it. The interpreter runs on any host, so
// the target's features are not consulted.
func (e *Emitter) Emit(p *isa.Program, t abi.Target) (abi.Function, error) {
	if p == nil || len(p.Insts) == 0 {
		return nil, fmt.Errorf("empty program")
	}
	if len(t.Convention.Args) < 2 {
		return nil, fmt.Errorf("%s convention passes fewer than two arguments in registers", t.Convention.Name)
	}
	for _, in := range p.Insts {
		for _, r := range []isa.Reg{in.Dst, in.Src} {
			if r != isa.NoReg && !t.Convention.IsVolatile(r) {
				return nil, fmt.Errorf("instruction %q writes callee-saved register %s under %s", in, r, t.Convention.Name)
			}
		}
	}
	return &Function{
		prog:     p,
		conv:     t.Convention,
		faults:   append([]Fault(nil), e.faults...),
		hook:     e.hook,
		maxSteps: e.maxSteps,
	}, nil
}

// Function is an interpreted self-check function. Every call runs on a
// fresh Machine, so concurrent calls are independent.
type Function struct {
	prog     *isa.Program
	conv     abi.CallingConvention
	faults   []Fault
	hook     Hook
	maxSteps int
}

// Program returns the program the function interprets.
func (f *Function) Program() *isa.Program { return f.prog }

// Call runs the program with seed and iterations in the convention's
// argument registers and returns the value left in its return register.
// The upper half of the count register holds garbage, as a real caller may
// leave it.
func (f *Function) Call(seed int64, iterations uint32) int64 {
	ret, err := f.Run(seed, iterations)
	if err != nil {
		panic(err)
	}
	return ret
}

// Run is Call with the interpreter error surfaced.
func (f *Function) Run(seed int64, iterations uint32) (int64, error) {
	var m Machine
	for i := range m.gpr {
		m.gpr[i] = 0xdead_beef_0000_0000 | uint64(i)
	}
	m.SetGPR(f.conv.Args[0], uint64(seed))
	m.SetGPR(f.conv.Args[1], 0xa5a5_a5a5_0000_0000|uint64(iterations))

	hook := f.hook
	if len(f.faults) > 0 {
		hook = f.inject(hook)
	}
	if err := m.Run(f.prog, hook, f.maxSteps); err != nil {
		return 0, err
	}
	return int64(m.GPR(f.conv.Return)), nil
}

// Close is a no-op; interpreted functions hold no resources.
func (f *Function) Close() error { return nil }

func (f *Function) inject(next Hook) Hook {
	fired := make([]bool, len(f.faults))
	entered := -1
	return func(m *Machine, ev Event) {
		if ev.Inst.Section == isa.SectionCompare && ev.Iteration != entered {
			entered = ev.Iteration
			for i, fault := range f.faults {
				if fired[i] || fault.Iteration != ev.Iteration {
					continue
				}
				fired[i] = true
				f.flip(m, fault.Bit)
			}
		}
		if next != nil {
			next(m, ev)
		}
	}
}

func (f *Function) flip(m *Machine, bit uint) {
	r := f.prog.ResultB
	if r.IsVector() {
		v := m.Vec(r)
		v[(bit/64)%2] ^= 1 << (bit % 64)
		m.SetVec(r, v)
		return
	}
	m.SetGPR(r, m.GPR(r)^1<<(bit%64))
}
