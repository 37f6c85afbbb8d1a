// Package sim interprets isa programs on a model of the x86-64 register
// file. It runs anywhere, needs no executable memory, and can flip bits in
// flight to stand in for a faulty core.
package sim

import (
	"fmt"

	"github.com/dinhngtu/uvtester/isa"
)

// Machine is the architectural state a program can observe.
type Machine struct {
	gpr  [16]uint64
	vec  [16]Lane
	zero bool
}

// GPR returns general-purpose register r.
func (m *Machine) GPR(r isa.Reg) uint64 { return m.gpr[r.Num()] }

// SetGPR stores v into general-purpose register r.
func (m *Machine) SetGPR(r isa.Reg, v uint64) { m.gpr[r.Num()] = v }

// Vec returns vector register r.
func (m *Machine) Vec(r isa.Reg) Lane { return m.vec[r.Num()] }

// SetVec stores v into vector register r.
func (m *Machine) SetVec(r isa.Reg, v Lane) { m.vec[r.Num()] = v }

// Event describes the instruction about to execute.
type Event struct {
	PC        int
	Inst      isa.Inst
	Iteration int
}

// Hook observes, and may modify, the machine before each instruction.
type Hook func(m *Machine, ev Event)

// Run executes p from its first instruction until Ret. Iterations are
// counted each time the loop label is passed. maxSteps bounds execution;
// zero means unbounded.
func (m *Machine) Run(p *isa.Program, hook Hook, maxSteps int) error {
	iteration := -1
	steps := 0
	for pc := 0; pc < len(p.Insts); {
		in := p.Insts[pc]
		if maxSteps > 0 {
			steps++
			if steps > maxSteps {
				return fmt.Errorf("program %q exceeded %d steps", p.Name, maxSteps)
			}
		}
		if in.Op == isa.OpBind && in.Section == isa.SectionLoop {
			iteration++
		}
		if hook != nil {
			hook(m, Event{PC: pc, Inst: in, Iteration: iteration})
		}
		next := pc + 1
		switch in.Op {
		case isa.OpBind, isa.OpPause:
		case isa.OpMov:
			m.SetGPR(in.Dst, m.GPR(in.Src))
		case isa.OpMov32:
			m.SetGPR(in.Dst, uint64(uint32(m.GPR(in.Src))))
		case isa.OpZero:
			m.SetGPR(in.Dst, 0)
			m.zero = true
		case isa.OpMul:
			m.SetGPR(in.Dst, m.GPR(in.Dst)*m.GPR(in.Src))
		case isa.OpMulImm:
			m.SetGPR(in.Dst, m.GPR(in.Src)*uint64(int64(in.Imm)))
		case isa.OpXor:
			v := m.GPR(in.Dst) ^ m.GPR(in.Src)
			m.SetGPR(in.Dst, v)
			m.zero = v == 0
		case isa.OpOr:
			v := m.GPR(in.Dst) | m.GPR(in.Src)
			m.SetGPR(in.Dst, v)
			m.zero = v == 0
		case isa.OpDec32:
			v := uint32(m.GPR(in.Dst)) - 1
			m.SetGPR(in.Dst, uint64(v))
			m.zero = v == 0
		case isa.OpTest32:
			m.zero = uint32(m.GPR(in.Dst)&m.GPR(in.Src)) == 0
		case isa.OpJnz, isa.OpJz:
			if (in.Op == isa.OpJz) == m.zero {
				next = p.Targets[in.Label]
			}
		case isa.OpRet:
			return nil
		case isa.OpVecLoad:
			m.SetVec(in.Dst, Lane{m.GPR(in.Src), 0})
		case isa.OpVecStore:
			m.SetGPR(in.Dst, m.Vec(in.Src)[0])
		case isa.OpVecBroadcast:
			d := m.Vec(in.Dst)
			m.SetVec(in.Dst, Lane{d[0], m.Vec(in.Src)[0]})
		case isa.OpAESEnc:
			m.SetVec(in.Dst, AESEncRound(m.Vec(in.Dst), m.Vec(in.Src)))
		case isa.OpVecXor:
			d, s := m.Vec(in.Dst), m.Vec(in.Src)
			m.SetVec(in.Dst, Lane{d[0] ^ s[0], d[1] ^ s[1]})
		case isa.OpVecHighToLow:
			d := m.Vec(in.Dst)
			m.SetVec(in.Dst, Lane{m.Vec(in.Src)[1], d[1]})
		default:
			return fmt.Errorf("program %q: unsupported instruction %s at %d", p.Name, in, pc)
		}
		pc = next
	}
	return fmt.Errorf("program %q ran off the end", p.Name)
}
