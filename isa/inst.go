package isa

import (
	"fmt"
	"strings"
)

// Op is an abstract operation. Each maps to exactly one x86-64 instruction.
type Op uint8

const (
	OpInvalid      Op = iota
	OpMov             // dst = src
	OpMov32           // dst = uint32(src)
	OpZero            // dst = 0
	OpMul             // dst = dst * src (wrapping)
	OpMulImm          // dst = src * imm
	OpXor             // dst ^= src
	OpOr              // dst |= src
	OpDec32           // dst = uint32(dst) - 1, sets the zero flag
	OpTest32          // zero flag = uint32(dst & src) == 0
	OpJnz             // branch to label if the zero flag is clear
	OpJz              // branch to label if the zero flag is set
	OpBind            // label position, emits nothing
	OpPause           // spin-wait hint
	OpRet             // return to caller
	OpVecLoad         // vector dst = {src, 0}
	OpVecStore        // dst = low half of vector src
	OpVecBroadcast    // vector dst = {dst.lo, src.lo}
	OpAESEnc          // vector dst = one AES encryption round of dst keyed by src
	OpVecXor          // vector dst ^= src
	OpVecHighToLow    // vector dst.lo = src.hi
	numOps
)

var opNames = [numOps]string{
	OpInvalid:      "invalid",
	OpMov:          "mov",
	OpMov32:        "mov32",
	OpZero:         "zero",
	OpMul:          "mul",
	OpMulImm:       "mulimm",
	OpXor:          "xor",
	OpOr:           "or",
	OpDec32:        "dec32",
	OpTest32:       "test32",
	OpJnz:          "jnz",
	OpJz:           "jz",
	OpBind:         "bind",
	OpPause:        "pause",
	OpRet:          "ret",
	OpVecLoad:      "vload",
	OpVecStore:     "vstore",
	OpVecBroadcast: "vbroadcast",
	OpAESEnc:       "aesenc",
	OpVecXor:       "vxor",
	OpVecHighToLow: "vhightolow",
}

func (o Op) String() string {
	if o < numOps {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// IsBranch reports whether o transfers control to a label.
func (o Op) IsBranch() bool {
	return o == OpJnz || o == OpJz
}

// operand classes per op
type class uint8

const (
	none class = iota
	gpr
	vec
)

var operandClasses = [numOps][2]class{
	OpMov:          {gpr, gpr},
	OpMov32:        {gpr, gpr},
	OpZero:         {gpr, none},
	OpMul:          {gpr, gpr},
	OpMulImm:       {gpr, gpr},
	OpXor:          {gpr, gpr},
	OpOr:           {gpr, gpr},
	OpDec32:        {gpr, none},
	OpTest32:       {gpr, gpr},
	OpJnz:          {none, none},
	OpJz:           {none, none},
	OpBind:         {none, none},
	OpPause:        {none, none},
	OpRet:          {none, none},
	OpVecLoad:      {vec, gpr},
	OpVecStore:     {gpr, vec},
	OpVecBroadcast: {vec, vec},
	OpAESEnc:       {vec, vec},
	OpVecXor:       {vec, vec},
	OpVecHighToLow: {vec, vec},
}

func (c class) accepts(r Reg) bool {
	switch c {
	case gpr:
		return r.IsGeneral()
	case vec:
		return r.IsVector()
	default:
		return r == NoReg
	}
}

// Section attributes an instruction to a part of the self-check function.
type Section uint8

const (
	SectionEntry Section = iota
	SectionLoop
	SectionChainA
	SectionChainB
	SectionCompare
	SectionExit
)

var sectionNames = [...]string{"entry", "loop", "chain-a", "chain-b", "compare", "exit"}

func (s Section) String() string {
	if int(s) < len(sectionNames) {
		return sectionNames[s]
	}
	return fmt.Sprintf("section(%d)", uint8(s))
}

// Label identifies a branch target within one program.
type Label int

// Inst is one abstract instruction.
type Inst struct {
	Op      Op
	Dst     Reg
	Src     Reg
	Imm     int32
	Label   Label
	Section Section
}

func (in Inst) String() string {
	switch in.Op {
	case OpBind:
		return fmt.Sprintf("L%d:", in.Label)
	case OpJnz, OpJz:
		return fmt.Sprintf("%s L%d", in.Op, in.Label)
	case OpPause, OpRet:
		return in.Op.String()
	case OpZero, OpDec32:
		return fmt.Sprintf("%s %s", in.Op, in.Dst.Name32())
	case OpMov32, OpTest32:
		return fmt.Sprintf("%s %s, %s", in.Op, in.Dst.Name32(), in.Src.Name32())
	case OpMulImm:
		return fmt.Sprintf("%s %s, %s, %d", in.Op, in.Dst, in.Src, in.Imm)
	default:
		return fmt.Sprintf("%s %s, %s", in.Op, in.Dst, in.Src)
	}
}

// Program is a finished, validated instruction stream.
type Program struct {
	Name  string
	Insts []Inst
	// Targets maps each label to the index of its bind instruction.
	Targets []int
	// ResultA and ResultB hold the two chain results at the start of the
	// compare section.
	ResultA Reg
	ResultB Reg
}

// Count returns the number of instructions with op o in section s.
func (p *Program) Count(o Op, s Section) int {
	n := 0
	for _, in := range p.Insts {
		if in.Op == o && in.Section == s {
			n++
		}
	}
	return n
}

// Uses reports whether any instruction has op o.
func (p *Program) Uses(o Op) bool {
	for _, in := range p.Insts {
		if in.Op == o {
			return true
		}
	}
	return false
}

// Section returns the instructions tagged with s, in program order.
func (p *Program) Section(s Section) []Inst {
	var out []Inst
	for _, in := range p.Insts {
		if in.Section == s {
			out = append(out, in)
		}
	}
	return out
}

// String renders a listing with one instruction per line.
func (p *Program) String() string {
	var sb strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&sb, "; %s\n", p.Name)
	}
	last := Section(0xff)
	for _, in := range p.Insts {
		if in.Section != last {
			fmt.Fprintf(&sb, "; -- %s\n", in.Section)
			last = in.Section
		}
		if in.Op == OpBind {
			fmt.Fprintf(&sb, "%s\n", in)
			continue
		}
		fmt.Fprintf(&sb, "\t%s\n", in)
	}
	return sb.String()
}
