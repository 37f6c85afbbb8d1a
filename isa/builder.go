package isa

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned by Builder.Program for streams that cannot be
// encoded.
var ErrMalformed = errors.New("malformed instruction stream")

// Builder accumulates instructions. The first operand error is latched and
// reported by Program.
type Builder struct {
	insts   []Inst
	labels  int
	section Section
	err     error
}

// NewBuilder returns an empty builder positioned in the entry section.
func NewBuilder() *Builder {
	return &Builder{section: SectionEntry}
}

// SetSection tags all following instructions with s.
func (b *Builder) SetSection(s Section) {
	b.section = s
}

// Len returns the number of instructions emitted so far.
func (b *Builder) Len() int {
	return len(b.insts)
}

// NewLabel allocates an unbound label.
func (b *Builder) NewLabel() Label {
	l := Label(b.labels)
	b.labels++
	return l
}

// Bind places l at the current position.
func (b *Builder) Bind(l Label) {
	b.add(Inst{Op: OpBind, Dst: NoReg, Src: NoReg, Label: l})
}

func (b *Builder) Mov(dst, src Reg) {
	b.add(Inst{Op: OpMov, Dst: dst, Src: src})
}

func (b *Builder) Mov32(dst, src Reg) {
	b.add(Inst{Op: OpMov32, Dst: dst, Src: src})
}

func (b *Builder) Zero(dst Reg) {
	b.add(Inst{Op: OpZero, Dst: dst, Src: NoReg})
}

func (b *Builder) Mul(dst, src Reg) {
	b.add(Inst{Op: OpMul, Dst: dst, Src: src})
}

func (b *Builder) Xor(dst, src Reg) {
	b.add(Inst{Op: OpXor, Dst: dst, Src: src})
}

func (b *Builder) Or(dst, src Reg) {
	b.add(Inst{Op: OpOr, Dst: dst, Src: src})
}

func (b *Builder) Dec32(dst Reg) {
	b.add(Inst{Op: OpDec32, Dst: dst, Src: NoReg})
}

func (b *Builder) Test32(dst, src Reg) {
	b.add(Inst{Op: OpTest32, Dst: dst, Src: src})
}

// MulImm emits dst = src * imm.
func (b *Builder) MulImm(dst, src Reg, imm int32) {
	b.add(Inst{Op: OpMulImm, Dst: dst, Src: src, Imm: imm})
}

func (b *Builder) Jnz(l Label) {
	b.add(Inst{Op: OpJnz, Dst: NoReg, Src: NoReg, Label: l})
}

func (b *Builder) Jz(l Label) {
	b.add(Inst{Op: OpJz, Dst: NoReg, Src: NoReg, Label: l})
}

func (b *Builder) Pause() {
	b.add(Inst{Op: OpPause, Dst: NoReg, Src: NoReg})
}

func (b *Builder) Ret() {
	b.add(Inst{Op: OpRet, Dst: NoReg, Src: NoReg})
}

func (b *Builder) VecLoad(dst, src Reg) {
	b.add(Inst{Op: OpVecLoad, Dst: dst, Src: src})
}

func (b *Builder) VecStore(dst, src Reg) {
	b.add(Inst{Op: OpVecStore, Dst: dst, Src: src})
}

func (b *Builder) VecBroadcast(dst, src Reg) {
	b.add(Inst{Op: OpVecBroadcast, Dst: dst, Src: src})
}

func (b *Builder) AESEnc(dst, key Reg) {
	b.add(Inst{Op: OpAESEnc, Dst: dst, Src: key})
}

func (b *Builder) VecXor(dst, src Reg) {
	b.add(Inst{Op: OpVecXor, Dst: dst, Src: src})
}

func (b *Builder) VecHighToLow(dst, src Reg) {
	b.add(Inst{Op: OpVecHighToLow, Dst: dst, Src: src})
}

func (b *Builder) add(in Inst) {
	in.Section = b.section
	if b.err == nil {
		b.err = check(in, len(b.insts), b.labels)
	}
	b.insts = append(b.insts, in)
}

func check(in Inst, at, labels int) error {
	if in.Op == OpInvalid || in.Op >= numOps {
		return fmt.Errorf("%w: instruction %d: unknown op %d", ErrMalformed, at, in.Op)
	}
	cls := operandClasses[in.Op]
	if !cls[0].accepts(in.Dst) || !cls[1].accepts(in.Src) {
		return fmt.Errorf("%w: instruction %d: bad operands for %s: %s, %s", ErrMalformed, at, in.Op, in.Dst, in.Src)
	}
	if (in.Op.IsBranch() || in.Op == OpBind) && (in.Label < 0 || int(in.Label) >= labels) {
		return fmt.Errorf("%w: instruction %d: unknown label L%d", ErrMalformed, at, in.Label)
	}
	return nil
}

// Program validates the stream and returns it. The builder must not be used
// afterwards.
func (b *Builder) Program(name string) (*Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	targets := make([]int, b.labels)
	for i := range targets {
		targets[i] = -1
	}
	for i, in := range b.insts {
		if in.Op != OpBind {
			continue
		}
		if targets[in.Label] >= 0 {
			return nil, fmt.Errorf("%w: label L%d bound twice", ErrMalformed, in.Label)
		}
		targets[in.Label] = i
	}
	for _, in := range b.insts {
		if in.Op.IsBranch() && targets[in.Label] < 0 {
			return nil, fmt.Errorf("%w: branch to unbound label L%d", ErrMalformed, in.Label)
		}
	}
	if n := len(b.insts); n == 0 || b.insts[n-1].Op != OpRet {
		return nil, fmt.Errorf("%w: stream does not end in ret", ErrMalformed)
	}
	return &Program{
		Name:    name,
		Insts:   b.insts,
		Targets: targets,
		ResultA: NoReg,
		ResultB: NoReg,
	}, nil
}
