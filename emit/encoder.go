// Package emit encodes isa programs as x86-64 machine code and renders
// machine code back into an Intel-syntax listing.
package emit

import (
	"fmt"

	"github.com/dinhngtu/uvtester/isa"
)

// Opcodes used by the encoder. Two-byte opcodes are listed without the 0F
// escape.
const (
	opOrRmR      = 0x09 // OR r/m, r
	opXorRmR     = 0x31 // XOR r/m, r
	opIMulImm8   = 0x6B // IMUL r, r/m, imm8
	opIMulImm32  = 0x69 // IMUL r, r/m, imm32
	opTestRmR    = 0x85 // TEST r/m, r
	opMovRmR     = 0x89 // MOV r/m, r
	opGroup5     = 0xFF // INC/DEC/CALL/JMP/PUSH r/m
	opRet        = 0xC3
	opJnzRel8    = 0x75
	opJzRel8     = 0x74
	opEscape     = 0x0F
	op2IMul      = 0xAF // IMUL r, r/m
	op2JnzRel32  = 0x85
	op2JzRel32   = 0x84
	op2MovqToX   = 0x6E // MOVQ xmm, r/m64 (66 prefix)
	op2MovqFromX = 0x7E // MOVQ r/m64, xmm (66 prefix)
	op2Punpcklqd = 0x6C // PUNPCKLQDQ (66 prefix)
	op2Pxor      = 0xEF // PXOR (66 prefix)
	op2Movhlps   = 0x12 // MOVHLPS
	op3AESEnc    = 0xDC // AESENC, 0F 38 DC (66 prefix)
	prefixOpSize = 0x66
	prefixRep    = 0xF3
)

// CodeBuffer accumulates machine code.
type CodeBuffer struct {
	code []byte
}

func newCodeBuffer(capacity int) *CodeBuffer {
	return &CodeBuffer{code: make([]byte, 0, capacity)}
}

func (cb *CodeBuffer) emit(bs ...byte) {
	cb.code = append(cb.code, bs...)
}

func (cb *CodeBuffer) emitI32(v int32) {
	u := uint32(v)
	cb.emit(byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
}

func (cb *CodeBuffer) patchI32(pos int, v int32) {
	u := uint32(v)
	cb.code[pos] = byte(u)
	cb.code[pos+1] = byte(u >> 8)
	cb.code[pos+2] = byte(u >> 16)
	cb.code[pos+3] = byte(u >> 24)
}

func (cb *CodeBuffer) len() int {
	return len(cb.code)
}

// rexByte builds a REX prefix.
// W: 64-bit operand size
// R: extension of ModRM reg
// B: extension of ModRM r/m
func rexByte(w, r, b bool) byte {
	rex := byte(0x40)
	if w {
		rex |= 0x08
	}
	if r {
		rex |= 0x04
	}
	if b {
		rex |= 0x01
	}
	return rex
}

// modRM builds a register-direct ModRM byte.
func modRM(reg, rm uint8) byte {
	return 3<<6 | (reg&7)<<3 | rm&7
}

// emitRR emits [prefix] [REX] opcode... ModRM for a register-register form.
// The REX byte is omitted when no bit in it is needed.
func (cb *CodeBuffer) emitRR(prefix byte, w bool, reg, rm isa.Reg, opcode ...byte) {
	if prefix != 0 {
		cb.emit(prefix)
	}
	r, b := reg.Num() >= 8, rm.Num() >= 8
	if w || r || b {
		cb.emit(rexByte(w, r, b))
	}
	cb.emit(opcode...)
	cb.emit(modRM(reg.Num(), rm.Num()))
}

type fixup struct {
	pos   int // offset of the rel32 field
	label isa.Label
}

// Assemble encodes p. Backward branches use the short form when the
// target is in range; forward branches always take rel32 and are patched
// once the whole program is laid out.
func Assemble(p *isa.Program) ([]byte, error) {
	cb := newCodeBuffer(len(p.Insts) * 5)
	offsets := make(map[isa.Label]int)
	var fixups []fixup

	for i, in := range p.Insts {
		if err := checkOperands(in); err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, in, err)
		}
		switch in.Op {
		case isa.OpBind:
			offsets[in.Label] = cb.len()
		case isa.OpMov:
			cb.emitRR(0, true, in.Src, in.Dst, opMovRmR)
		case isa.OpMov32:
			cb.emitRR(0, false, in.Src, in.Dst, opMovRmR)
		case isa.OpZero:
			cb.emitRR(0, false, in.Dst, in.Dst, opXorRmR)
		case isa.OpMul:
			cb.emitRR(0, true, in.Dst, in.Src, opEscape, op2IMul)
		case isa.OpMulImm:
			if in.Imm >= -128 && in.Imm <= 127 {
				cb.emitRR(0, true, in.Dst, in.Src, opIMulImm8)
				cb.emit(byte(int8(in.Imm)))
			} else {
				cb.emitRR(0, true, in.Dst, in.Src, opIMulImm32)
				cb.emitI32(in.Imm)
			}
		case isa.OpXor:
			cb.emitRR(0, true, in.Src, in.Dst, opXorRmR)
		case isa.OpOr:
			cb.emitRR(0, true, in.Src, in.Dst, opOrRmR)
		case isa.OpDec32:
			// FF /1
			cb.emitRR(0, false, isa.RCX, in.Dst, opGroup5)
		case isa.OpTest32:
			cb.emitRR(0, false, in.Src, in.Dst, opTestRmR)
		case isa.OpJnz, isa.OpJz:
			short, near := byte(opJnzRel8), byte(op2JnzRel32)
			if in.Op == isa.OpJz {
				short, near = opJzRel8, op2JzRel32
			}
			if target, bound := offsets[in.Label]; bound {
				rel := target - (cb.len() + 2)
				if rel >= -128 {
					cb.emit(short, byte(int8(rel)))
					continue
				}
				cb.emit(opEscape, near)
				cb.emitI32(int32(target - (cb.len() + 4)))
				continue
			}
			cb.emit(opEscape, near)
			fixups = append(fixups, fixup{pos: cb.len(), label: in.Label})
			cb.emitI32(0)
		case isa.OpPause:
			cb.emit(prefixRep, 0x90)
		case isa.OpRet:
			cb.emit(opRet)
		case isa.OpVecLoad:
			cb.emitRR(prefixOpSize, true, in.Dst, in.Src, opEscape, op2MovqToX)
		case isa.OpVecStore:
			cb.emitRR(prefixOpSize, true, in.Src, in.Dst, opEscape, op2MovqFromX)
		case isa.OpVecBroadcast:
			cb.emitRR(prefixOpSize, false, in.Dst, in.Src, opEscape, op2Punpcklqd)
		case isa.OpAESEnc:
			cb.emitRR(prefixOpSize, false, in.Dst, in.Src, opEscape, 0x38, op3AESEnc)
		case isa.OpVecXor:
			cb.emitRR(prefixOpSize, false, in.Dst, in.Src, opEscape, op2Pxor)
		case isa.OpVecHighToLow:
			cb.emitRR(0, false, in.Dst, in.Src, opEscape, op2Movhlps)
		default:
			return nil, fmt.Errorf("instruction %d: cannot encode %s", i, in.Op)
		}
	}

	for _, f := range fixups {
		target, ok := offsets[f.label]
		if !ok {
			return nil, fmt.Errorf("branch to unbound label L%d", f.label)
		}
		cb.patchI32(f.pos, int32(target-(f.pos+4)))
	}
	return cb.code, nil
}

func checkOperands(in isa.Inst) error {
	for _, r := range []isa.Reg{in.Dst, in.Src} {
		if r != isa.NoReg && !r.Valid() {
			return fmt.Errorf("invalid register %d", uint8(r))
		}
	}
	return nil
}
