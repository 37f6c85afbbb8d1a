package emit

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Line is one decoded instruction.
type Line struct {
	Offset int
	Bytes  []byte
	Op     x86asm.Op
	Text   string
}

func (l Line) String() string {
	return fmt.Sprintf("%04x  %-24s %s", l.Offset, hex.EncodeToString(l.Bytes), l.Text)
}

// Disassemble decodes code as 64-bit x86.
func Disassemble(code []byte) ([]Line, error) {
	var lines []Line
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			return lines, fmt.Errorf("decode at %#x: %w", off, err)
		}
		if inst.Op == 0 {
			return lines, fmt.Errorf("decode at %#x: incomplete instruction % x", off, code[off:off+inst.Len])
		}
		lines = append(lines, Line{
			Offset: off,
			Bytes:  code[off : off+inst.Len],
			Op:     inst.Op,
			Text:   strings.ToLower(x86asm.IntelSyntax(inst, uint64(off), nil)),
		})
		off += inst.Len
	}
	return lines, nil
}

// Listing renders lines one per row.
func Listing(lines []Line) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
