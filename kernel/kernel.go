// Package kernel holds the stress kernels: deterministic, depth-parameterized
// register-to-register transformations that exercise one execution resource
// each. Kernels only build instructions; they never branch or touch memory.
package kernel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dinhngtu/uvtester/isa"
)

// ErrInvalidParameter reports a kernel or pause parameter outside its
// supported range. It is raised before any code is emitted.
var ErrInvalidParameter = errors.New("invalid parameter")

// MaxTreeDepth is the deepest hand-written TreeMultiply pattern.
const MaxTreeDepth = 4

// Kind selects a kernel.
type Kind int

const (
	RepeatedSquare Kind = iota
	TreeMultiply
	RandomImmediateMultiply
	BlockCipherRound
)

var kindNames = map[Kind]string{
	RepeatedSquare:          "imul",
	TreeMultiply:            "imul_tree",
	RandomImmediateMultiply: "imul_imm",
	BlockCipherRound:        "aesenc",
}

// Kinds lists every kernel kind in declaration order.
func Kinds() []Kind {
	return []Kind{RepeatedSquare, TreeMultiply, RandomImmediateMultiply, BlockCipherRound}
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind accepts the command-line method names.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if s == name {
			return k, nil
		}
	}
	switch s {
	case "square", "repeatedsquare":
		return RepeatedSquare, nil
	case "tree", "treemultiply":
		return TreeMultiply, nil
	case "imm", "randomimmediatemultiply":
		return RandomImmediateMultiply, nil
	case "aes", "blockcipherround":
		return BlockCipherRound, nil
	}
	return 0, fmt.Errorf("%w: unknown method %q", ErrInvalidParameter, s)
}

// Registers are the registers one chain may use. Value holds the chain's
// input and result; the temporaries are only touched by kernels that need
// them.
type Registers struct {
	Value isa.Reg
	Temp1 isa.Reg
	Temp2 isa.Reg
}

// Kernel emits one chain's worth of instructions.
type Kernel interface {
	Kind() Kind
	Depth() int
	// Vector reports whether Value must be a 128-bit register.
	Vector() bool
	// Temps is the number of temporaries Apply uses.
	Temps() int
	// Load materializes a fresh copy of seed into r.Value.
	Load(b *isa.Builder, r Registers, seed isa.Reg)
	// Apply transforms r.Value in place.
	Apply(b *isa.Builder, r Registers)
}

// New validates depth and returns the kernel for kind. The stream is only
// used by RandomImmediateMultiply.
func New(kind Kind, depth int, stream Stream) (Kernel, error) {
	if depth < 1 {
		return nil, fmt.Errorf("%w: %s depth must be positive, got %d", ErrInvalidParameter, kind, depth)
	}
	switch kind {
	case RepeatedSquare:
		return square{depth: depth}, nil
	case TreeMultiply:
		if depth > MaxTreeDepth {
			return nil, fmt.Errorf("%w: %s depth must be at most %d, got %d", ErrInvalidParameter, kind, MaxTreeDepth, depth)
		}
		return tree{depth: depth}, nil
	case RandomImmediateMultiply:
		return immediate{depth: depth, stream: stream}, nil
	case BlockCipherRound:
		return aesRound{depth: depth}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kernel kind %d", ErrInvalidParameter, int(kind))
	}
}

// Name describes a kernel for listings and logs.
func Name(k Kernel) string {
	return fmt.Sprintf("%s depth=%d", k.Kind(), k.Depth())
}
