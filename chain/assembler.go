// Package chain stitches two instances of a stress kernel into one
// self-checking loop:
//
//	seed, count <- arguments
//	acc = 0
//	if count == 0 goto done
//	loop:
//	    A = kernel(seed)
//	    B = kernel(seed)
//	    acc |= A ^ B
//	    if --count != 0 goto loop
//	done:
//	    pause * pauseDepth
//	    return acc
//
// The result is zero unless the two chains ever disagreed.
package chain

import (
	"fmt"

	"github.com/dinhngtu/uvtester/abi"
	"github.com/dinhngtu/uvtester/isa"
	"github.com/dinhngtu/uvtester/kernel"
)

// MaxPauseDepth bounds the pause instructions appended after the loop.
const MaxPauseDepth = 4096

// ValidatePause checks a pause depth against [0, MaxPauseDepth].
func ValidatePause(pauseDepth int) error {
	if pauseDepth < 0 || pauseDepth > MaxPauseDepth {
		return fmt.Errorf("%w: pause depth must be in [0, %d], got %d", kernel.ErrInvalidParameter, MaxPauseDepth, pauseDepth)
	}
	return nil
}

// Assemble builds the self-check function for k under conv. The returned
// program takes (seed int64, iterations uint32) in the convention's first
// two argument registers and returns the divergence accumulator.
func Assemble(k kernel.Kernel, pauseDepth int, conv abi.CallingConvention) (*isa.Program, error) {
	if err := ValidatePause(pauseDepth); err != nil {
		return nil, err
	}
	if len(conv.Args) < 2 {
		return nil, fmt.Errorf("%w: %s convention passes fewer than two arguments in registers", kernel.ErrInvalidParameter, conv.Name)
	}
	alloc, err := Allocate(conv, k)
	if err != nil {
		return nil, err
	}

	seed := alloc.Reg(RoleSeed)
	count := alloc.Reg(RoleCount)
	acc := alloc.Reg(RoleAccumulator)
	regsA := alloc.Chain(k, false)
	regsB := alloc.Chain(k, true)

	b := isa.NewBuilder()
	loop := b.NewLabel()
	done := b.NewLabel()

	b.SetSection(isa.SectionEntry)
	if err := normalizeArgs(b, []move{
		{dst: seed, src: conv.Args[0]},
		{dst: count, src: conv.Args[1], narrow: true},
	}); err != nil {
		return nil, fmt.Errorf("%w: %s convention: %v", kernel.ErrInvalidParameter, conv.Name, err)
	}
	b.Zero(acc)
	b.Test32(count, count)
	b.Jz(done)

	b.SetSection(isa.SectionLoop)
	b.Bind(loop)

	b.SetSection(isa.SectionChainA)
	k.Load(b, regsA, seed)
	k.Apply(b, regsA)

	b.SetSection(isa.SectionChainB)
	k.Load(b, regsB, seed)
	k.Apply(b, regsB)

	b.SetSection(isa.SectionCompare)
	if k.Vector() {
		lo, hi := alloc.Reg(RoleChainA), alloc.Reg(RoleChainB)
		b.VecXor(regsA.Value, regsB.Value)
		b.VecStore(lo, regsA.Value)
		b.VecHighToLow(regsB.Value, regsA.Value)
		b.VecStore(hi, regsB.Value)
		b.Or(lo, hi)
		b.Or(acc, lo)
	} else {
		b.Xor(regsA.Value, regsB.Value)
		b.Or(acc, regsA.Value)
	}

	b.SetSection(isa.SectionLoop)
	b.Dec32(count)
	b.Jnz(loop)

	b.SetSection(isa.SectionExit)
	b.Bind(done)
	for i := 0; i < pauseDepth; i++ {
		b.Pause()
	}
	if acc != conv.Return {
		b.Mov(conv.Return, acc)
	}
	b.Ret()

	p, err := b.Program(fmt.Sprintf("%s pause=%d %s [%s]", describe(k), pauseDepth, conv.Name, alloc))
	if err != nil {
		return nil, err
	}
	p.ResultA = regsA.Value
	p.ResultB = regsB.Value
	return p, nil
}

func describe(k kernel.Kernel) string {
	if s, ok := k.(interface{ Stream() kernel.Stream }); ok {
		return fmt.Sprintf("%s stream=%#x", kernel.Name(k), s.Stream().Seed())
	}
	return kernel.Name(k)
}

type move struct {
	dst, src isa.Reg
	narrow   bool
}

// normalizeArgs copies argument registers into working registers as a
// parallel move: a move is emitted only once no other pending move still
// reads its destination. Moves onto themselves are dropped.
func normalizeArgs(b *isa.Builder, moves []move) error {
	var pending []move
	for _, m := range moves {
		if m.dst != m.src {
			pending = append(pending, m)
		}
	}
	for len(pending) > 0 {
		progressed := false
		for i, m := range pending {
			blocked := false
			for j, other := range pending {
				if j != i && other.src == m.dst {
					blocked = true
					break
				}
			}
			if blocked {
				continue
			}
			if m.narrow {
				b.Mov32(m.dst, m.src)
			} else {
				b.Mov(m.dst, m.src)
			}
			pending = append(pending[:i], pending[i+1:]...)
			progressed = true
			break
		}
		if !progressed {
			return fmt.Errorf("argument registers form a cycle")
		}
	}
	return nil
}
