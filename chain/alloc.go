package chain

import (
	"fmt"

	"github.com/dinhngtu/uvtester/abi"
	"github.com/dinhngtu/uvtester/isa"
	"github.com/dinhngtu/uvtester/kernel"
)

// Role is a piece of working state the assembler needs a register for.
type Role int

const (
	RoleSeed Role = iota
	RoleCount
	RoleAccumulator
	RoleChainA
	RoleChainB
	RoleTemp1
	RoleTemp2
	RoleVectorA
	RoleVectorB
	numRoles
)

var roleNames = [numRoles]string{"seed", "count", "accumulator", "chain-a", "chain-b", "temp-1", "temp-2", "vector-a", "vector-b"}

func (r Role) String() string {
	if r >= 0 && r < numRoles {
		return roleNames[r]
	}
	return fmt.Sprintf("role(%d)", int(r))
}

func (r Role) vector() bool {
	return r == RoleVectorA || r == RoleVectorB
}

// preferred registers per role. All of them are call-clobbered under both
// SysV and Win64; the accumulator additionally prefers the return register.
var preferred = [numRoles]isa.Reg{
	RoleSeed:        isa.RCX,
	RoleCount:       isa.RDX,
	RoleAccumulator: isa.RAX,
	RoleChainA:      isa.R8,
	RoleChainB:      isa.R9,
	RoleTemp1:       isa.R10,
	RoleTemp2:       isa.R11,
	RoleVectorA:     isa.X0,
	RoleVectorB:     isa.X1,
}

// Allocation maps roles to physical registers for one generation call.
type Allocation struct {
	conv abi.CallingConvention
	regs [numRoles]isa.Reg
}

// Reg returns the register assigned to role, or isa.NoReg.
func (a Allocation) Reg(role Role) isa.Reg {
	return a.regs[role]
}

// Chain returns the registers chain A (b == false) or chain B uses.
func (a Allocation) Chain(k kernel.Kernel, b bool) kernel.Registers {
	value := a.regs[RoleChainA]
	if k.Vector() {
		value = a.regs[RoleVectorA]
	}
	if b {
		value = a.regs[RoleChainB]
		if k.Vector() {
			value = a.regs[RoleVectorB]
		}
	}
	return kernel.Registers{Value: value, Temp1: a.regs[RoleTemp1], Temp2: a.regs[RoleTemp2]}
}

// Allocate assigns registers to the roles k needs. Every register comes from
// the convention's volatile set so the generated function never has to
// save anything.
func Allocate(conv abi.CallingConvention, k kernel.Kernel) (Allocation, error) {
	a := Allocation{conv: conv}
	for i := range a.regs {
		a.regs[i] = isa.NoReg
	}
	roles := []Role{RoleAccumulator, RoleSeed, RoleCount, RoleChainA, RoleChainB}
	if k.Temps() >= 1 {
		roles = append(roles, RoleTemp1)
	}
	if k.Temps() >= 2 {
		roles = append(roles, RoleTemp2)
	}
	if k.Vector() {
		roles = append(roles, RoleVectorA, RoleVectorB)
	}

	taken := make(map[isa.Reg]bool)
	for _, role := range roles {
		want := preferred[role]
		if role == RoleAccumulator {
			want = conv.Return
		}
		if !conv.IsVolatile(want) || taken[want] {
			want = isa.NoReg
			for _, r := range conv.Volatile {
				if !taken[r] && r.IsVector() == role.vector() {
					want = r
					break
				}
			}
		}
		if want == isa.NoReg {
			return Allocation{}, fmt.Errorf("%w: %s convention has no free register for %s", kernel.ErrInvalidParameter, conv.Name, role)
		}
		a.regs[role] = want
		taken[want] = true
	}
	if err := a.Verify(); err != nil {
		return Allocation{}, err
	}
	return a, nil
}

// Verify checks the allocation invariants: assigned roles use distinct,
// call-clobbered registers of the right class, and the two chains never
// share a register.
func (a Allocation) Verify() error {
	seen := make(map[isa.Reg]Role)
	for role := Role(0); role < numRoles; role++ {
		r := a.regs[role]
		if r == isa.NoReg {
			continue
		}
		if r.IsVector() != role.vector() {
			return fmt.Errorf("register %s has the wrong class for %s", r, role)
		}
		if !a.conv.IsVolatile(r) {
			return fmt.Errorf("register %s for %s is callee-saved under %s", r, role, a.conv.Name)
		}
		if other, dup := seen[r]; dup {
			return fmt.Errorf("register %s assigned to both %s and %s", r, other, role)
		}
		seen[r] = role
	}
	if a.regs[RoleChainA] == isa.NoReg || a.regs[RoleChainB] == isa.NoReg {
		return fmt.Errorf("chain registers unassigned")
	}
	return nil
}

// String lists the assignment, e.g. "seed=rcx count=rdx ...".
func (a Allocation) String() string {
	s := ""
	for role := Role(0); role < numRoles; role++ {
		if a.regs[role] == isa.NoReg {
			continue
		}
		if s != "" {
			s += " "
		}
		s += fmt.Sprintf("%s=%s", role, a.regs[role])
	}
	return s
}
