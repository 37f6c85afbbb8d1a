package kernel

import "github.com/dinhngtu/uvtester/isa"

// square is a maximal serial dependency chain through the integer
// multiplier: x = x*x, depth times.
type square struct {
	depth int
}

func (k square) Kind() Kind   { return RepeatedSquare }
func (k square) Depth() int   { return k.depth }
func (k square) Vector() bool { return false }
func (k square) Temps() int   { return 0 }

func (k square) Load(b *isa.Builder, r Registers, seed isa.Reg) {
	b.Mov(r.Value, seed)
}

func (k square) Apply(b *isa.Builder, r Registers) {
	for i := 0; i < k.depth; i++ {
		b.Mul(r.Value, r.Value)
	}
}

// tree computes the same x^(2^depth) as square, but forms two partial
// products side by side before combining them.
type tree struct {
	depth int
}

func (k tree) Kind() Kind   { return TreeMultiply }
func (k tree) Depth() int   { return k.depth }
func (k tree) Vector() bool { return false }

func (k tree) Temps() int {
	switch k.depth {
	case 1:
		return 0
	case 2:
		return 1
	default:
		return 2
	}
}

func (k tree) Load(b *isa.Builder, r Registers, seed isa.Reg) {
	b.Mov(r.Value, seed)
}

func (k tree) Apply(b *isa.Builder, r Registers) {
	x, t1, t2 := r.Value, r.Temp1, r.Temp2
	switch k.depth {
	case 1:
		b.Mul(x, x)
	case 2:
		b.Mov(t1, x)
		b.Mul(t1, x) // t1 = x^2
		b.Mul(x, x)  // x = x^2
		b.Mul(x, t1) // x^4
	case 3:
		b.Mov(t1, x)
		b.Mul(t1, x) // t1 = x^2
		b.Mul(x, x)  // x = x^2
		b.Mov(t2, t1)
		b.Mul(t2, x) // t2 = x^4
		b.Mul(x, t1) // x = x^4
		b.Mul(x, t2) // x^8
	case 4:
		b.Mov(t1, x)
		b.Mul(t1, x) // t1 = x^2
		b.Mul(x, x)  // x = x^2
		b.Mov(t2, t1)
		b.Mul(t2, x) // t2 = x^4
		b.Mul(t1, x) // t1 = x^4
		b.Mov(x, t1)
		b.Mul(x, t2)  // x = x^8
		b.Mul(t1, t2) // t1 = x^8
		b.Mul(x, t1)  // x^16
	}
}

// immediate multiplies by a sequence of random 32-bit immediates drawn
// from the shared stream. Every Apply restarts the stream, so both chains
// of one function see the same immediates.
type immediate struct {
	depth  int
	stream Stream
}

func (k immediate) Kind() Kind   { return RandomImmediateMultiply }
func (k immediate) Depth() int   { return k.depth }
func (k immediate) Vector() bool { return false }
func (k immediate) Temps() int   { return 0 }

func (k immediate) Load(b *isa.Builder, r Registers, seed isa.Reg) {
	b.Mov(r.Value, seed)
}

func (k immediate) Apply(b *isa.Builder, r Registers) {
	seq := k.stream.Sequence()
	for i := 0; i < k.depth; i++ {
		b.MulImm(r.Value, r.Value, seq.Next())
	}
}

// Stream returns the shared immediate stream.
func (k immediate) Stream() Stream {
	return k.stream
}
