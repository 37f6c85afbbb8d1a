package kernel

import "github.com/dinhngtu/uvtester/isa"

// aesRound runs the seed, broadcast across a 128-bit lane, through depth
// AES encryption rounds keyed by the lane itself. It keeps the crypto unit
// busy instead of the multiplier.
type aesRound struct {
	depth int
}

func (k aesRound) Kind() Kind   { return BlockCipherRound }
func (k aesRound) Depth() int   { return k.depth }
func (k aesRound) Vector() bool { return true }
func (k aesRound) Temps() int   { return 0 }

func (k aesRound) Load(b *isa.Builder, r Registers, seed isa.Reg) {
	b.VecLoad(r.Value, seed)
	b.VecBroadcast(r.Value, r.Value)
}

func (k aesRound) Apply(b *isa.Builder, r Registers) {
	for i := 0; i < k.depth; i++ {
		b.AESEnc(r.Value, r.Value)
	}
}
