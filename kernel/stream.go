package kernel

import "math/rand/v2"

// streamIncrement is the fixed PCG stream selector; the seed picks the
// position.
const streamIncrement = 0x9e3779b97f4a7c15

// Stream is a seeded source of multiplication immediates. It carries no
// mutable state: every Sequence restarts from the same seed.
type Stream struct {
	seed uint64
}

// NewStream returns the stream identified by seed.
func NewStream(seed uint64) Stream {
	return Stream{seed: seed}
}

// Seed returns the value the stream restarts from.
func (s Stream) Seed() uint64 {
	return s.seed
}

// Sequence returns a fresh reader positioned at the start of the stream.
func (s Stream) Sequence() *Sequence {
	return &Sequence{r: rand.New(rand.NewPCG(s.seed, streamIncrement))}
}

// Immediates draws the first n immediates of the stream.
func (s Stream) Immediates(n int) []int32 {
	seq := s.Sequence()
	out := make([]int32, n)
	for i := range out {
		out[i] = seq.Next()
	}
	return out
}

// Sequence reads immediates from a Stream.
type Sequence struct {
	r *rand.Rand
}

// Next draws uniformly from the signed 32-bit range, redrawing -1, 0 and 1:
// those would leave the chain unchanged, negated or zeroed.
func (q *Sequence) Next() int32 {
	for {
		v := int32(q.r.Uint32())
		if v < -1 || v > 1 {
			return v
		}
	}
}
