package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinhngtu/uvtester/isa"
)

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"imul":      RepeatedSquare,
		"square":    RepeatedSquare,
		"imul_tree": TreeMultiply,
		" Tree ":    TreeMultiply,
		"imul_imm":  RandomImmediateMultiply,
		"aesenc":    BlockCipherRound,
		"AES":       BlockCipherRound,
	}
	for in, want := range tests {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseKind("fma")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
}

func TestNewValidatesDepth(t *testing.T) {
	for _, k := range Kinds() {
		for _, depth := range []int{0, -3} {
			_, err := New(k, depth, NewStream(1))
			assert.ErrorIs(t, err, ErrInvalidParameter, "%s depth %d", k, depth)
		}
	}
	_, err := New(TreeMultiply, MaxTreeDepth+1, NewStream(1))
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = New(Kind(42), 1, NewStream(1))
	assert.ErrorIs(t, err, ErrInvalidParameter)

	k, err := New(RepeatedSquare, 1000, NewStream(1))
	require.NoError(t, err)
	assert.Equal(t, "imul depth=1000", Name(k))
}

func TestTreeTemps(t *testing.T) {
	for depth, want := range map[int]int{1: 0, 2: 1, 3: 2, 4: 2} {
		k, err := New(TreeMultiply, depth, NewStream(0))
		require.NoError(t, err)
		assert.Equal(t, want, k.Temps(), "depth %d", depth)

		b := isa.NewBuilder()
		k.Apply(b, Registers{Value: isa.R8, Temp1: isa.R10, Temp2: isa.R11})
		b.Ret()
		p, err := b.Program("tree")
		require.NoError(t, err)
		for _, in := range p.Insts {
			if want < 2 {
				assert.NotEqual(t, isa.R11, in.Dst)
			}
			if want < 1 {
				assert.NotEqual(t, isa.R10, in.Dst)
			}
		}
	}
}

func TestStreamRestarts(t *testing.T) {
	s := NewStream(12345)
	first := s.Immediates(1000)
	assert.Equal(t, first, s.Immediates(1000))
	assert.Equal(t, uint64(12345), s.Seed())
	for _, v := range first {
		assert.False(t, v >= -1 && v <= 1, "immediate %d", v)
	}
	assert.NotEqual(t, first, NewStream(12346).Immediates(1000))
}

func TestBlockCipherRoundIsVector(t *testing.T) {
	k, err := New(BlockCipherRound, 3, NewStream(0))
	require.NoError(t, err)
	assert.True(t, k.Vector())

	b := isa.NewBuilder()
	k.Load(b, Registers{Value: isa.X0}, isa.RCX)
	k.Apply(b, Registers{Value: isa.X0})
	b.Ret()
	p, err := b.Program("aes")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Count(isa.OpAESEnc, isa.SectionEntry))
	assert.True(t, p.Uses(isa.OpVecBroadcast))
}
