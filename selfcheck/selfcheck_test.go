package selfcheck

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dinhngtu/uvtester/abi"
	"github.com/dinhngtu/uvtester/isa"
	"github.com/dinhngtu/uvtester/jit"
	"github.com/dinhngtu/uvtester/kernel"
	"github.com/dinhngtu/uvtester/sim"
)

func simulated(opts ...sim.Option) Option {
	return WithEmitter(sim.NewEmitter(opts...))
}

func generate(t *testing.T, kind kernel.Kind, depth, pause int, opts ...Option) Function {
	t.Helper()
	fn, err := Generate(kind, depth, pause, append([]Option{simulated()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fn.Close() })
	return fn
}

func TestScenarioSquareSeedZero(t *testing.T) {
	fn := generate(t, kernel.RepeatedSquare, 4, 0)
	assert.Zero(t, fn.Call(0, 1))
}

func TestScenarioSquareMinSeed(t *testing.T) {
	fn := generate(t, kernel.RepeatedSquare, 4, 0)
	assert.Zero(t, fn.Call(math.MinInt64, 1000))
}

func TestScenarioTreeTooDeep(t *testing.T) {
	fn, err := Generate(kernel.TreeMultiply, 5, 0, simulated())
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Nil(t, fn)
}

func TestScenarioCipher(t *testing.T) {
	fn := generate(t, kernel.BlockCipherRound, 10, 8)
	assert.Zero(t, fn.Call(1, 1))
}

func TestScenarioInjectedFault(t *testing.T) {
	fn, err := Generate(kernel.RandomImmediateMultiply, 3, 0,
		simulated(sim.WithFault(sim.Fault{Iteration: 4, Bit: 37})))
	require.NoError(t, err)
	assert.Equal(t, int64(1)<<37, fn.Call(12345, 10))
}

func TestRepeatable(t *testing.T) {
	for _, kind := range kernel.Kinds() {
		fn := generate(t, kind, 3, 1, WithImmediateSeed(7))
		for _, seed := range []int64{0, 1, -1, math.MaxInt64, math.MinInt64} {
			first := fn.Call(seed, 50)
			assert.Zero(t, first, "%s seed %d", kind, seed)
			assert.Equal(t, first, fn.Call(seed, 50))
		}
	}
}

func TestInvalidParameters(t *testing.T) {
	tests := []struct {
		name         string
		kind         kernel.Kind
		depth, pause int
	}{
		{"zero depth", kernel.RepeatedSquare, 0, 0},
		{"negative depth", kernel.BlockCipherRound, -1, 0},
		{"negative depth imm", kernel.RandomImmediateMultiply, -2, 0},
		{"deep tree", kernel.TreeMultiply, 5, 0},
		{"negative pause", kernel.RepeatedSquare, 1, -1},
		{"huge pause", kernel.TreeMultiply, 2, 1 << 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// a failing emitter proves validation runs first
			_, err := Generate(tt.kind, tt.depth, tt.pause, WithEmitter(failingEmitter{}))
			assert.ErrorIs(t, err, ErrInvalidParameter)
			var emitErr *EmissionError
			assert.False(t, errors.As(err, &emitErr))
		})
	}
}

type failingEmitter struct{}

func (failingEmitter) Emit(p *isa.Program, t abi.Target) (abi.Function, error) {
	return nil, errors.New("out of executable memory")
}

func TestEmissionFailure(t *testing.T) {
	fn, err := Generate(kernel.RepeatedSquare, 2, 0, WithEmitter(failingEmitter{}))
	assert.Nil(t, fn)
	var emitErr *EmissionError
	require.ErrorAs(t, err, &emitErr)
	assert.Contains(t, err.Error(), "out of executable memory")
	assert.False(t, errors.Is(err, ErrInvalidParameter))
}

func TestBuildUsesTargetConvention(t *testing.T) {
	p, err := Build(kernel.RepeatedSquare, 2, 0, WithTarget(abi.Target{OS: "windows", Arch: "amd64", Convention: abi.Win64}))
	require.NoError(t, err)
	assert.Zero(t, p.Count(isa.OpMov, isa.SectionEntry))
	assert.Contains(t, p.Name, "win64")

	p, err = Build(kernel.RepeatedSquare, 2, 0, WithTarget(abi.Target{OS: "linux", Arch: "amd64", Convention: abi.SysV}))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Count(isa.OpMov, isa.SectionEntry))
}

func TestImmediateSeedFixesStream(t *testing.T) {
	a, err := Build(kernel.RandomImmediateMultiply, 8, 0, WithImmediateSeed(3))
	require.NoError(t, err)
	b, err := Build(kernel.RandomImmediateMultiply, 8, 0, WithImmediateSeed(3))
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())
}

func TestWithLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	generate(t, kernel.TreeMultiply, 2, 0, WithLogger(zap.New(core)))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "generated self-check program", entry.Message)
	assert.Contains(t, entry.ContextMap()["program"], "imul_tree depth=2")
}

func TestNativeScenarios(t *testing.T) {
	if !jit.Supported() {
		t.Skip("native execution not supported on this host")
	}
	fn, err := Generate(kernel.RepeatedSquare, 4, 0)
	require.NoError(t, err)
	defer fn.Close()
	assert.Zero(t, fn.Call(0, 1))
	assert.Zero(t, fn.Call(math.MinInt64, 1000))

	if !abi.HostFeatures().AESNI {
		return
	}
	aes, err := Generate(kernel.BlockCipherRound, 10, 8)
	require.NoError(t, err)
	defer aes.Close()
	assert.Zero(t, aes.Call(1, 1))
}
