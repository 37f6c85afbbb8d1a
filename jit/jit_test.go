package jit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinhngtu/uvtester/abi"
	"github.com/dinhngtu/uvtester/chain"
	"github.com/dinhngtu/uvtester/isa"
	"github.com/dinhngtu/uvtester/kernel"
)

func requireNative(t *testing.T) abi.Target {
	t.Helper()
	if !Supported() {
		t.Skip("native execution not supported on this host")
	}
	return abi.Host()
}

func build(t *testing.T, kind kernel.Kind, depth, pause int, conv abi.CallingConvention) *isa.Program {
	t.Helper()
	k, err := kernel.New(kind, depth, kernel.NewStream(0xabcdef))
	require.NoError(t, err)
	p, err := chain.Assemble(k, pause, conv)
	require.NoError(t, err)
	return p
}

func TestTrampolineArguments(t *testing.T) {
	target := requireNative(t)
	for _, conv := range []abi.CallingConvention{abi.SysV, abi.Win64} {
		t.Run(conv.Name, func(t *testing.T) {
			b := isa.NewBuilder()
			b.Mov(isa.RAX, conv.Args[0])
			b.Mov32(isa.R8, conv.Args[1])
			b.Xor(isa.RAX, isa.R8)
			b.Ret()
			p, err := b.Program("echo")
			require.NoError(t, err)

			target.Convention = conv
			fn, err := NewEmitter().Emit(p, target)
			require.NoError(t, err)
			defer fn.Close()
			assert.Equal(t, int64(0x1234_0000_0000_0000^0xffff_fff0), fn.Call(0x1234_0000_0000_0000, 0xffff_fff0))
		})
	}
}

func TestNativeSelfCheck(t *testing.T) {
	target := requireNative(t)
	for _, conv := range []abi.CallingConvention{abi.SysV, abi.Win64} {
		for _, kind := range kernel.Kinds() {
			if kind == kernel.BlockCipherRound && !target.Features.AESNI {
				continue
			}
			for _, depth := range []int{1, 2, 4} {
				t.Run(fmt.Sprintf("%s/%s/%d", conv.Name, kind, depth), func(t *testing.T) {
					tgt := target
					tgt.Convention = conv
					fn, err := NewEmitter().Emit(build(t, kind, depth, 3, conv), tgt)
					require.NoError(t, err)
					defer fn.Close()

					for _, seed := range []int64{0, 1, 0x12345678, -0x0123456789abcdef} {
						assert.Zero(t, fn.Call(seed, 1000))
					}
					assert.Zero(t, fn.Call(99, 0))
				})
			}
		}
	}
}

func TestConcurrentCalls(t *testing.T) {
	target := requireNative(t)
	fn, err := NewEmitter().Emit(build(t, kernel.RepeatedSquare, 4, 0, target.Convention), target)
	require.NoError(t, err)
	defer fn.Close()

	var wg sync.WaitGroup
	results := make([]int64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				results[i] |= fn.Call(int64(i*1000+j), 1000)
			}
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		assert.Zero(t, r, "worker %d", i)
	}
}

func TestClose(t *testing.T) {
	target := requireNative(t)
	f, err := NewEmitter().Emit(build(t, kernel.TreeMultiply, 3, 0, target.Convention), target)
	require.NoError(t, err)
	fn := f.(*Function)
	assert.NotEmpty(t, fn.Code())
	assert.Equal(t, byte(0xc3), fn.Code()[len(fn.Code())-1])

	require.NoError(t, fn.Close())
	assert.Nil(t, fn.Code())
	assert.NoError(t, fn.Close())
	assert.Panics(t, func() { fn.Call(1, 1) })
}

func TestEmitRejects(t *testing.T) {
	target := requireNative(t)

	arm := target
	arm.Arch = "arm64"
	_, err := NewEmitter().Emit(build(t, kernel.RepeatedSquare, 1, 0, target.Convention), arm)
	assert.Error(t, err)

	noAES := target
	noAES.Features.AESNI = false
	_, err = NewEmitter().Emit(build(t, kernel.BlockCipherRound, 1, 0, target.Convention), noAES)
	assert.ErrorContains(t, err, "AES-NI")

	b := isa.NewBuilder()
	b.Mov(isa.RBX, isa.RDI)
	b.Ret()
	p, err := b.Program("clobbers rbx")
	require.NoError(t, err)
	_, err = NewEmitter().Emit(p, target)
	assert.ErrorContains(t, err, "clobbers rbx")

	odd := target
	odd.Convention = abi.CallingConvention{Name: "odd", Args: []isa.Reg{isa.R8, isa.R9}, Return: isa.RAX}
	_, err = NewEmitter().Emit(build(t, kernel.RepeatedSquare, 1, 0, abi.SysV), odd)
	assert.Error(t, err)
}
