package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinhngtu/uvtester/isa"
)

func TestConventionFor(t *testing.T) {
	assert.Equal(t, "win64", ConventionFor("windows").Name)
	assert.Equal(t, "sysv", ConventionFor("linux").Name)
	assert.Equal(t, "sysv", ConventionFor("darwin").Name)
}

func TestLookupConvention(t *testing.T) {
	c, err := LookupConvention("win64")
	require.NoError(t, err)
	assert.Equal(t, []isa.Reg{isa.RCX, isa.RDX, isa.R8, isa.R9}, c.Args)

	_, err = LookupConvention("fastcall")
	assert.Error(t, err)
}

func TestVolatileSets(t *testing.T) {
	for _, c := range []CallingConvention{SysV, Win64} {
		t.Run(c.Name, func(t *testing.T) {
			// every argument register and the return register are scratch
			for _, r := range c.Args {
				assert.True(t, c.IsVolatile(r), "arg %s", r)
			}
			assert.True(t, c.IsVolatile(c.Return))
			for _, r := range []isa.Reg{isa.RBX, isa.RBP, isa.RSP, isa.R12, isa.R13, isa.R14, isa.R15} {
				assert.False(t, c.IsVolatile(r), "callee-saved %s", r)
			}
		})
	}
	assert.True(t, SysV.IsVolatile(isa.RSI))
	assert.False(t, Win64.IsVolatile(isa.RSI))
	assert.False(t, Win64.IsVolatile(isa.X6))
}

func TestFeaturesString(t *testing.T) {
	assert.Equal(t, "baseline", Features{}.String())
	assert.Equal(t, "sse2,aes", Features{SSE2: true, AESNI: true}.String())
}

func TestHost(t *testing.T) {
	h := Host()
	assert.NotEmpty(t, h.OS)
	assert.NotEmpty(t, h.Arch)
	assert.Contains(t, h.String(), h.Convention.Name)
}
