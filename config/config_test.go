package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinhngtu/uvtester/kernel"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, time.Millisecond, c.SleepDuration())
	kind, err := c.Kind()
	require.NoError(t, err)
	assert.Equal(t, kernel.RepeatedSquare, kind)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"debug": true, "Method": "aesenc", "Depth": 10, "PauseDepth": 8, "Stop": true, "Duration": "30s"}`)
	c, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.True(t, c.Debug)
	assert.Equal(t, "aesenc", c.Method)
	assert.Equal(t, 10, c.Depth)
	assert.Equal(t, 8, c.PauseDepth)
	assert.True(t, c.Stop)
	// untouched fields keep their defaults
	assert.Equal(t, int64(25000), c.Passes)
	assert.Equal(t, uint32(10), c.Iterations)
	d, err := c.RunDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
method: imul_imm
depth: 6
iterations: 100
passes: 10
sleep: 0
cpu_list: "0-3"
backend: sim
metrics_addr: "localhost:9090"
immediate_seed: 42
`)
	c, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, "imul_imm", c.Method)
	assert.Equal(t, uint32(100), c.Iterations)
	assert.Equal(t, int64(10), c.Passes)
	assert.Zero(t, c.Sleep)
	assert.Equal(t, "0-3", c.CPUList)
	assert.Equal(t, "sim", c.Backend)
	require.NotNil(t, c.ImmediateSeed)
	assert.Equal(t, uint64(42), *c.ImmediateSeed)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "bad.json", `{"Depth": "four"}`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"unknown method", func(c *Config) { c.Method = "fma" }},
		{"zero depth", func(c *Config) { c.Depth = 0 }},
		{"deep tree", func(c *Config) { c.Method = "imul_tree"; c.Depth = 5 }},
		{"negative pause", func(c *Config) { c.PauseDepth = -1 }},
		{"negative passes", func(c *Config) { c.Passes = -1 }},
		{"negative sleep", func(c *Config) { c.Sleep = -1 }},
		{"negative measure", func(c *Config) { c.Measure = -1 }},
		{"bad backend", func(c *Config) { c.Backend = "gpu" }},
		{"bad duration", func(c *Config) { c.Duration = "forever" }},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "nope" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestPerformanceStats(t *testing.T) {
	ps := NewPerformanceStats()
	var wg sync.WaitGroup
	for core := 0; core < 4; core++ {
		wg.Add(1)
		go func(core int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ps.RecordLoop(core, 100, 10, time.Millisecond)
			}
			if core == 2 {
				ps.RecordDivergence(core, 1<<5)
			}
		}(core)
	}
	wg.Wait()

	s := ps.Snapshot()
	assert.Equal(t, uint64(4000), s.Passes)
	assert.Equal(t, uint64(40000), s.Iterations)
	assert.Equal(t, uint64(40), s.Loops)
	assert.Equal(t, uint64(1), s.Divergences)
	assert.Equal(t, map[int]uint64{2: 1}, s.CoreDivergences)
	assert.Equal(t, int64(32), s.LastDivergence[2])
	assert.Equal(t, 10*time.Millisecond, s.CoreLoopTime[3])

	// snapshot maps are detached
	s.CorePasses[0] = 0
	assert.Equal(t, uint64(1000), ps.Snapshot().CorePasses[0])
}

func TestZeroValuePerformanceStats(t *testing.T) {
	var ps PerformanceStats
	ps.RecordLoop(3, 10, 4, time.Millisecond)
	ps.RecordDivergence(3, 1<<7)

	s := ps.Snapshot()
	assert.Equal(t, uint64(10), s.CorePasses[3])
	assert.Equal(t, uint64(40), s.Iterations)
	assert.Equal(t, uint64(1), s.CoreDivergences[3])
	assert.Equal(t, int64(1<<7), s.LastDivergence[3])
	assert.Equal(t, time.Millisecond, s.CoreLoopTime[3])
}
