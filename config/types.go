// config/types.go
package config

import (
	"sync"
	"time"
)

// Config structure
type Config struct {
	Debug         bool    `json:"debug" yaml:"debug"`
	LogFile       string  `json:"LogFile" yaml:"log_file"`
	Method        string  `json:"Method" yaml:"method" validate:"required,oneof=imul imul_tree imul_imm aesenc square tree imm aes"`
	Depth         int     `json:"Depth" yaml:"depth" validate:"gte=1"`
	Iterations    uint32  `json:"Iterations" yaml:"iterations"`
	PauseDepth    int     `json:"PauseDepth" yaml:"pause_depth" validate:"gte=0,lte=4096"`
	Passes        int64   `json:"Passes" yaml:"passes" validate:"gte=0"`
	Sleep         int     `json:"Sleep" yaml:"sleep" validate:"gte=0"`
	Measure       int     `json:"Measure" yaml:"measure" validate:"gte=0"`
	Stop          bool    `json:"Stop" yaml:"stop"`
	Cores         int     `json:"Cores" yaml:"cores" validate:"gte=0"`
	CPUList       string  `json:"CPUList" yaml:"cpu_list"`
	Duration      string  `json:"Duration" yaml:"duration"`
	Backend       string  `json:"Backend" yaml:"backend" validate:"oneof=native sim"`
	MetricsAddr   string  `json:"MetricsAddr" yaml:"metrics_addr" validate:"omitempty,hostname_port"`
	ImmediateSeed *uint64 `json:"ImmediateSeed,omitempty" yaml:"immediate_seed,omitempty"`
}

// Default returns the settings the tool runs with when nothing is given.
func Default() Config {
	return Config{
		Method:     "imul",
		Depth:      4,
		Iterations: 10,
		Passes:     25000,
		Sleep:      1,
		Backend:    "native",
	}
}

// SleepDuration is the pause between main loops.
func (c Config) SleepDuration() time.Duration {
	return time.Duration(c.Sleep) * time.Millisecond
}

// RunDuration parses Duration; zero means run until interrupted.
func (c Config) RunDuration() (time.Duration, error) {
	if c.Duration == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Duration)
}

// TestResult structure
type TestResult struct {
	CPU string
}

// PerformanceStats tracks overall self-check results
type PerformanceStats struct {
	CPU SelfCheckPerformance
	mu  sync.Mutex
}

// Lock locks the PerformanceStats mutex
func (ps *PerformanceStats) Lock() {
	ps.mu.Lock()
}

// Unlock unlocks the PerformanceStats mutex
func (ps *PerformanceStats) Unlock() {
	ps.mu.Unlock()
}

// SelfCheckPerformance tracks self-check counters
type SelfCheckPerformance struct {
	Method          string
	NumCores        int
	Passes          uint64         // Calls made across all cores
	Iterations      uint64         // Loop iterations executed across all cores
	Divergences     uint64         // Calls that returned nonzero
	CoreDivergences map[int]uint64 // Per-core divergence count
	LastDivergence  map[int]int64  // Per-core last nonzero result
	CorePasses      map[int]uint64 // Per-core call count
	LoopTime        time.Duration  // Total time spent in main loops
	Loops           uint64         // Main loops completed
	CoreLoopTime    map[int]time.Duration
}

// NewPerformanceStats returns stats with initialized per-core maps.
func NewPerformanceStats() *PerformanceStats {
	return &PerformanceStats{CPU: SelfCheckPerformance{
		CoreDivergences: make(map[int]uint64),
		LastDivergence:  make(map[int]int64),
		CorePasses:      make(map[int]uint64),
		CoreLoopTime:    make(map[int]time.Duration),
	}}
}

// initMaps allocates the per-core maps of a zero-value PerformanceStats.
// Callers hold the lock.
func (ps *PerformanceStats) initMaps() {
	if ps.CPU.CoreDivergences == nil {
		ps.CPU.CoreDivergences = make(map[int]uint64)
	}
	if ps.CPU.LastDivergence == nil {
		ps.CPU.LastDivergence = make(map[int]int64)
	}
	if ps.CPU.CorePasses == nil {
		ps.CPU.CorePasses = make(map[int]uint64)
	}
	if ps.CPU.CoreLoopTime == nil {
		ps.CPU.CoreLoopTime = make(map[int]time.Duration)
	}
}

// RecordLoop adds one finished main loop of core.
func (ps *PerformanceStats) RecordLoop(core int, passes, iterations uint64, elapsed time.Duration) {
	ps.Lock()
	defer ps.Unlock()
	ps.initMaps()
	ps.CPU.Passes += passes
	ps.CPU.Iterations += passes * iterations
	ps.CPU.CorePasses[core] += passes
	ps.CPU.LoopTime += elapsed
	ps.CPU.CoreLoopTime[core] += elapsed
	ps.CPU.Loops++
}

// RecordDivergence notes a nonzero result on core.
func (ps *PerformanceStats) RecordDivergence(core int, result int64) {
	ps.Lock()
	defer ps.Unlock()
	ps.initMaps()
	ps.CPU.Divergences++
	ps.CPU.CoreDivergences[core]++
	ps.CPU.LastDivergence[core] = result
}

// Snapshot returns a copy safe to read without the lock.
func (ps *PerformanceStats) Snapshot() SelfCheckPerformance {
	ps.Lock()
	defer ps.Unlock()
	s := ps.CPU
	s.CoreDivergences = copyMap(ps.CPU.CoreDivergences)
	s.LastDivergence = copyMap(ps.CPU.LastDivergence)
	s.CorePasses = copyMap(ps.CPU.CorePasses)
	s.CoreLoopTime = copyMap(ps.CPU.CoreLoopTime)
	return s
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
