package cpu

import "time"

// CPUConfig holds configuration for the self-check stress run
type CPUConfig struct {
	CPUList       []int         // CPUs to run a worker on
	Debug         bool          // Log per-worker details
	Passes        int64         // Calls per main loop
	Iterations    uint32        // Loop iterations per call
	Sleep         time.Duration // Pause between main loops
	Measure       int           // Report timing every Measure main loops; 0 disables
	StopOnFailure bool          // End the run on the first nonzero result
	MaxLoops      int           // Main loops per worker; 0 runs until cancelled
	SeedBase      int64         // Seeds worker RNGs; 0 picks one from the clock
}

// CPUResult holds the results of a self-check run
type CPUResult struct {
	RunID       string
	NumCores    int
	Passes      uint64
	Divergences uint64
	Elapsed     time.Duration
}
