package cpu

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/dinhngtu/uvtester/utils"
)

// pinToCPU locks the goroutine to its OS thread and binds the thread to
// cpuID. Failure to set affinity is logged, not fatal. The returned func
// restores the thread's previous affinity and unlocks it; if the mask
// cannot be restored the thread stays locked so the runtime discards it
// when the goroutine exits.
func pinToCPU(cpuID int, debug bool) (unpin func()) {
	runtime.LockOSThread()

	var original unix.CPUSet
	if err := unix.SchedGetaffinity(0, &original); err != nil {
		utils.LogMessage(fmt.Sprintf("Failed to get CPU affinity before pinning CPU %d: %v", cpuID, err), debug)
		return func() {}
	}

	cpuset := unix.CPUSet{}
	cpuset.Set(cpuID)
	err := unix.SchedSetaffinity(0, &cpuset)
	if err != nil {
		utils.LogMessage(fmt.Sprintf("Failed to set CPU affinity for CPU %d: %v (may require root privileges)", cpuID, err), true)
	} else if debug {
		utils.LogMessage(fmt.Sprintf("Successfully set CPU affinity for CPU %d", cpuID), debug)
	}

	if debug {
		var actualSet unix.CPUSet
		if err := unix.SchedGetaffinity(0, &actualSet); err != nil {
			utils.LogMessage(fmt.Sprintf("Failed to get CPU affinity for CPU %d: %v", cpuID, err), debug)
		} else {
			utils.LogMessage(fmt.Sprintf("Actual CPU affinity for CPU %d: %v", cpuID, actualSet), debug)
		}
	}

	return func() {
		if err := unix.SchedSetaffinity(0, &original); err != nil {
			utils.LogMessage(fmt.Sprintf("Failed to restore CPU affinity after CPU %d: %v", cpuID, err), debug)
			return
		}
		runtime.UnlockOSThread()
	}
}
