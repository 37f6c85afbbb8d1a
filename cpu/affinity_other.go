//go:build !linux

package cpu

import (
	"fmt"
	"runtime"

	"github.com/dinhngtu/uvtester/utils"
)

// pinToCPU locks the goroutine to its OS thread. Thread affinity is not
// available on this platform.
func pinToCPU(cpuID int, debug bool) (unpin func()) {
	runtime.LockOSThread()
	if debug {
		utils.LogMessage(fmt.Sprintf("CPU affinity not supported on %s, worker %d runs unpinned", runtime.GOOS, cpuID), debug)
	}
	return runtime.UnlockOSThread
}
