package systeminfo

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
	gcpu "github.com/shirou/gopsutil/v4/cpu"
	gmem "github.com/shirou/gopsutil/v4/mem"

	"github.com/dinhngtu/uvtester/abi"
	"github.com/dinhngtu/uvtester/jit"
	"github.com/dinhngtu/uvtester/utils"
)

// SystemInfo holds the host facts relevant to a self-check run.
type SystemInfo struct {
	CPUInfo    string
	ISAInfo    string
	CacheInfo  string
	MemoryInfo string
	NUMAInfo   string
	ExecInfo   string
}

// GetSystemInfo collects host information.
func GetSystemInfo() SystemInfo {
	var info SystemInfo

	// CPU information
	cpuInfo, err := gcpu.Info()
	if err != nil || len(cpuInfo) == 0 {
		info.CPUInfo = fmt.Sprintf("CPU Info: Model: %s (gopsutil unavailable), Logical cores: %d",
			cpuid.CPU.BrandName, cpuid.CPU.LogicalCores)
	} else {
		physical, _ := gcpu.Counts(false)
		logical, _ := gcpu.Counts(true)
		info.CPUInfo = fmt.Sprintf("CPU Info: Model: %s, Cores: %d physical / %d logical, Frequency: %.2f MHz",
			cpuInfo[0].ModelName, physical, logical, cpuInfo[0].Mhz)
		if cpuInfo[0].Microcode != "" {
			info.CPUInfo += fmt.Sprintf(", Microcode: %s", cpuInfo[0].Microcode)
		}
	}

	info.ISAInfo = formatISA(cpuid.CPU.VendorString, cpuid.CPU.Family, cpuid.CPU.Model, cpuid.CPU.Stepping, abi.HostFeatures(), cpuid.CPU.Supports(cpuid.AVX2))

	cacheInfo, err := utils.GetCacheInfo()
	if err != nil || cacheInfo == (utils.CacheInfo{}) {
		cacheInfo = utils.CacheInfo{
			L1Size: int64(cpuid.CPU.Cache.L1D),
			L2Size: int64(cpuid.CPU.Cache.L2),
			L3Size: int64(cpuid.CPU.Cache.L3),
		}
	}
	info.CacheInfo = formatCache(cacheInfo)

	// Memory information
	vm, err := gmem.VirtualMemory()
	if err != nil {
		info.MemoryInfo = "Memory Info: Unable to retrieve memory information"
	} else {
		info.MemoryInfo = fmt.Sprintf("Memory Info: Total: %s, Available: %s",
			utils.FormatSize(int64(vm.Total)), utils.FormatSize(int64(vm.Available)))
	}

	// NUMA information
	numaInfo, err := utils.GetNUMAInfo()
	if err != nil {
		info.NUMAInfo = fmt.Sprintf("NUMA Info: Failed to retrieve NUMA information: %v", err)
	} else {
		info.NUMAInfo = formatNUMA(numaInfo, runtime.NumCPU())
	}

	host := abi.Host()
	info.ExecInfo = fmt.Sprintf("Execution: %s, native backend: %v", host, jit.Supported())

	return info
}

func formatISA(vendor string, family, model, stepping int, f abi.Features, avx2 bool) string {
	return fmt.Sprintf("ISA Info: Vendor: %s, Family: %d, Model: %d, Stepping: %d, SSE2: %v, AES-NI: %v, AVX2: %v",
		vendor, family, model, stepping, f.SSE2, f.AESNI, avx2)
}

func formatCache(c utils.CacheInfo) string {
	s := fmt.Sprintf("Cache Info: L1d: %s, L2: %s", utils.FormatSize(c.L1Size), utils.FormatSize(c.L2Size))
	if c.L3Size > 0 {
		return s + fmt.Sprintf(", L3: %s", utils.FormatSize(c.L3Size))
	}
	return s + ", L3: Not present"
}

func formatNUMA(n utils.NUMAInfo, totalCPUs int) string {
	var numaDetails []string
	numaDetails = append(numaDetails, fmt.Sprintf("NUMA Nodes: %d", n.NumNodes))
	for i, cpus := range n.NodeCPUs {
		if len(cpus) > 0 {
			numaDetails = append(numaDetails, fmt.Sprintf("Node %d CPUs: %v", i, cpus))
		}
	}
	numaDetails = append(numaDetails, fmt.Sprintf("Total CPU cores: %d", totalCPUs))
	return strings.Join(numaDetails, "\n")
}

// PrintSystemInfo writes the system information to w.
func PrintSystemInfo(w io.Writer, info SystemInfo) {
	fmt.Fprintln(w, "=== System Information ===")
	fmt.Fprintln(w, info.CPUInfo)
	fmt.Fprintln(w, info.ISAInfo)
	fmt.Fprintln(w, info.CacheInfo)
	fmt.Fprintln(w, info.MemoryInfo)
	fmt.Fprintln(w, info.NUMAInfo)
	fmt.Fprintln(w, info.ExecInfo)
}
