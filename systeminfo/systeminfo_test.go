package systeminfo

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dinhngtu/uvtester/abi"
	"github.com/dinhngtu/uvtester/utils"
)

func TestFormatNUMA(t *testing.T) {
	got := formatNUMA(utils.NUMAInfo{NumNodes: 2, NodeCPUs: [][]int{{0, 1}, {}, {4, 5}}}, 6)
	assert.Equal(t, "NUMA Nodes: 2\nNode 0 CPUs: [0 1]\nNode 2 CPUs: [4 5]\nTotal CPU cores: 6", got)
}

func TestFormatCache(t *testing.T) {
	assert.Equal(t, "Cache Info: L1d: 48.00KB, L2: 2.00MB, L3: 32.00MB",
		formatCache(utils.CacheInfo{L1Size: 48 << 10, L2Size: 2 << 20, L3Size: 32 << 20}))
	assert.Equal(t, "Cache Info: L1d: 32.00KB, L2: 256.00KB, L3: Not present",
		formatCache(utils.CacheInfo{L1Size: 32 << 10, L2Size: 256 << 10}))
}

func TestFormatISA(t *testing.T) {
	got := formatISA("GenuineIntel", 6, 85, 7, abi.Features{SSE2: true}, false)
	assert.Equal(t, "ISA Info: Vendor: GenuineIntel, Family: 6, Model: 85, Stepping: 7, SSE2: true, AES-NI: false, AVX2: false", got)
}

func TestGetAndPrintSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	var buf bytes.Buffer
	PrintSystemInfo(&buf, info)
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "=== System Information ===\n"))
	assert.Contains(t, out, "CPU Info:")
	assert.Contains(t, out, "NUMA Nodes:")
	assert.Contains(t, out, "Execution: ")
}
