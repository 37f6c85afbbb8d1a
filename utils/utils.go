package utils

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerMu sync.RWMutex
	logger   = zap.NewNop()
)

// InitLogger builds the process logger. Every message goes to logFile;
// console output gets info and above, or everything when debug is set. An
// empty logFile logs to the console only.
func InitLogger(debug bool, logFile string) error {
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "msg",
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " | ",
	}
	consoleLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		consoleLevel.SetLevel(zapcore.DebugLevel)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), consoleLevel),
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open %s: %w", logFile, err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel))
	}

	SetLogger(zap.New(zapcore.NewTee(cores...)))
	return nil
}

// SetLogger replaces the process logger.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// Logger returns the process logger.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SyncLogger flushes buffered log entries.
func SyncLogger() {
	_ = Logger().Sync()
}

// LogMessage logs at info level, or at debug level when debug is set so
// the message only reaches the console in debug mode.
func LogMessage(message string, debug bool) {
	if debug {
		Logger().Debug(message)
		return
	}
	Logger().Info(message)
}

// FormatSize converts bytes to human-readable string (KB, MB, GB)
func FormatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	if size >= GB {
		return fmt.Sprintf("%.2fGB", float64(size)/float64(GB))
	}
	if size >= MB {
		return fmt.Sprintf("%.2fMB", float64(size)/float64(MB))
	}
	if size >= KB {
		return fmt.Sprintf("%.2fKB", float64(size)/float64(KB))
	}

	return fmt.Sprintf("%dB", size)
}

// FormatCount abbreviates large counts (K, M, G)
func FormatCount(count uint64) string {
	switch {
	case count >= 1_000_000_000:
		return fmt.Sprintf("%.2fG", float64(count)/1_000_000_000)
	case count >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(count)/1_000_000)
	case count >= 1_000:
		return fmt.Sprintf("%.2fK", float64(count)/1_000)
	default:
		return fmt.Sprintf("%d", count)
	}
}

// ParseCPUList parses a kernel cpulist string such as "0-3,8,10-11".
func ParseCPUList(list string) ([]int, error) {
	cpus := make([]int, 0)
	list = strings.TrimSpace(list)
	if list == "" {
		return cpus, nil
	}
	seen := make(map[int]bool)
	for _, segment := range strings.Split(list, ",") {
		segment = strings.TrimSpace(segment)
		start, end := segment, segment
		if strings.Contains(segment, "-") {
			parts := strings.Split(segment, "-")
			if len(parts) != 2 {
				return nil, fmt.Errorf("invalid cpu range %q", segment)
			}
			start, end = parts[0], parts[1]
		}
		lo, err := strconv.Atoi(start)
		if err != nil {
			return nil, fmt.Errorf("invalid cpu %q: %v", segment, err)
		}
		hi, err := strconv.Atoi(end)
		if err != nil {
			return nil, fmt.Errorf("invalid cpu %q: %v", segment, err)
		}
		if lo < 0 || hi < lo {
			return nil, fmt.Errorf("invalid cpu range %q", segment)
		}
		for i := lo; i <= hi; i++ {
			if !seen[i] {
				seen[i] = true
				cpus = append(cpus, i)
			}
		}
	}
	sort.Ints(cpus)
	return cpus, nil
}

// SelectCPUs picks the CPUs to test: the explicit list if given, otherwise
// the first cores CPUs, otherwise all of them.
func SelectCPUs(cores int, list string) ([]int, error) {
	if list != "" {
		cpus, err := ParseCPUList(list)
		if err != nil {
			return nil, err
		}
		for _, c := range cpus {
			if c >= runtime.NumCPU() {
				return nil, fmt.Errorf("cpu %d out of range (host has %d)", c, runtime.NumCPU())
			}
		}
		return cpus, nil
	}
	n := runtime.NumCPU()
	if cores > 0 && cores < n {
		n = cores
	}
	cpus := make([]int, n)
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}

// NUMAInfo holds information about NUMA nodes
type NUMAInfo struct {
	NumNodes int
	NodeCPUs [][]int
}

// GetNUMAInfo retrieves NUMA node information (Linux-specific)
func GetNUMAInfo() (NUMAInfo, error) {
	return getNUMAInfo("/sys/devices/system/node")
}

func getNUMAInfo(nodeDir string) (NUMAInfo, error) {
	info := NUMAInfo{
		NumNodes: 1,
		NodeCPUs: make([][]int, 0),
	}

	if _, err := os.Stat(nodeDir); os.IsNotExist(err) {
		cpus := make([]int, runtime.NumCPU())
		for i := 0; i < runtime.NumCPU(); i++ {
			cpus[i] = i
		}
		info.NodeCPUs = append(info.NodeCPUs, cpus)
		return info, nil
	}

	files, err := os.ReadDir(nodeDir)
	if err != nil {
		return info, err
	}

	for _, file := range files {
		if !file.IsDir() || !strings.HasPrefix(file.Name(), "node") {
			continue
		}

		nodeID, err := strconv.Atoi(strings.TrimPrefix(file.Name(), "node"))
		if err != nil {
			continue
		}

		if nodeID >= len(info.NodeCPUs) {
			info.NodeCPUs = append(info.NodeCPUs, make([][]int, nodeID+1-len(info.NodeCPUs))...)
		}

		cpuList, err := os.ReadFile(filepath.Join(nodeDir, file.Name(), "cpulist"))
		if err != nil {
			continue
		}
		cpus, err := ParseCPUList(string(cpuList))
		if err != nil {
			continue
		}
		info.NodeCPUs[nodeID] = cpus
	}

	info.NumNodes = 0
	for i := range info.NodeCPUs {
		if len(info.NodeCPUs[i]) > 0 {
			info.NumNodes = i + 1
		}
	}

	return info, nil
}

// NodeOf returns the NUMA node cpu belongs to, or -1.
func (n NUMAInfo) NodeOf(cpu int) int {
	for node, cpus := range n.NodeCPUs {
		for _, c := range cpus {
			if c == cpu {
				return node
			}
		}
	}
	return -1
}

// NewRand creates a new random number generator with the given seed
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// CacheInfo stores the sizes of L1, L2, and L3 caches
type CacheInfo struct {
	L1Size int64 // in bytes
	L2Size int64 // in bytes
	L3Size int64 // in bytes
}

// GetCacheInfo retrieves L1, L2, and L3 data cache sizes of cpu0
func GetCacheInfo() (CacheInfo, error) {
	return getCacheInfo("/sys/devices/system/cpu/cpu0/cache")
}

func getCacheInfo(cacheDir string) (CacheInfo, error) {
	cacheInfo := CacheInfo{}

	for i := 0; i <= 3; i++ {
		index := filepath.Join(cacheDir, fmt.Sprintf("index%d", i))

		levelData, err := os.ReadFile(filepath.Join(index, "level"))
		if err != nil {
			continue
		}
		level, err := strconv.Atoi(strings.TrimSpace(string(levelData)))
		if err != nil {
			continue
		}

		typeData, err := os.ReadFile(filepath.Join(index, "type"))
		if err != nil {
			continue
		}
		cacheType := strings.TrimSpace(string(typeData))
		if cacheType != "Data" && cacheType != "Unified" {
			continue
		}

		sizeData, err := os.ReadFile(filepath.Join(index, "size"))
		if err != nil {
			continue
		}
		size, err := ParseCacheSize(string(sizeData))
		if err != nil {
			continue
		}

		switch level {
		case 1:
			cacheInfo.L1Size = size
		case 2:
			cacheInfo.L2Size = size
		case 3:
			cacheInfo.L3Size = size
		}
	}

	return cacheInfo, nil
}

// ParseCacheSize converts cache size string (e.g., "32K", "4M") to bytes
func ParseCacheSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if len(sizeStr) == 0 {
		return 0, fmt.Errorf("empty cache size string")
	}

	unit := sizeStr[len(sizeStr)-1:]
	valueStr := sizeStr[:len(sizeStr)-1]
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cache size value: %v", err)
	}

	switch strings.ToUpper(unit) {
	case "K":
		return value * 1024, nil
	case "M":
		return value * 1024 * 1024, nil
	case "G":
		return value * 1024 * 1024 * 1024, nil
	default:
		return 0, fmt.Errorf("unknown cache size unit: %s", unit)
	}
}
