package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dinhngtu/uvtester/abi"
	"github.com/dinhngtu/uvtester/config"
	"github.com/dinhngtu/uvtester/cpu"
	"github.com/dinhngtu/uvtester/jit"
	"github.com/dinhngtu/uvtester/selfcheck"
	"github.com/dinhngtu/uvtester/sim"
	"github.com/dinhngtu/uvtester/utils"
)

type runFlags struct {
	configPath    string
	cfg           config.Config
	immediateSeed uint64
}

func newRunCmd() *cobra.Command {
	f := &runFlags{cfg: config.Default()}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the self-check on the selected cores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.resolve(cmd)
			if err != nil {
				return err
			}
			return runSelfCheck(cmd.Context(), cmd.OutOrStdout(), c)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "Load settings from a JSON or YAML file")
	fl.StringVarP(&f.cfg.Method, "method", "m", f.cfg.Method, "Kernel: imul, imul_tree, imul_imm or aesenc")
	fl.IntVar(&f.cfg.Depth, "depth", f.cfg.Depth, "Kernel depth (tree depth for imul_tree)")
	fl.Uint32Var(&f.cfg.Iterations, "iters", f.cfg.Iterations, "Loop iterations per call")
	fl.IntVar(&f.cfg.PauseDepth, "pausedepth", f.cfg.PauseDepth, "Pause instructions emitted after the loop")
	fl.Int64Var(&f.cfg.Passes, "passes", f.cfg.Passes, "Calls per main loop")
	fl.IntVar(&f.cfg.Sleep, "sleep", f.cfg.Sleep, "Sleep between main loops (ms)")
	fl.IntVar(&f.cfg.Measure, "measure", f.cfg.Measure, "Report timing every N main loops (0 disables)")
	fl.BoolVar(&f.cfg.Stop, "stop", f.cfg.Stop, "Stop on the first bad result")
	fl.IntVar(&f.cfg.Cores, "cores", f.cfg.Cores, "Number of cores to test (0 for all)")
	fl.StringVar(&f.cfg.CPUList, "cpus", f.cfg.CPUList, "CPU list to test (e.g. 0-3,8)")
	fl.StringVar(&f.cfg.Duration, "duration", f.cfg.Duration, "Test duration (e.g. 30s, 5m, 1h); empty runs until interrupted")
	fl.StringVar(&f.cfg.Backend, "backend", f.cfg.Backend, "Execution backend: native or sim")
	fl.StringVar(&f.cfg.MetricsAddr, "metrics-addr", f.cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	fl.Uint64Var(&f.immediateSeed, "imm-seed", 0, "Fix the imul_imm immediate stream seed")
	return cmd
}

// resolve merges the config file with the flags the user set explicitly.
func (f *runFlags) resolve(cmd *cobra.Command) (config.Config, error) {
	c := config.Default()
	if f.configPath != "" {
		loaded, err := config.LoadConfig(f.configPath)
		if err != nil {
			return c, err
		}
		c = loaded
	}

	fl := cmd.Flags()
	set := map[string]func(){
		"method":       func() { c.Method = f.cfg.Method },
		"depth":        func() { c.Depth = f.cfg.Depth },
		"iters":        func() { c.Iterations = f.cfg.Iterations },
		"pausedepth":   func() { c.PauseDepth = f.cfg.PauseDepth },
		"passes":       func() { c.Passes = f.cfg.Passes },
		"sleep":        func() { c.Sleep = f.cfg.Sleep },
		"measure":      func() { c.Measure = f.cfg.Measure },
		"stop":         func() { c.Stop = f.cfg.Stop },
		"cores":        func() { c.Cores = f.cfg.Cores },
		"cpus":         func() { c.CPUList = f.cfg.CPUList },
		"duration":     func() { c.Duration = f.cfg.Duration },
		"backend":      func() { c.Backend = f.cfg.Backend },
		"metrics-addr": func() { c.MetricsAddr = f.cfg.MetricsAddr },
		"imm-seed": func() {
			seed := f.immediateSeed
			c.ImmediateSeed = &seed
		},
	}
	for name, apply := range set {
		if fl.Changed(name) {
			apply()
		}
	}

	if debugFlag {
		c.Debug = true
	}
	if logFile != "" {
		c.LogFile = logFile
	}
	if c.Debug != debugFlag || c.LogFile != logFile {
		if err := utils.InitLogger(c.Debug, c.LogFile); err != nil {
			return c, err
		}
	}

	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func newEmitter(backend string) abi.Emitter {
	if backend == "sim" {
		return sim.NewEmitter()
	}
	return jit.NewEmitter()
}

func printParameters(w io.Writer, c config.Config, cpus []int) {
	stop := 0
	if c.Stop {
		stop = 1
	}
	fmt.Fprintf(w, "method:\t\t%s\n", c.Method)
	fmt.Fprintf(w, "depth:\t\t%d\n", c.Depth)
	fmt.Fprintf(w, "iters:\t\t%d\n", c.Iterations)
	fmt.Fprintf(w, "pausedepth:\t%d\n", c.PauseDepth)
	fmt.Fprintf(w, "passes:\t\t%d\n", c.Passes)
	fmt.Fprintf(w, "sleep:\t\t%d\n", c.Sleep)
	fmt.Fprintf(w, "measure:\t%d\n", c.Measure)
	fmt.Fprintf(w, "stop:\t\t%d\n", stop)
	fmt.Fprintf(w, "backend:\t%s\n", c.Backend)
	fmt.Fprintf(w, "cpus:\t\t%v\n", cpus)
}

func startMetricsServer(addr string, debug bool) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger().Error("metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	utils.LogMessage(fmt.Sprintf("Serving metrics on http://%s/metrics", addr), debug)
	return srv
}

func runSelfCheck(ctx context.Context, out io.Writer, c config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	debug := c.Debug

	cpus, err := utils.SelectCPUs(c.Cores, c.CPUList)
	if err != nil {
		return err
	}
	kind, err := c.Kind()
	if err != nil {
		return err
	}

	opts := []selfcheck.Option{
		selfcheck.WithEmitter(newEmitter(c.Backend)),
		selfcheck.WithLogger(utils.Logger()),
	}
	if c.ImmediateSeed != nil {
		opts = append(opts, selfcheck.WithImmediateSeed(*c.ImmediateSeed))
	}
	fn, err := selfcheck.Generate(kind, c.Depth, c.PauseDepth, opts...)
	if err != nil {
		return err
	}
	defer fn.Close()

	printParameters(out, c, cpus)

	testDuration, _ := c.RunDuration()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if testDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, testDuration)
		defer cancel()
		utils.LogMessage(fmt.Sprintf("Starting self-check for %v...", testDuration), false)
	} else {
		utils.LogMessage("Starting self-check until interrupted...", false)
	}
	utils.LogMessage(fmt.Sprintf("Debug mode: %v", debug), true)

	if c.MetricsAddr != "" {
		srv := startMetricsServer(c.MetricsAddr, debug)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	perfStats := config.NewPerformanceStats()
	perfStats.Lock()
	perfStats.CPU.Method = kind.String()
	perfStats.Unlock()

	errorChan := make(chan string, 100)
	results := config.TestResult{CPU: "PASS"}
	var errorDetails []string
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for msg := range errorChan {
			if msg == "" {
				continue
			}
			results.CPU = "FAIL"
			errorDetails = append(errorDetails, msg)
			utils.LogMessage(fmt.Sprintf("Error detected: %s", msg), false)
		}
	}()

	cpuConfig := cpu.CPUConfig{
		CPUList:       cpus,
		Debug:         debug,
		Passes:        c.Passes,
		Iterations:    c.Iterations,
		Sleep:         c.SleepDuration(),
		Measure:       c.Measure,
		StopOnFailure: c.Stop,
	}
	res, runErr := cpu.RunSelfCheckStressTests(ctx, errorChan, cpuConfig, fn, perfStats)
	close(errorChan)
	<-drained

	var div *cpu.DivergenceError
	if runErr != nil && !errors.As(runErr, &div) {
		return runErr
	}

	snap := perfStats.Snapshot()
	utils.LogMessage("=== SELF-CHECK RESULTS ===", false)
	utils.LogMessage(fmt.Sprintf("Run %s: %s calls, %s loop iterations, %d divergences",
		res.RunID, utils.FormatCount(res.Passes), utils.FormatCount(snap.Iterations), res.Divergences), false)
	cores := make([]int, 0, len(snap.CoreDivergences))
	for core := range snap.CoreDivergences {
		cores = append(cores, core)
	}
	sort.Ints(cores)
	for _, core := range cores {
		utils.LogMessage(fmt.Sprintf("CPU %d: %d divergences, last bad result %x",
			core, snap.CoreDivergences[core], uint64(snap.LastDivergence[core])), false)
	}

	resultStr := fmt.Sprintf("Self-Check Summary - Duration: %s\nCPU: %s", res.Elapsed.Round(time.Second), results.CPU)
	if len(errorDetails) > 0 {
		resultStr += fmt.Sprintf("\nCPU FAIL reason: %s", errorDetails[0])
	}
	utils.LogMessage(resultStr, false)

	if div != nil {
		return fmt.Errorf("%w: %v", errDivergence, div)
	}
	if res.Divergences > 0 {
		return fmt.Errorf("%w: %d bad results", errDivergence, res.Divergences)
	}
	return nil
}
