package cpu

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dinhngtu/uvtester/abi"
	"github.com/dinhngtu/uvtester/config"
	"github.com/dinhngtu/uvtester/utils"
)

// ctxCheckInterval is how many calls a worker makes between cancellation
// checks.
const ctxCheckInterval = 256

// DivergenceError ends a run started with StopOnFailure.
type DivergenceError struct {
	CPU    int
	Seed   int64
	Result int64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("bad result %x on CPU %d (seed %d), stopping", uint64(e.Result), e.CPU, e.Seed)
}

// RunSelfCheckStressTests calls fn on every CPU in testConfig.CPUList until
// ctx is cancelled, MaxLoops main loops have run, or, with StopOnFailure,
// a call returns nonzero. Each nonzero result is sent to errorChan and
// counted in perfStats.
func RunSelfCheckStressTests(ctx context.Context, errorChan chan<- string, testConfig CPUConfig, fn abi.Function, perfStats *config.PerformanceStats) (CPUResult, error) {
	result := CPUResult{RunID: uuid.NewString(), NumCores: len(testConfig.CPUList)}
	if len(testConfig.CPUList) == 0 {
		return result, fmt.Errorf("no CPUs selected")
	}
	if testConfig.Passes < 0 || testConfig.Measure < 0 || testConfig.Sleep < 0 {
		return result, fmt.Errorf("passes, measure and sleep must be non-negative")
	}

	log := utils.Logger().With(zap.String("run", result.RunID))
	perfStats.Lock()
	perfStats.CPU.NumCores = len(testConfig.CPUList)
	perfStats.Unlock()

	utils.LogMessage(fmt.Sprintf("Running self-check on %d cores (CPUs: %v)", len(testConfig.CPUList), testConfig.CPUList), testConfig.Debug)
	log.Debug("run started",
		zap.Int64("passes", testConfig.Passes),
		zap.Uint32("iterations", testConfig.Iterations),
		zap.Duration("sleep", testConfig.Sleep),
		zap.Int("measure", testConfig.Measure),
		zap.Bool("stop", testConfig.StopOnFailure))

	numaInfo, err := utils.GetNUMAInfo()
	if err != nil {
		log.Debug("NUMA discovery failed", zap.Error(err))
	}

	seedBase := testConfig.SeedBase
	if seedBase == 0 {
		seedBase = time.Now().UnixNano()
	}

	before := perfStats.Snapshot()
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for _, cpuID := range testConfig.CPUList {
		w := worker{
			cpuID:     cpuID,
			label:     strconv.Itoa(cpuID),
			cfg:       testConfig,
			fn:        fn,
			stats:     perfStats,
			errorChan: errorChan,
			seed:      seedBase + int64(cpuID),
			node:      numaInfo.NodeOf(cpuID),
			log:       log.With(zap.Int("cpu", cpuID)),
		}
		g.Go(func() error {
			return w.run(gctx)
		})
	}
	err = g.Wait()

	after := perfStats.Snapshot()
	result.Elapsed = time.Since(start)
	result.Passes = after.Passes - before.Passes
	result.Divergences = after.Divergences - before.Divergences
	log.Debug("run finished",
		zap.Uint64("passes", result.Passes),
		zap.Uint64("divergences", result.Divergences),
		zap.Duration("elapsed", result.Elapsed),
		zap.Error(err))
	return result, err
}

type worker struct {
	cpuID     int
	label     string
	cfg       CPUConfig
	fn        abi.Function
	stats     *config.PerformanceStats
	errorChan chan<- string
	seed      int64
	node      int
	log       *zap.Logger
}

func (w *worker) run(ctx context.Context) error {
	if w.cfg.Debug {
		utils.LogMessage(fmt.Sprintf("Starting self-check worker on CPU %d (NUMA node %d)", w.cpuID, w.node), w.cfg.Debug)
	}
	unpin := pinToCPU(w.cpuID, w.cfg.Debug)
	defer unpin()

	rng := utils.NewRand(w.seed)
	passes := passesTotal.WithLabelValues(w.label)
	divergences := divergencesTotal.WithLabelValues(w.label)
	durations := loopDuration.WithLabelValues(w.label)

	var total time.Duration
	for loop := 0; w.cfg.MaxLoops == 0 || loop < w.cfg.MaxLoops; loop++ {
		if ctx.Err() != nil {
			break
		}
		if w.cfg.Measure > 0 && loop%w.cfg.Measure == 0 {
			total = 0
		}

		begin := time.Now()
		var done int64
		for ; done < w.cfg.Passes; done++ {
			if done%ctxCheckInterval == 0 && ctx.Err() != nil {
				break
			}
			seed := int64(rng.Uint64())
			res := w.fn.Call(seed, w.cfg.Iterations)
			if res == 0 {
				continue
			}
			divergences.Inc()
			w.stats.RecordDivergence(w.cpuID, res)
			w.report(ctx, fmt.Sprintf("bad result %x on CPU %d (seed %d)", uint64(res), w.cpuID, seed))
			if w.cfg.StopOnFailure {
				w.finishLoop(uint64(done+1), time.Since(begin), passes, durations)
				return &DivergenceError{CPU: w.cpuID, Seed: seed, Result: res}
			}
		}
		elapsed := time.Since(begin)
		w.finishLoop(uint64(done), elapsed, passes, durations)

		if w.cfg.Measure > 0 {
			total += elapsed
			if loop%w.cfg.Measure == w.cfg.Measure-1 {
				usecs := total.Microseconds()
				utils.LogMessage(fmt.Sprintf("CPU %d: total %d us (avg %d us per main loop iter)", w.cpuID, usecs, usecs/int64(w.cfg.Measure)), false)
			}
		}

		if w.cfg.Sleep > 0 {
			timer := time.NewTimer(w.cfg.Sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}

	if w.cfg.Debug {
		utils.LogMessage(fmt.Sprintf("Self-check on CPU %d completed", w.cpuID), w.cfg.Debug)
	}
	return nil
}

func (w *worker) finishLoop(done uint64, elapsed time.Duration, passes prometheus.Counter, durations prometheus.Observer) {
	passes.Add(float64(done))
	durations.Observe(elapsed.Seconds())
	w.stats.RecordLoop(w.cpuID, done, uint64(w.cfg.Iterations), elapsed)
}

// report forwards msg without blocking past cancellation.
func (w *worker) report(ctx context.Context, msg string) {
	w.log.Debug("divergence detected", zap.String("detail", msg))
	if w.errorChan == nil {
		return
	}
	select {
	case w.errorChan <- msg:
	case <-ctx.Done():
	}
}
