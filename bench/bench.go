package bench

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Op performs operation number seq and returns its latency.
type Op func(ctx context.Context, seq int) (time.Duration, error)

type LatencyConfig struct {
	Iterations int
	Warmup     int
}

type LatencyReport struct {
	Trials  int
	Valid   int
	Failed  int
	Mean    time.Duration
	Min     time.Duration
	Max     time.Duration
	StdDev  time.Duration
	P50     time.Duration
	P90     time.Duration
	P99     time.Duration
	Elapsed time.Duration
}

type ThroughputConfig struct {
	Count       int
	Duration    time.Duration
	Concurrency int
}

type ThroughputReport struct {
	Completed   int
	Failed      int
	Concurrency int
	Elapsed     time.Duration
	OpsPerSec   float64
	Latency     LatencyReport
}

// Latency runs op sequentially; failed trials are logged and left out of the
// statistics.
func Latency(ctx context.Context, cfg LatencyConfig, op Op) (LatencyReport, error) {
	if cfg.Iterations <= 0 {
		return LatencyReport{}, fmt.Errorf("bench: iterations must be positive; got %d",
			cfg.Iterations)
	}

	for i := 0; i < cfg.Warmup; i++ {
		_, err := op(ctx, -(i + 1))
		if ctx.Err() != nil {
			return LatencyReport{}, ctx.Err()
		}
		if err != nil {
			log.WithFields(log.Fields{
				"warmup": i + 1,
				"error":  err.Error(),
			}).Warn("warmup failed")
		}
	}

	samples := make([]time.Duration, 0, cfg.Iterations)
	start := time.Now()
	for i := 0; i < cfg.Iterations; i++ {
		log.WithField("iteration", i+1).Debug("running iteration")
		d, err := op(ctx, i)
		if ctx.Err() != nil {
			return LatencyReport{}, ctx.Err()
		}
		if err != nil {
			log.WithFields(log.Fields{
				"iteration": i + 1,
				"error":     err.Error(),
			}).Warn("iteration failed")
			continue
		}
		log.WithFields(log.Fields{
			"iteration": i + 1,
			"latency":   d.String(),
		}).Debug("iteration done")
		samples = append(samples, d)
	}

	rpt := Summarize(samples)
	rpt.Trials = cfg.Iterations
	rpt.Failed = cfg.Iterations - rpt.Valid
	rpt.Elapsed = time.Since(start)
	return rpt, nil
}

// Summarize computes the statistics of a set of successful trials. With no
// samples every statistic is zero.
func Summarize(samples []time.Duration) LatencyReport {
	rpt := LatencyReport{
		Trials: len(samples),
		Valid:  len(samples),
	}
	if len(samples) == 0 {
		return rpt
	}

	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total float64
	for _, d := range sorted {
		total += float64(d)
	}
	mean := total / float64(len(sorted))

	var sq float64
	for _, d := range sorted {
		sq += (float64(d) - mean) * (float64(d) - mean)
	}

	rpt.Mean = time.Duration(math.Round(mean))
	rpt.StdDev = time.Duration(math.Round(math.Sqrt(sq / float64(len(sorted)))))
	rpt.Min = sorted[0]
	rpt.Max = sorted[len(sorted)-1]
	rpt.P50 = Percentile(sorted, 50)
	rpt.P90 = Percentile(sorted, 90)
	rpt.P99 = Percentile(sorted, 99)
	return rpt
}

// Percentile returns the nearest rank percentile p of sorted samples.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	} else if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// OpsPerSecond is the number of operations divided by the elapsed wall clock
// seconds.
func OpsPerSecond(ops int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(ops) / elapsed.Seconds()
}

// Throughput runs op Count times, or until Duration has elapsed, with at most
// Concurrency operations in flight. Operations cut off by the end of the run
// window count neither as completed nor as failed.
func Throughput(ctx context.Context, cfg ThroughputConfig, op Op) (ThroughputReport, error) {
	if cfg.Count <= 0 && cfg.Duration <= 0 {
		return ThroughputReport{}, errors.New("bench: either a count or a duration is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	runCtx := ctx
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	var completed, failed int64
	var mutex sync.Mutex
	var samples []time.Duration

	progress := newProgress(cfg)
	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)

	start := time.Now()
	for seq := 0; cfg.Count <= 0 || seq < cfg.Count; seq++ {
		if runCtx.Err() != nil {
			break
		}

		seq := seq
		g.Go(func() error {
			if runCtx.Err() != nil {
				return nil
			}
			d, err := op(runCtx, seq)
			if err != nil {
				if runCtx.Err() != nil {
					return nil
				}
				atomic.AddInt64(&failed, 1)
				log.WithFields(log.Fields{
					"operation": seq + 1,
					"error":     err.Error(),
				}).Warn("operation failed")
				return nil
			}

			n := atomic.AddInt64(&completed, 1)
			mutex.Lock()
			samples = append(samples, d)
			mutex.Unlock()
			progress.done(int(n), start)
			return nil
		})
	}
	g.Wait()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return ThroughputReport{}, ctx.Err()
	}

	rpt := ThroughputReport{
		Completed:   int(completed),
		Failed:      int(failed),
		Concurrency: cfg.Concurrency,
		Elapsed:     elapsed,
		OpsPerSec:   OpsPerSecond(int(completed), elapsed),
		Latency:     Summarize(samples),
	}
	rpt.Latency.Trials = rpt.Completed + rpt.Failed
	rpt.Latency.Failed = rpt.Failed
	rpt.Latency.Elapsed = elapsed
	return rpt, nil
}

type progress struct {
	every    int64
	interval time.Duration
	last     int64
}

func newProgress(cfg ThroughputConfig) *progress {
	p := &progress{}
	if cfg.Count > 0 {
		p.every = int64(cfg.Count / 10)
		if p.every < 10 {
			p.every = 10
		}
	} else {
		p.interval = time.Second
	}
	return p
}

func (p *progress) done(n int, start time.Time) {
	if p.every > 0 {
		if int64(n)%p.every != 0 {
			return
		}
	} else {
		now := time.Since(start).Nanoseconds()
		last := atomic.LoadInt64(&p.last)
		if time.Duration(now-last) < p.interval ||
			!atomic.CompareAndSwapInt64(&p.last, last, now) {
			return
		}
	}

	elapsed := time.Since(start)
	log.WithFields(log.Fields{
		"completed": n,
		"elapsed":   elapsed.String(),
	}).Infof("completed %d operations in %.2f seconds", n, elapsed.Seconds())
}

// Milliseconds converts d to fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (rpt LatencyReport) Results() map[string]float64 {
	return map[string]float64{
		"trials":    float64(rpt.Trials),
		"valid":     float64(rpt.Valid),
		"failed":    float64(rpt.Failed),
		"mean_ms":   Milliseconds(rpt.Mean),
		"min_ms":    Milliseconds(rpt.Min),
		"max_ms":    Milliseconds(rpt.Max),
		"stddev_ms": Milliseconds(rpt.StdDev),
		"p50_ms":    Milliseconds(rpt.P50),
		"p90_ms":    Milliseconds(rpt.P90),
		"p99_ms":    Milliseconds(rpt.P99),
		"elapsed_s": rpt.Elapsed.Seconds(),
	}
}

func (rpt ThroughputReport) Results() map[string]float64 {
	return map[string]float64{
		"completed":   float64(rpt.Completed),
		"failed":      float64(rpt.Failed),
		"concurrency": float64(rpt.Concurrency),
		"elapsed_s":   rpt.Elapsed.Seconds(),
		"ops_per_sec": rpt.OpsPerSec,
		"mean_ms":     Milliseconds(rpt.Latency.Mean),
		"p50_ms":      Milliseconds(rpt.Latency.P50),
		"p99_ms":      Milliseconds(rpt.Latency.P99),
	}
}
