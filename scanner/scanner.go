// Package scanner walks the start paths, turns every entry into an
// ingest.Task and feeds it to a bounded worker pool.
package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"pdfsift/config"
	"pdfsift/engine"
	"pdfsift/ingest"
	"pdfsift/logger"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Processor handles one task. *engine.Engine satisfies it.
type Processor interface {
	Process(ctx context.Context, task ingest.Task) engine.Result
}

// Summary counts per-task outcomes of one scan.
type Summary struct {
	Dispatched int64
	OK         int64
	Skipped    int64
	Errors     int64
	Cancelled  int64
}

type counters struct {
	dispatched atomic.Int64
	byResult   [4]atomic.Int64
}

func (c *counters) record(res engine.Result) {
	if int(res) >= 0 && int(res) < len(c.byResult) {
		c.byResult[res].Add(1)
	}
}

func (c *counters) summary() Summary {
	return Summary{
		Dispatched: c.dispatched.Load(),
		OK:         c.byResult[engine.ResultOK].Load(),
		Skipped:    c.byResult[engine.ResultSkipped].Load(),
		Errors:     c.byResult[engine.ResultError].Load(),
		Cancelled:  c.byResult[engine.ResultCancelled].Load(),
	}
}

// Scan dispatches every entry under cfg.StartPaths to proc and returns once
// all workers have drained. Directories are dispatched too; the engine
// skips them. The module's own directories under the case dir are never
// entered.
func Scan(ctx context.Context, cfg *config.Config, proc Processor) (Summary, error) {
	var c counters
	matcher := newPatternMatcher(cfg.IncludePatterns, cfg.ExcludePatterns)
	skip := skipRoots(cfg)
	starts := absPaths(cfg.StartPaths)

	var bar *progressbar.ProgressBar
	if cfg.SkipCount {
		logger.Info("Skipping total file count")
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Analyzing files"),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetVisibility(progressVisible()),
			progressbar.OptionFullWidth(),
		)
	} else {
		logger.Info("Counting total number of entries...")
		total := 0
		for _, startPath := range starts {
			count, err := countEntries(ctx, startPath, matcher, skip)
			if err != nil {
				logger.Warnf("Failed to count entries in %s: %v", startPath, err)
				continue
			}
			total += count
		}
		logger.Infof("Total entries to analyze: %d", total)
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Analyzing files"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionSetVisibility(progressVisible()),
			progressbar.OptionFullWidth(),
		)
	}
	defer bar.Finish()

	var limiter *rate.Limiter
	if cfg.MaxDispatchPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxDispatchPerSecond), cfg.MaxDispatchPerSecond)
	} else if cfg.AutoTune {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	var tuneState *autoTuneState
	if cfg.AutoTune {
		tuneState = applyAutoTune(cfg, limiter)
	} else {
		adjustConcurrency(cfg)
	}

	workers := max(1, cfg.ConcurrencyLevel)
	tasks := make(chan ingest.Task, workers)
	var processed atomic.Int64
	tuneCtx, stopTune := context.WithCancel(ctx)
	defer stopTune()
	startAutoTuneLoop(tuneCtx, cfg, limiter, tuneState, autoTuneTelemetry{
		queueDepthFn:     func() int { return len(tasks) },
		queueCapacityFn:  func() int { return cap(tasks) },
		processedCountFn: processed.Load,
	})

	var g errgroup.Group
	g.Go(func() error {
		defer close(tasks)
		for _, startPath := range starts {
			err := fastWalker{}.Walk(ctx, startPath, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					logger.Warnf("Failed to access %s: %v", path, err)
					return nil
				}
				if d == nil {
					return nil
				}
				if d.IsDir() && within(path, skip) {
					logger.Debugf("not entering %s", path)
					return fs.SkipDir
				}
				if !d.IsDir() && !matcher.ShouldInclude(path) {
					return nil
				}
				task, ok := newTask(path, d)
				if !ok {
					return nil
				}
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return err
					}
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case tasks <- task:
					c.dispatched.Add(1)
				}
				return nil
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warnf("Error walking path %s: %v", startPath, err)
			}
		}
		return nil
	})

	for range workers {
		g.Go(func() error {
			for task := range tasks {
				c.record(proc.Process(ctx, task))
				processed.Add(1)
				_ = bar.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Warnf("Scan interrupted after %d entries", c.dispatched.Load())
	}
	return c.summary(), err
}

func countEntries(ctx context.Context, startPath string, matcher *patternMatcher, skip []string) (int, error) {
	var total int
	err := fastWalker{}.Walk(ctx, startPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d == nil {
			return nil
		}
		if d.IsDir() {
			if within(path, skip) {
				return fs.SkipDir
			}
			total++
			return nil
		}
		if d.Type().IsRegular() && matcher.ShouldInclude(path) {
			total++
		}
		return nil
	})
	return total, err
}

// skipRoots lists the directories the module writes into during a run.
func skipRoots(cfg *config.Config) []string {
	roots := []string{filepath.Join(cfg.CaseDir, engine.ModuleDirName)}
	if cfg.TempDir != "" {
		roots = append(roots, cfg.TempDir)
	}
	return roots
}

func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}

func adjustConcurrency(cfg *config.Config) {
	if cfg.ConcurrencySet {
		return
	}
	numCPU := runtime.NumCPU()
	switch cfg.NiceLevel {
	case "high":
		cfg.ConcurrencyLevel = numCPU
	case "medium":
		cfg.ConcurrencyLevel = max(1, numCPU/2)
	case "low":
		cfg.ConcurrencyLevel = 1
	}
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("PDFSIFT_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}
