// Package diag watches a running scan and writes diagnostics when files stop
// completing: a JSON stall event naming the files still in flight, an
// optional flight-recorder window, and goroutine profiles.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sort"
	"sync"
	"time"

	"pdfsift/logger"
)

type profileWriter interface {
	WriteTo(w io.Writer, debug int) error
}

type Options struct {
	StallThreshold time.Duration
	Dir            string
	GoroutineLeak  bool
	// CompletedFn reports how many files have finished so far.
	CompletedFn func() int64
	// InFlightFn lists the files currently being processed.
	InFlightFn         func() []string
	DumpFlightRecorder func(path string) error
	NowFn              func() time.Time
	ProfileLookupFn    func(name string) profileWriter
}

// Watchdog polls the completion counter and dumps diagnostics when it stops
// moving for StallThreshold.
type Watchdog struct {
	opts Options

	mu          sync.Mutex
	lastCount   int64
	lastMovedAt time.Time
	lastDumpAt  time.Time

	stop chan struct{}
	done chan struct{}
}

func New(opts Options) *Watchdog {
	if opts.NowFn == nil {
		opts.NowFn = time.Now
	}
	if opts.ProfileLookupFn == nil {
		opts.ProfileLookupFn = func(name string) profileWriter {
			if p := pprof.Lookup(name); p != nil {
				return p
			}
			return nil
		}
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	return &Watchdog{opts: opts}
}

// Start launches the polling goroutine. It does nothing without a threshold
// or completion counter.
func (w *Watchdog) Start(ctx context.Context) {
	if w == nil || w.opts.StallThreshold <= 0 || w.opts.CompletedFn == nil || w.stop != nil {
		return
	}
	w.mu.Lock()
	w.lastCount = w.opts.CompletedFn()
	w.lastMovedAt = w.opts.NowFn()
	w.lastDumpAt = time.Time{}
	w.mu.Unlock()

	interval := w.opts.StallThreshold / 2
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if interval > 2*time.Second {
		interval = 2 * time.Second
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.probe(w.opts.NowFn())
			}
		}
	}()
}

// Close stops polling and, when enabled, writes a goroutine profile so
// leaked workers show up after the run.
func (w *Watchdog) Close() {
	if w == nil {
		return
	}
	if w.stop != nil {
		close(w.stop)
		<-w.done
		w.stop = nil
		w.done = nil
	}
	if w.opts.GoroutineLeak {
		if _, err := w.writeProfile("goroutine", 2); err != nil {
			logger.Warnf("Diagnostics goroutine profile dump failed: %v", err)
		}
	}
}

func (w *Watchdog) probe(now time.Time) {
	count := w.opts.CompletedFn()

	w.mu.Lock()
	if count != w.lastCount || w.lastMovedAt.IsZero() {
		w.lastCount = count
		w.lastMovedAt = now
		w.mu.Unlock()
		return
	}
	stalled := now.Sub(w.lastMovedAt)
	dump := stalled >= w.opts.StallThreshold &&
		(w.lastDumpAt.IsZero() || now.Sub(w.lastDumpAt) >= w.opts.StallThreshold)
	if dump {
		w.lastDumpAt = now
	}
	w.mu.Unlock()

	if dump {
		if err := w.dumpStall(now, count, stalled); err != nil {
			logger.Warnf("Diagnostics stall dump failed: %v", err)
		}
	}
}

func (w *Watchdog) dumpStall(now time.Time, count int64, stalled time.Duration) error {
	if err := os.MkdirAll(w.opts.Dir, 0755); err != nil {
		return err
	}
	var inFlight []string
	if w.opts.InFlightFn != nil {
		inFlight = w.opts.InFlightFn()
		sort.Strings(inFlight)
	}
	ts := now.UTC().Format("20060102-150405.000")
	event := map[string]interface{}{
		"event":           "no_file_completed",
		"timestamp":       now.UTC().Format(time.RFC3339Nano),
		"completed_files": count,
		"threshold_ms":    w.opts.StallThreshold.Milliseconds(),
		"stalled_ms":      stalled.Milliseconds(),
		"in_flight":       inFlight,
	}
	b, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	eventPath := filepath.Join(w.opts.Dir, fmt.Sprintf("pdfsift-stall-%s.json", ts))
	if err := os.WriteFile(eventPath, b, 0600); err != nil {
		return err
	}
	logger.Warnf("No file completed for %s; %d file(s) in flight, details in %s", stalled.Round(time.Millisecond), len(inFlight), eventPath)

	if w.opts.DumpFlightRecorder != nil {
		tracePath := filepath.Join(w.opts.Dir, fmt.Sprintf("pdfsift-flight-%s.out", ts))
		if err := w.opts.DumpFlightRecorder(tracePath); err != nil {
			logger.Warnf("Diagnostics flight recorder dump failed: %v", err)
		}
	}
	return nil
}

func (w *Watchdog) writeProfile(name string, debug int) (string, error) {
	profile := w.opts.ProfileLookupFn(name)
	if profile == nil {
		return "", fmt.Errorf("pprof profile %q unavailable", name)
	}
	if err := os.MkdirAll(w.opts.Dir, 0755); err != nil {
		return "", err
	}
	ts := w.opts.NowFn().UTC().Format("20060102-150405.000")
	path := filepath.Join(w.opts.Dir, fmt.Sprintf("pdfsift-%s-profile-%s.pprof", name, ts))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := profile.WriteTo(f, debug); err != nil {
		return "", err
	}
	return path, nil
}
