// Package tracing marks the per-file pipeline in runtime/trace output and
// keeps an optional flight recorder for stall diagnostics.
package tracing

import (
	"os"
	"runtime/trace"
	"sync"
	"time"
)

// Region names for the stages of one file.
const (
	RegionMaterialize = "materialize"
	RegionVerify      = "verify_signature"
	RegionPermissions = "extract_permissions"
	RegionPublish     = "publish"
)

var (
	recorderMu     sync.Mutex
	flightRecorder *trace.FlightRecorder
)

// StartFlightRecorder enables the in-memory flight recorder.
func StartFlightRecorder(maxBytes uint64, minAge time.Duration) error {
	recorderMu.Lock()
	defer recorderMu.Unlock()
	if flightRecorder != nil {
		return nil
	}
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{MaxBytes: maxBytes, MinAge: minAge})
	if err := fr.Start(); err != nil {
		return err
	}
	flightRecorder = fr
	return nil
}

// StopFlightRecorder stops the flight recorder if it is running.
func StopFlightRecorder() {
	recorderMu.Lock()
	defer recorderMu.Unlock()
	if flightRecorder != nil {
		flightRecorder.Stop()
		flightRecorder = nil
	}
}

// WriteFlightRecorder dumps the current window to path. Without a running
// recorder nothing is written.
func WriteFlightRecorder(path string) error {
	recorderMu.Lock()
	defer recorderMu.Unlock()
	if flightRecorder == nil || !flightRecorder.Enabled() {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = flightRecorder.WriteTo(f)
	return err
}
