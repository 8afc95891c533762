package scanner

import (
	"context"
	"math"
	"runtime"
	"time"

	"pdfsift/config"
	"pdfsift/logger"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/time/rate"
)

const (
	minDispatchLimit = 2
	// maxDispatchStep bounds one adjustment in files per second.
	maxDispatchStep = 40
)

// autoTuneState tracks the dispatch rate handed to the worker pool. Every
// PDF costs one or two tool spawns, so the rate is what bounds CPU use; the
// pool size is fixed once the scan starts.
type autoTuneState struct {
	workers        int
	dispatchLimit  int
	maxDispatch    int
	cpuEWMA        float64
	cpuPID         pidController
	lastProcessed  int64
	throughputEWMA float64
	queueWaitEWMA  float64
}

type autoTuneTelemetry struct {
	queueDepthFn     func() int
	queueCapacityFn  func() int
	processedCountFn func() int64
}

func (t autoTuneTelemetry) queueDepth() int {
	if t.queueDepthFn == nil {
		return 0
	}
	return max(0, t.queueDepthFn())
}

func (t autoTuneTelemetry) queueCapacity() int {
	if t.queueCapacityFn == nil {
		return 0
	}
	return max(0, t.queueCapacityFn())
}

func (t autoTuneTelemetry) processedCount() int64 {
	if t.processedCountFn == nil {
		return 0
	}
	return max(0, t.processedCountFn())
}

type pidController struct {
	kp float64
	ki float64
	kd float64

	integral    float64
	prevError   float64
	hasPrev     bool
	minIntegral float64
	maxIntegral float64
	minOutput   float64
	maxOutput   float64
}

// applyAutoTune sizes the pool from the nice level and total memory and
// seeds the limiter, unless the user pinned either value.
func applyAutoTune(cfg *config.Config, limiter *rate.Limiter) *autoTuneState {
	state := initialAutoTune(cfg)
	if !cfg.ConcurrencySet {
		cfg.ConcurrencyLevel = state.workers
	}
	if !cfg.MaxDispatchSet && limiter != nil {
		limiter.SetLimit(rate.Limit(state.dispatchLimit))
		limiter.SetBurst(state.dispatchLimit)
	}
	logger.Debugf("auto-tune: %d workers, %d files/s (max %d)", cfg.ConcurrencyLevel, state.dispatchLimit, state.maxDispatch)
	return state
}

func initialAutoTune(cfg *config.Config) *autoTuneState {
	numCPU := runtime.NumCPU()
	workers := numCPU
	switch cfg.NiceLevel {
	case "low":
		workers = 1
	case "medium":
		workers = max(1, numCPU/2)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		totalGB := vm.Total / (1024 * 1024 * 1024)
		switch {
		case totalGB <= 4:
			workers = min(workers, 2)
		case totalGB <= 8:
			workers = min(workers, 4)
		}
	}
	diskType := detectDiskType()
	return &autoTuneState{
		workers:       max(1, workers),
		dispatchLimit: defaultDispatchLimit(cfg.NiceLevel, diskType),
		maxDispatch:   maxDispatchLimit(cfg.NiceLevel, diskType),
		cpuPID:        newCPUPIDController(cfg.NiceLevel),
	}
}

func startAutoTuneLoop(
	ctx context.Context,
	cfg *config.Config,
	limiter *rate.Limiter,
	state *autoTuneState,
	telemetry autoTuneTelemetry,
) {
	if !cfg.AutoTune || state == nil || limiter == nil || cfg.MaxDispatchSet {
		return
	}
	go autoTuneLoop(ctx, cfg, limiter, state, telemetry)
}

func autoTuneLoop(
	ctx context.Context,
	cfg *config.Config,
	limiter *rate.Limiter,
	state *autoTuneState,
	telemetry autoTuneTelemetry,
) {
	ticker := time.NewTicker(cfg.AutoTuneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cpuPct := currentCPUPercent()
		if cpuPct <= 0 {
			continue
		}
		delta := computeDispatchDelta(cfg, state, cpuPct, telemetry)
		applyDispatchDelta(limiter, state, delta)
	}
}

func applyDispatchDelta(limiter *rate.Limiter, state *autoTuneState, delta int) {
	if delta == 0 {
		return
	}
	maxLimit := state.maxDispatch
	if maxLimit <= 0 {
		maxLimit = 400
	}
	next := min(max(state.dispatchLimit+delta, minDispatchLimit), maxLimit)
	if next == state.dispatchLimit {
		return
	}
	state.dispatchLimit = next
	limiter.SetLimit(rate.Limit(next))
	limiter.SetBurst(next)
	logger.Debugf("auto-tune: dispatch limit now %d files/s (cpu %.1f%%)", next, state.cpuEWMA)
}

func computeDispatchDelta(cfg *config.Config, state *autoTuneState, cpuSample float64, telemetry autoTuneTelemetry) int {
	if cpuSample <= 0 {
		return 0
	}

	const (
		ewmaAlpha = 0.30
		deadband  = 2.0
	)
	state.cpuEWMA = ewma(state.cpuEWMA, cpuSample, ewmaAlpha)

	dt := cfg.AutoTuneInterval.Seconds()
	if dt <= 0 {
		dt = 1
	}
	cpuError := cfg.AutoTuneTargetCPU - state.cpuEWMA
	cpuControl := state.cpuPID.Update(cpuError, dt)

	queueRatio, queueWait, hasQueueSignal := queueSignals(state, telemetry, dt)
	queueError := 0.0
	waitError := 0.0
	if hasQueueSignal {
		targetQueueRatio, targetQueueWait := queueTargets(cfg.NiceLevel)
		// Backlog pushes the rate down; idle workers pull it up.
		queueError = targetQueueRatio - queueRatio
		if targetQueueWait > 0 {
			waitError = (targetQueueWait - queueWait) / targetQueueWait
		}
	}

	control := cpuControl + queueError*1.5 + waitError*0.8

	if math.Abs(cpuError) <= deadband && (!hasQueueSignal || (math.Abs(queueError) <= 0.05 && math.Abs(waitError) <= 0.20)) {
		state.cpuPID.integral *= 0.85
		return 0
	}

	noise := math.Abs(cpuSample - state.cpuEWMA)
	switch {
	case noise > 35:
		control *= 0.25
	case noise > 20:
		control *= 0.5
	}

	step := int(math.Round(control * controlScale(cfg.NiceLevel)))
	return min(max(step, -maxDispatchStep), maxDispatchStep)
}

func queueSignals(state *autoTuneState, telemetry autoTuneTelemetry, dt float64) (float64, float64, bool) {
	depth := float64(telemetry.queueDepth())
	capacityValue := telemetry.queueCapacity()
	hasQueueSignal := capacityValue > 0
	queueRatio := 0.0
	if hasQueueSignal {
		queueRatio = min(max(depth/float64(capacityValue), 0), 2)
	}

	processed := telemetry.processedCount()
	deltaProcessed := max(0, processed-state.lastProcessed)
	state.lastProcessed = processed

	state.throughputEWMA = ewma(state.throughputEWMA, float64(deltaProcessed)/dt, 0.35)

	waitSeconds := 0.0
	if depth > 0 {
		if state.throughputEWMA > 0.01 {
			waitSeconds = depth / state.throughputEWMA
		} else {
			waitSeconds = 5.0
		}
	}
	state.queueWaitEWMA = ewma(state.queueWaitEWMA, waitSeconds, 0.35)
	return queueRatio, state.queueWaitEWMA, hasQueueSignal
}

func queueTargets(nice string) (targetQueueRatio, targetQueueWait float64) {
	switch nice {
	case "low":
		return 0.20, 0.60
	case "medium":
		return 0.35, 0.40
	default:
		return 0.45, 0.30
	}
}

func currentCPUPercent() float64 {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		logger.Debugf("Auto-tune CPU percent unavailable: %v", err)
		return 0
	}
	return percents[0]
}

func defaultDispatchLimit(nice, diskType string) int {
	base := 40
	switch diskType {
	case "ssd":
		base = 60
	case "hdd":
		base = 20
	}
	switch nice {
	case "low":
		return min(base, 10)
	case "medium":
		return min(base, 30)
	default:
		return base
	}
}

func maxDispatchLimit(nice, diskType string) int {
	base := 400
	switch diskType {
	case "ssd":
		base = 600
	case "hdd":
		base = 200
	}
	switch nice {
	case "low":
		return min(base, 60)
	case "medium":
		return min(base, 250)
	default:
		return base
	}
}

func controlScale(nice string) float64 {
	switch nice {
	case "low":
		return 4
	case "medium":
		return 8
	default:
		return 12
	}
}

func newCPUPIDController(nice string) pidController {
	controller := pidController{
		kp:          0.07,
		ki:          0.012,
		kd:          0.03,
		minIntegral: -200,
		maxIntegral: 200,
		minOutput:   -3.5,
		maxOutput:   3.5,
	}
	switch nice {
	case "low":
		controller.kp = 0.05
		controller.ki = 0.009
		controller.kd = 0.02
	case "high":
		controller.kp = 0.085
		controller.ki = 0.015
		controller.kd = 0.04
	}
	return controller
}

func (p *pidController) Update(error, dt float64) float64 {
	if dt <= 0 {
		dt = 1
	}
	p.integral += error * dt
	p.integral = min(max(p.integral, p.minIntegral), p.maxIntegral)

	derivative := 0.0
	if p.hasPrev {
		derivative = (error - p.prevError) / dt
	}
	p.prevError = error
	p.hasPrev = true

	output := p.kp*error + p.ki*p.integral + p.kd*derivative
	return min(max(output, p.minOutput), p.maxOutput)
}

func ewma(current, sample, alpha float64) float64 {
	if current == 0 {
		return sample
	}
	return alpha*sample + (1-alpha)*current
}
