// Package systeminfo describes the examiner host a run executes on, so the
// exported findings can be tied back to the machine and tool build that
// produced them.
package systeminfo

import (
	"context"
	"os"
	"runtime"

	"pdfsift/logger"
	"pdfsift/version"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

type Host struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty"`
	Arch            string `json:"arch"`
	LogicalCPUs     int    `json:"logical_cpus"`
	TotalMemory     uint64 `json:"total_memory,omitempty"`
	ToolVersion     string `json:"tool_version"`
}

// Collect never fails; fields gopsutil cannot provide fall back to the Go
// runtime's view or stay empty.
func Collect(ctx context.Context) Host {
	h := Host{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		LogicalCPUs: runtime.NumCPU(),
		ToolVersion: version.Version,
	}
	if info, err := host.InfoWithContext(ctx); err == nil {
		h.Hostname = info.Hostname
		h.Platform = info.Platform
		h.PlatformVersion = info.PlatformVersion
		h.KernelVersion = info.KernelVersion
		if info.KernelArch != "" {
			h.Arch = info.KernelArch
		}
	} else {
		logger.Debugf("host info unavailable: %v", err)
	}
	if h.Hostname == "" {
		h.Hostname, _ = os.Hostname()
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		h.LogicalCPUs = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.TotalMemory = vm.Total
	}
	return h
}

// Fields flattens h for a log entry or an emitted record.
func (h Host) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"hostname":     h.Hostname,
		"os":           h.OS,
		"arch":         h.Arch,
		"logical_cpus": int64(h.LogicalCPUs),
		"tool_version": h.ToolVersion,
	}
	if h.Platform != "" {
		fields["platform"] = h.Platform
	}
	if h.PlatformVersion != "" {
		fields["platform_version"] = h.PlatformVersion
	}
	if h.KernelVersion != "" {
		fields["kernel_version"] = h.KernelVersion
	}
	if h.TotalMemory > 0 {
		fields["total_memory"] = int64(h.TotalMemory)
	}
	return fields
}
