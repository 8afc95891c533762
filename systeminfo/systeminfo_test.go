package systeminfo

import (
	"context"
	"runtime"
	"testing"

	"pdfsift/logger"
	"pdfsift/version"
)

func init() {
	logger.Init("error")
}

func TestCollect(t *testing.T) {
	h := Collect(context.Background())
	if h.OS != runtime.GOOS {
		t.Fatalf("unexpected os: %s", h.OS)
	}
	if h.LogicalCPUs < 1 {
		t.Fatalf("unexpected cpu count: %d", h.LogicalCPUs)
	}
	if h.ToolVersion != version.Version {
		t.Fatalf("unexpected tool version: %s", h.ToolVersion)
	}
}

func TestFieldsOmitsEmptyValues(t *testing.T) {
	f := Host{Hostname: "lab-01", OS: "linux", Arch: "amd64", LogicalCPUs: 8, ToolVersion: "1.2.0"}.Fields()
	if f["hostname"] != "lab-01" || f["logical_cpus"] != int64(8) {
		t.Fatalf("unexpected fields: %v", f)
	}
	for _, k := range []string{"platform", "platform_version", "kernel_version", "total_memory"} {
		if _, ok := f[k]; ok {
			t.Errorf("empty %s must be omitted", k)
		}
	}
}
