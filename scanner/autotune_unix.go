//go:build !windows

package scanner

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// detectDiskType reports "ssd", "hdd" or "unknown" from the first block
// device that exposes its rotational flag.
func detectDiskType() string {
	switch runtime.GOOS {
	case "darwin":
		return "ssd"
	case "linux":
	default:
		return "unknown"
	}
	entries, err := os.ReadDir("/sys/block")
	if err != nil {
		return "unknown"
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") {
			continue
		}
		b, err := os.ReadFile(filepath.Join("/sys/block", name, "queue", "rotational"))
		if err != nil {
			continue
		}
		switch strings.TrimSpace(string(b)) {
		case "1":
			return "hdd"
		case "0":
			return "ssd"
		}
	}
	return "unknown"
}
