package toolrun

import (
	"fmt"
	"os"
)

// CheckExecutable fails unless path names a regular file.
func CheckExecutable(path string) error {
	if path == "" {
		return fmt.Errorf("no executable configured")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("executable %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("executable %s is not a file", path)
	}
	warnIfNotExecutable(path)
	return nil
}
