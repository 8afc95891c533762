//go:build unix

package toolrun

import (
	"golang.org/x/sys/unix"

	"pdfsift/logger"
)

func warnIfNotExecutable(path string) {
	if err := unix.Access(path, unix.X_OK); err != nil {
		logger.Warnf("%s is not executable by this user: %v", path, err)
	}
}
