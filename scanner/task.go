package scanner

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"pdfsift/ingest"
	"pdfsift/logger"
)

// newTask describes a walked entry. Entries that are neither directories nor
// regular files (links, devices, sockets) are not analyzed.
func newTask(path string, d fs.DirEntry) (ingest.Task, bool) {
	var kind ingest.Kind
	switch {
	case d.IsDir():
		kind = ingest.Directory
	case d.Type().IsRegular():
		kind = ingest.Regular
	default:
		logger.Debugf("skipping %s: %s", path, d.Type())
		return ingest.Task{}, false
	}
	info, err := d.Info()
	if err != nil {
		logger.Warnf("Failed to stat %s: %v", path, err)
		return ingest.Task{}, false
	}

	task := ingest.Task{
		Path:       path,
		ParentPath: filepath.Dir(path) + string(filepath.Separator),
		Name:       d.Name(),
		Kind:       kind,
		ModTime:    info.ModTime().UTC().Format(time.RFC3339),
	}
	if kind == ingest.Regular {
		task.Size = info.Size()
		task.CreationTime = creationTime(path)
		task.Open = func() (io.ReadCloser, error) {
			return os.Open(path)
		}
	}
	return task, true
}
