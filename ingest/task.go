// Package ingest describes the filesystem entries handed to the engine and
// decides which of them are worth analyzing.
package ingest

import (
	"io"
	"path/filepath"
	"strings"

	"pdfsift/logger"
)

// Kind mirrors the entry types a forensic host reports. Only Regular entries
// carry analyzable content.
type Kind int

const (
	Regular Kind = iota
	Directory
	UnallocatedBlocks
	UnusedBlocks
)

func (k Kind) String() string {
	switch k {
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	case UnallocatedBlocks:
		return "unalloc_blocks"
	case UnusedBlocks:
		return "unused_blocks"
	default:
		return "unknown"
	}
}

// Task is one entry enumerated by the host. Path is unique within a run.
type Task struct {
	Path         string
	ParentPath   string
	Name         string
	Size         int64
	Kind         Kind
	ModTime      string
	CreationTime string
	Open         func() (io.ReadCloser, error)
}

// IsFile reports whether the entry is a real allocated file.
func (t Task) IsFile() bool {
	return t.Kind == Regular
}

// Extension returns the lower-cased extension without the dot. Leading dots
// mark hidden files, so ".pdf" has no extension.
func (t Task) Extension() string {
	name := strings.TrimLeft(t.Name, ".")
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// IsEligible is a purely syntactic filter: allocated regular file, non-empty,
// with a "pdf" extension in any case. File headers are never inspected.
func IsEligible(t Task) bool {
	if !t.IsFile() {
		return false
	}
	if logger.IsDebug() {
		ext := filepath.Ext(t.Name)
		logger.Debugf("[%s] basename = '%s', extension = '%s'", t.Name, strings.TrimSuffix(t.Name, ext), ext)
	}
	if t.Size == 0 {
		return false
	}
	ext := t.Extension()
	if ext == "" {
		return false
	}
	return ext == "pdf"
}
