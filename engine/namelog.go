package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pdfsift/logger"
)

type nameLogKind int

const (
	logEvery nameLogKind = iota
	logCounted
	logPDF
	logNotPDF
	numNameLogs
)

var nameLogFiles = [numNameLogs]string{
	logEvery:   "_log_name_EVERY.log.txt",
	logCounted: "_log_name_COUNTED.log.txt",
	logPDF:     "_log_name_PDF_files.log.txt",
	logNotPDF:  "_log_name_NOT_PDF_files.log.txt",
}

// nameLogs appends `<n>:'<name>'` lines to four diagnostic files. A nil
// *nameLogs discards everything.
type nameLogs struct {
	mu    sync.Mutex
	files [numNameLogs]*os.File
}

func openNameLogs(dir string) (*nameLogs, error) {
	nl := &nameLogs{}
	for i, name := range nameLogFiles {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			nl.Close()
			return nil, err
		}
		nl.files[i] = f
	}
	return nl, nil
}

func (nl *nameLogs) write(kind nameLogKind, n int64, name string) {
	if nl == nil {
		return
	}
	nl.mu.Lock()
	defer nl.mu.Unlock()
	f := nl.files[kind]
	if f == nil {
		return
	}
	if _, err := fmt.Fprintf(f, "%d:'%s'\n", n, name); err != nil {
		logger.Debugf("name log write failed: %v", err)
	}
}

func (nl *nameLogs) Close() {
	if nl == nil {
		return
	}
	nl.mu.Lock()
	defer nl.mu.Unlock()
	for i, f := range nl.files {
		if f != nil {
			f.Close()
			nl.files[i] = nil
		}
	}
}
