// Package workcopy materializes file content into the run's working
// directory so the external tools can be pointed at a local path.
package workcopy

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
	"lukechampine.com/blake3"

	"pdfsift/ingest"
	"pdfsift/logger"
)

// CopyError reports a failure to read the source stream or write the
// destination.
type CopyError struct {
	Path string
	Dest string
	Err  error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy %s to %s: %v", e.Path, e.Dest, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// The escapes run first so the separator replacement stays reversible.
var flattener = strings.NewReplacer(
	"%", "%25",
	"_", "%5F",
	`\`, "%5C",
	":", "%3A",
	"/", "_",
)

// Flatten turns a path into a single file name component. Distinct inputs
// always produce distinct outputs.
func Flatten(p string) string {
	return flattener.Replace(p)
}

// maxNameBytes is the usual NAME_MAX of the working directory's filesystem.
const maxNameBytes = 255

// digestMarker never appears in Flatten output since every literal "%" is
// escaped, so shortened names can't collide with regular ones.
const digestMarker = "%~"

// shorten keeps flat when it fits in one name component. Longer names keep a
// prefix, a digest of the whole flattened path and the original extension.
func shorten(flat, name string) string {
	if len(flat) <= maxNameBytes {
		return flat
	}
	sum := blake3.Sum256([]byte(flat))
	suffix := digestMarker + hex.EncodeToString(sum[:16])
	if ext := filepath.Ext(name); len(ext) <= 16 {
		suffix += Flatten(ext)
	}
	cut := maxNameBytes - len(suffix)
	for cut > 0 && !utf8.RuneStart(flat[cut]) {
		cut--
	}
	return flat[:cut] + suffix
}

// Cache maps source paths to working copies under Dir.
type Cache struct {
	Dir string

	group  singleflight.Group
	copies atomic.Int64
}

// New returns a cache rooted at dir. The directory must already exist.
func New(dir string) *Cache {
	return &Cache{Dir: dir}
}

// DestPath is a pure function of the task's parent path and name. The base
// name never exceeds maxNameBytes.
func (c *Cache) DestPath(task ingest.Task) string {
	parent := task.ParentPath
	if parent != "" && !strings.HasSuffix(parent, "/") && !strings.HasSuffix(parent, `\`) {
		parent += "/"
	}
	return filepath.Join(c.Dir, shorten(Flatten(parent+task.Name), task.Name))
}

// Copies reports how many byte copies were actually performed.
func (c *Cache) Copies() int64 {
	return c.copies.Load()
}

// Materialize makes sure the task's bytes exist at DestPath and returns that
// path. An existing destination is reused without copying. Concurrent calls
// for the same destination share a single copy.
func (c *Cache) Materialize(ctx context.Context, task ingest.Task) (string, error) {
	dest := c.DestPath(task)
	if fileExists(dest) {
		logger.Debugf("working copy already present: %s", dest)
		return dest, nil
	}
	if err := ctx.Err(); err != nil {
		return "", &CopyError{Path: task.Path, Dest: dest, Err: err}
	}
	_, err, _ := c.group.Do(dest, func() (interface{}, error) {
		if fileExists(dest) {
			return nil, nil
		}
		if err := c.copyTo(task, dest); err != nil {
			return nil, err
		}
		c.copies.Add(1)
		return nil, nil
	})
	if err != nil {
		return "", &CopyError{Path: task.Path, Dest: dest, Err: err}
	}
	return dest, nil
}

func (c *Cache) copyTo(task ingest.Task, dest string) error {
	if task.Open == nil {
		return errors.New("no content stream")
	}
	src, err := task.Open()
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".partial-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write working copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close working copy: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish working copy: %w", err)
	}
	return nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
