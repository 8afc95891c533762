// Package fuzzy provides similarity digests for published artifacts.
package fuzzy

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// Hasher computes a similarity digest from a stream.
type Hasher interface {
	Name() string
	Hash(r io.Reader) (string, error)
}

var (
	mu       sync.RWMutex
	registry = map[string]Hasher{}
)

// Register adds a fuzzy hasher to the registry.
func Register(h Hasher) {
	if h == nil {
		return
	}
	mu.Lock()
	registry[strings.ToLower(h.Name())] = h
	mu.Unlock()
}

// Lookup returns a registered hasher by name.
func Lookup(name string) (Hasher, bool) {
	mu.RLock()
	defer mu.RUnlock()
	h, ok := registry[strings.ToLower(name)]
	return h, ok
}

// Available returns the sorted names of registered hashers.
func Available() []string {
	mu.RLock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	mu.RUnlock()
	sort.Strings(names)
	return names
}

// HashFile digests at most maxBytes of path with the named hasher. A
// maxBytes of zero reads the whole file.
func HashFile(name, path string, maxBytes int64) (string, error) {
	h, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown fuzzy hash %q", name)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes)
	}
	return h.Hash(r)
}
