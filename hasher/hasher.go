// Package hasher computes content digests of working copies. Digests are
// attached to published artifacts and key the content dedup memo.
package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/mmap"
	"lukechampine.com/blake3"

	"pdfsift/logger"
)

const (
	bufferSize = 128 * 1024
	// Files at least this large are read through a memory mapping.
	mmapThreshold = 4 * 1024 * 1024
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, bufferSize)
		return &buf
	},
}

var openMmap = mmap.Open

// Supported lists the algorithm names accepted by ComputeHashes.
var Supported = []string{"md5", "sha1", "sha256", "blake3", "xxh64"}

func newHash(algo string) hash.Hash {
	switch algo {
	case "md5":
		return md5.New()
	case "sha1":
		return sha1.New()
	case "sha256":
		return sha256.New()
	case "blake3":
		return blake3.New(32, nil)
	case "xxh64":
		return xxhash.New()
	}
	return nil
}

// IsSupported reports whether algo is a known digest name.
func IsSupported(algo string) bool {
	return newHash(strings.ToLower(algo)) != nil
}

// ComputeHashes reads path once and returns the hex digest for every
// supported algorithm. Unknown names are skipped with a warning.
func ComputeHashes(path string, algorithms []string) map[string]string {
	hashes := make(map[string]string, len(algorithms))

	type entry struct {
		name string
		h    hash.Hash
	}
	entries := make([]entry, 0, len(algorithms))
	seen := make(map[string]struct{}, len(algorithms))
	for _, algo := range algorithms {
		algo = strings.ToLower(strings.TrimSpace(algo))
		if _, ok := seen[algo]; ok {
			continue
		}
		h := newHash(algo)
		if h == nil {
			logger.Warnf("Unsupported hash algorithm: %s", algo)
			continue
		}
		seen[algo] = struct{}{}
		entries = append(entries, entry{name: algo, h: h})
	}
	if len(entries) == 0 {
		return hashes
	}

	writers := make([]io.Writer, len(entries))
	for i := range entries {
		writers[i] = entries[i].h
	}
	if err := feed(path, io.MultiWriter(writers...)); err != nil {
		logger.Warnf("Failed to compute hashes for %s: %v", path, err)
		return hashes
	}
	for _, e := range entries {
		hashes[e.name] = hex.EncodeToString(e.h.Sum(nil))
	}
	return hashes
}

// Blake3 returns the blake3-256 digest of the file at path.
func Blake3(path string) (string, error) {
	h := blake3.New(32, nil)
	if err := feed(path, h); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func feed(path string, w io.Writer) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)

	if info.Size() >= mmapThreshold {
		r, err := openMmap(path)
		if err == nil {
			defer r.Close()
			_, err = io.CopyBuffer(w, io.NewSectionReader(r, 0, int64(r.Len())), *bufPtr)
			return err
		}
		logger.Debugf("mmap of %s failed, falling back to read: %v", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()
	_, err = io.CopyBuffer(w, f, *bufPtr)
	return err
}
