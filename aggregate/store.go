// Package aggregate holds the per-run result tables and counters shared by
// all workers.
package aggregate

import (
	"strconv"
	"sync"

	"pdfsift/permission"
	"pdfsift/verdict"
)

// Row is one table entry in column order. Rows may be shorter than the
// table header while a file is still being processed.
type Row []string

// Table maps an original path to its row.
type Table map[string]Row

func (t Table) clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = append(Row(nil), v...)
	}
	return out
}

// StatKey names a run counter.
type StatKey int

const (
	FilesSeen StatKey = iota
	PDFFiles
	NonPDFFiles
	SignedFiles
	InsertedArtifacts
	numStats
)

func (k StatKey) String() string {
	switch k {
	case FilesSeen:
		return "files_seen"
	case PDFFiles:
		return "pdf_files"
	case NonPDFFiles:
		return "non_pdf_files"
	case SignedFiles:
		return "signed_files"
	case InsertedArtifacts:
		return "inserted_artifacts"
	default:
		return "unknown"
	}
}

// Stats is a copy of the run counters.
type Stats struct {
	FilesSeen         int64
	PDFFiles          int64
	NonPDFFiles       int64
	SignedFiles       int64
	InsertedArtifacts int64
	Classes           map[permission.Class]int64
}

// PermissionFiles is the sum of the class histogram.
func (s Stats) PermissionFiles() int64 {
	var n int64
	for _, v := range s.Classes {
		n += v
	}
	return n
}

// Snapshot is a deep copy of the store.
type Snapshot struct {
	Signatures  Table
	Permissions Table
	Stats       Stats
}

// Store is safe for concurrent use. mu guards signatures, permissions,
// counters and classes. No I/O happens while it is held.
type Store struct {
	mu          sync.Mutex
	signatures  Table
	permissions Table
	counters    [numStats]int64
	classes     map[permission.Class]int64
}

func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.signatures = make(Table)
	s.permissions = make(Table)
	s.counters = [numStats]int64{}
	s.classes = make(map[permission.Class]int64, len(permission.Classes))
	for _, c := range permission.Classes {
		s.classes[c] = 0
	}
}

// Reset discards everything recorded so far.
func (s *Store) Reset() {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
}

// RecordWorkingCopy starts a signature row with only the working path.
func (s *Store) RecordWorkingCopy(path, working string) {
	s.mu.Lock()
	s.signatures[path] = Row{working}
	s.mu.Unlock()
}

// RecordSignature replaces the signature row for path.
func (s *Store) RecordSignature(path, working string, code verdict.Code) {
	row := Row{working, strconv.Itoa(int(code)), verdict.Label(code)}
	s.mu.Lock()
	s.signatures[path] = row
	s.mu.Unlock()
}

// RecordPermission replaces the permission row for path.
func (s *Store) RecordPermission(path string, encrypted, accessPresent bool, class permission.Class) {
	row := Row{permission.BoolString(encrypted), permission.BoolString(accessPresent), string(class)}
	s.mu.Lock()
	s.permissions[path] = row
	s.mu.Unlock()
}

func (s *Store) Increment(key StatKey) {
	s.Add(key)
}

// Add increments key and returns the new value.
func (s *Store) Add(key StatKey) int64 {
	if key < 0 || key >= numStats {
		return 0
	}
	s.mu.Lock()
	s.counters[key]++
	n := s.counters[key]
	s.mu.Unlock()
	return n
}

// Value reads one counter.
func (s *Store) Value(key StatKey) int64 {
	if key < 0 || key >= numStats {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key]
}

func (s *Store) IncrementClass(class permission.Class) {
	s.mu.Lock()
	s.classes[class]++
	s.mu.Unlock()
}

// Snapshot copies both tables and the counters under the lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	classes := make(map[permission.Class]int64, len(s.classes))
	for k, v := range s.classes {
		classes[k] = v
	}
	return Snapshot{
		Signatures:  s.signatures.clone(),
		Permissions: s.permissions.clone(),
		Stats: Stats{
			FilesSeen:         s.counters[FilesSeen],
			PDFFiles:          s.counters[PDFFiles],
			NonPDFFiles:       s.counters[NonPDFFiles],
			SignedFiles:       s.counters[SignedFiles],
			InsertedArtifacts: s.counters[InsertedArtifacts],
			Classes:           classes,
		},
	}
}
