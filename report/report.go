// Package report writes the signature and permission tables to
// `;`-separated files and formats the end-of-run summary.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"pdfsift/aggregate"
	"pdfsift/permission"
)

// Placeholder stands in for a column that was never filled.
const Placeholder = "(empty)"

const timestampLayout = "20060102_150405"

var (
	SignatureHeader  = []string{"#FullPath", "TmpPath", "SignedCode", "SignedCodeString"}
	PermissionHeader = []string{"#FullPath", "EncryptFlag", "UserAccessFlag", "UserAccess_S"}
)

// Status tells whether Export wrote a new file.
type Status int

const (
	Written Status = iota
	AlreadyExists
)

func (s Status) String() string {
	if s == AlreadyExists {
		return "already exists"
	}
	return "written"
}

// Kind selects one of the two report tables.
type Kind string

const (
	Signatures  Kind = "SIGN"
	Permissions Kind = "PERMS"
)

// FileName returns `<case>_<kind>_<YYYYmmdd_HHMMSS>.csv`.
func FileName(caseName string, kind Kind, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s.csv", strings.ReplaceAll(caseName, " ", "_"), kind, at.Format(timestampLayout))
}

// openExclusive creates dest, failing with fs.ErrExist when it is present.
var openExclusive = func(dest string) (io.WriteCloser, error) {
	return os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

// Export writes header and the table rows sorted by key to dest. An existing
// dest is left untouched and reported as AlreadyExists. A failed export
// removes the partial file.
func Export(table aggregate.Table, header []string, dest string) (Status, error) {
	f, err := openExclusive(dest)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return AlreadyExists, nil
		}
		return Written, fmt.Errorf("create %s: %w", dest, err)
	}
	err = writeTable(f, table, header)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", dest, cerr)
	}
	if err != nil {
		os.Remove(dest)
		return Written, err
	}
	return Written, nil
}

func writeTable(out io.Writer, table aggregate.Table, header []string) error {
	w := csv.NewWriter(out)
	w.Comma = ';'
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	record := make([]string, len(header))
	for _, k := range keys {
		fillRecord(record, k, table[k])
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", k, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func fillRecord(record []string, key string, row aggregate.Row) {
	record[0] = key
	for i := 1; i < len(record); i++ {
		v := ""
		if i-1 < len(row) {
			v = row[i-1]
		}
		if v == "" {
			v = Placeholder
		}
		record[i] = v
	}
}

// AnalyzedLine is the first summary line.
func AnalyzedLine(s aggregate.Stats, elapsed time.Duration) string {
	return fmt.Sprintf("number of analyzed files %d (%d PDF [%d signed PDF]) -- %d inserted (%f secs)",
		s.FilesSeen, s.PDFFiles, s.SignedFiles, s.InsertedArtifacts, elapsed.Seconds())
}

// PermissionsLine is the second summary line with the class histogram.
func PermissionsLine(s aggregate.Stats) string {
	return fmt.Sprintf("number of permissions-based PDF files %d (%s=%d,%s=%d,%s=%d,%s=%d)",
		s.PermissionFiles(),
		permission.AssembleOffModifyOff, s.Classes[permission.AssembleOffModifyOff],
		permission.AssembleOnModifyOff, s.Classes[permission.AssembleOnModifyOff],
		permission.AssembleOnModifyOn, s.Classes[permission.AssembleOnModifyOn],
		permission.AssembleOffModifyOn, s.Classes[permission.AssembleOffModifyOn],
	)
}

// FatalLine replaces the summary when startup failed.
func FatalLine(msg string) string {
	return fmt.Sprintf("Got no results (%s)", msg)
}
