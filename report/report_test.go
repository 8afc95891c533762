package report

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pdfsift/aggregate"
	"pdfsift/permission"
)

func TestExportSortedWithPlaceholders(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "sign.csv")
	table := aggregate.Table{
		"/z/b.pdf": {"/w/_z_b.pdf", "0", "SIG_STAT_CODE_INFO_SIGNATURE_VALID"},
		"/a/a.pdf": {"/w/_a_a.pdf"},
	}
	status, err := Export(table, SignatureHeader, dest)
	if err != nil || status != Written {
		t.Fatalf("export = %v %v", status, err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	want := "#FullPath;TmpPath;SignedCode;SignedCodeString\n" +
		"/a/a.pdf;/w/_a_a.pdf;(empty);(empty)\n" +
		"/z/b.pdf;/w/_z_b.pdf;0;SIG_STAT_CODE_INFO_SIGNATURE_VALID\n"
	if string(data) != want {
		t.Fatalf("export content:\n%s\nwant:\n%s", data, want)
	}
}

func TestExportRefusesOverwrite(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "perms.csv")
	first := aggregate.Table{"/a.pdf": {"True", "True", "AssembleOFF_ModifyOFF"}}
	if _, err := Export(first, PermissionHeader, dest); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(dest)

	second := aggregate.Table{"/b.pdf": {"False", "True", "AssembleON_ModifyOFF"}}
	status, err := Export(second, PermissionHeader, dest)
	if err != nil {
		t.Fatalf("second export: %v", err)
	}
	if status != AlreadyExists {
		t.Fatalf("status = %v", status)
	}
	after, _ := os.ReadFile(dest)
	if string(before) != string(after) {
		t.Fatal("existing export was modified")
	}
}

func TestExportEmptyTable(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "empty.csv")
	if _, err := Export(aggregate.Table{}, PermissionHeader, dest); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "#FullPath;EncryptFlag;UserAccessFlag;UserAccess_S\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestExportBadDestination(t *testing.T) {
	_, err := Export(aggregate.Table{}, SignatureHeader, filepath.Join(t.TempDir(), "missing", "x.csv"))
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

type failingFile struct{ *os.File }

var errDiskFull = errors.New("no space left on device")

func (failingFile) Write([]byte) (int, error) { return 0, errDiskFull }

func TestExportFailureRemovesPartialFile(t *testing.T) {
	orig := openExclusive
	t.Cleanup(func() { openExclusive = orig })
	openExclusive = func(dest string) (io.WriteCloser, error) {
		f, err := orig(dest)
		if err != nil {
			return nil, err
		}
		return failingFile{f.(*os.File)}, nil
	}

	dest := filepath.Join(t.TempDir(), "sign.csv")
	table := aggregate.Table{"/a.pdf": {"/w/_a.pdf", "0", "SIG_STAT_CODE_INFO_SIGNATURE_VALID"}}
	_, err := Export(table, SignatureHeader, dest)
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected write failure, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatal("failed export left a partial file")
	}

	openExclusive = orig
	if status, err := Export(table, SignatureHeader, dest); err != nil || status != Written {
		t.Fatalf("retry: %v %v", status, err)
	}
}

func TestFileName(t *testing.T) {
	at := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	if got := FileName("My Case 1", Signatures, at); got != "My_Case_1_SIGN_20240309_070501.csv" {
		t.Fatalf("FileName = %s", got)
	}
	if got := FileName("c", Permissions, at); got != "c_PERMS_20240309_070501.csv" {
		t.Fatalf("FileName = %s", got)
	}
}

func TestSummaryLines(t *testing.T) {
	stats := aggregate.Stats{
		FilesSeen: 10, PDFFiles: 2, SignedFiles: 2, InsertedArtifacts: 3,
		Classes: map[permission.Class]int64{permission.AssembleOffModifyOff: 1},
	}
	line := AnalyzedLine(stats, 1500*time.Millisecond)
	if line != "number of analyzed files 10 (2 PDF [2 signed PDF]) -- 3 inserted (1.500000 secs)" {
		t.Fatalf("AnalyzedLine = %s", line)
	}
	perms := PermissionsLine(stats)
	if !strings.HasPrefix(perms, "number of permissions-based PDF files 1 (AssembleOFF_ModifyOFF=1,AssembleON_ModifyOFF=0,") {
		t.Fatalf("PermissionsLine = %s", perms)
	}
	if FatalLine("boom") != "Got no results (boom)" {
		t.Fatal("unexpected fatal line")
	}
}
