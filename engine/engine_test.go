package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pdfsift/artifact"
	"pdfsift/ingest"
	"pdfsift/output"
	"pdfsift/permission"
	"pdfsift/report"
	"pdfsift/toolrun"
)

// fakeTools answers for both tools based on the working copy's content:
// "code=<n>" picks the verifier exit code, "access=<list>" the UserAccess
// value exiftool reports.
type fakeTools struct {
	verifier string
	exiftool string

	mu            sync.Mutex
	verifierCalls int
	exiftoolCalls int
	spawnErr      error
}

func (f *fakeTools) Run(_ context.Context, name string, args ...string) (toolrun.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch name {
	case f.verifier:
		f.verifierCalls++
		if f.spawnErr != nil {
			return toolrun.Result{}, &toolrun.InvocationError{Name: name, Err: f.spawnErr}
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return toolrun.Result{}, err
		}
		code := 10
		for _, field := range strings.Fields(string(data)) {
			if strings.HasPrefix(field, "code=") {
				fmt.Sscanf(field, "code=%d", &code)
			}
		}
		return toolrun.Result{ExitCode: code}, nil
	case f.exiftool:
		f.exiftoolCalls++
		data, err := os.ReadFile(args[4])
		if err != nil {
			return toolrun.Result{}, err
		}
		for _, field := range strings.Fields(string(data)) {
			if strings.HasPrefix(field, "access=") {
				value := strings.TrimPrefix(field, "access=")
				return toolrun.Result{Stdout: []byte(fmt.Sprintf(`[{"SourceFile":%q,"UserAccess":%q}]`, args[4], value))}, nil
			}
		}
		return toolrun.Result{Stdout: []byte(fmt.Sprintf(`[{"SourceFile":%q}]`, args[4]))}, nil
	}
	return toolrun.Result{}, &toolrun.InvocationError{Name: name, Err: os.ErrNotExist}
}

func (f *fakeTools) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifierCalls, f.exiftoolCalls
}

var fixedNow = time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)

type harness struct {
	engine *Engine
	tools  *fakeTools
	store  *artifact.MemoryStore
	sink   *output.Recorder
	opts   Options
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	tools := &fakeTools{verifier: filepath.Join(bin, "verifier"), exiftool: filepath.Join(bin, "exiftool")}
	for _, p := range []string{tools.verifier, tools.exiftool} {
		if err := os.WriteFile(p, []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	h := &harness{tools: tools, store: artifact.NewMemoryStore(), sink: &output.Recorder{}}
	h.opts = Options{
		CaseName:     "Test Case",
		CaseDir:      filepath.Join(root, "case"),
		VerifierPath: tools.verifier,
		ExiftoolPath: tools.exiftool,
		Runner:       tools,
		Artifacts:    h.store,
		Sink:         h.sink,
		Now:          func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&h.opts)
	}
	h.engine = New(h.opts)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.engine.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
}

func memTask(p string, content string) ingest.Task {
	data := []byte(content)
	return ingest.Task{
		Path:       p,
		ParentPath: path.Dir(p) + "/",
		Name:       path.Base(p),
		Size:       int64(len(data)),
		Kind:       ingest.Regular,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func sized(p string, content string, size int64) ingest.Task {
	t := memTask(p, content)
	t.Size = size
	return t
}

func TestTenFileBatchSignedCount(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	tasks := []ingest.Task{
		sized("/img/docs/a.pdf", "code=0 "+strings.Repeat("x", 94), 100),
		sized("/img/docs/b.PDF", "code=35 "+strings.Repeat("y", 192), 200),
		sized("/img/docs/empty.pdf", "", 0),
		memTask("/img/docs/notes.txt", "hello"),
		memTask("/img/docs/photo.jpg", "jpg"),
		memTask("/img/docs/archive.zip", "zip"),
		memTask("/img/docs/pdf", "no extension"),
		memTask("/img/docs/report.pdf.bak", "bak"),
		memTask("/img/docs/data.csv", "csv"),
		memTask("/img/docs/readme.md", "md"),
	}
	eligible := 0
	for _, task := range tasks {
		if ingest.IsEligible(task) {
			eligible++
		}
	}
	if eligible != 2 {
		t.Fatalf("eligible = %d, want 2", eligible)
	}

	for _, task := range tasks {
		if res := h.engine.Process(context.Background(), task); res == ResultError {
			t.Fatalf("process %s: %v", task.Path, res)
		}
	}
	stats := h.engine.Store().Snapshot().Stats
	if stats.FilesSeen != 10 || stats.PDFFiles != 2 || stats.NonPDFFiles != 8 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.SignedFiles != 2 || stats.InsertedArtifacts != 2 {
		t.Fatalf("signed=%d inserted=%d, want 2 and 2", stats.SignedFiles, stats.InsertedArtifacts)
	}
	for _, p := range []string{"/img/docs/a.pdf", "/img/docs/b.PDF"} {
		got, _ := h.store.Existing(context.Background(), p, artifact.CategoryInterestingFile)
		if len(got) != 1 {
			t.Fatalf("expected one artifact for %s, got %d", p, len(got))
		}
		if v, _ := got[0].Attr("module"); v != ModuleName {
			t.Fatalf("module attribute = %q", v)
		}
	}
	a, _ := h.store.Existing(context.Background(), "/img/docs/a.pdf", artifact.CategoryInterestingFile)
	if label, _ := a[0].Attr(artifact.AttrSetName); label != "SIG_STAT_CODE_INFO_SIGNATURE_VALID" {
		t.Fatalf("label = %q", label)
	}
	if _, exif := h.tools.calls(); exif != 0 {
		t.Fatalf("signed files should not reach exiftool, got %d calls", exif)
	}
	if h.store.Notifications(artifact.CategoryInterestingFile) != 2 {
		t.Fatal("expected a notification per published artifact")
	}
	if len(h.sink.OfType(output.TypeSignature)) != 2 {
		t.Fatal("expected signature records on the sink")
	}
}

func TestPermissionPathwayRecordsRestrictedFile(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	res := h.engine.Process(context.Background(), memTask("/e/restricted.pdf", "code=10 access=print,copy"))
	if res != ResultOK {
		t.Fatalf("result = %v", res)
	}
	snap := h.engine.Store().Snapshot()
	row := snap.Permissions["/e/restricted.pdf"]
	if len(row) != 3 || row[0] != "False" || row[1] != "True" || row[2] != string(permission.AssembleOffModifyOff) {
		t.Fatalf("permission row = %v", row)
	}
	if snap.Stats.Classes[permission.AssembleOffModifyOff] != 1 || snap.Stats.InsertedArtifacts != 1 {
		t.Fatalf("unexpected stats: %+v", snap.Stats)
	}
	if snap.Stats.SignedFiles != 0 {
		t.Fatal("unsigned file counted as signed")
	}
	got, _ := h.store.Existing(context.Background(), "/e/restricted.pdf", artifact.CategoryInterestingFile)
	if len(got) != 1 {
		t.Fatalf("expected permission artifact, got %d", len(got))
	}
	if label, _ := got[0].Attr(artifact.AttrSetName); label != string(permission.AssembleOffModifyOff) {
		t.Fatalf("label = %q", label)
	}
	if sig := snap.Signatures["/e/restricted.pdf"]; len(sig) != 3 || sig[1] != "10" {
		t.Fatalf("signature row = %v", sig)
	}
}

func TestPermissionPathwayIgnoresUninterestingAccess(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	h.engine.Process(context.Background(), memTask("/e/open.pdf", "code=10 access=assemble,modify,print"))
	h.engine.Process(context.Background(), memTask("/e/plain.pdf", "code=10"))
	snap := h.engine.Store().Snapshot()
	if len(snap.Permissions) != 0 || snap.Stats.InsertedArtifacts != 0 {
		t.Fatalf("nothing should be recorded: %+v", snap)
	}
	if _, exif := h.tools.calls(); exif != 2 {
		t.Fatalf("exiftool calls = %d", exif)
	}
}

func TestSuppressDuplicates(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.SuppressDuplicates = true })
	h.start(t)
	ctx := context.Background()
	h.store.New(ctx, "/e/signed.pdf", artifact.CategoryInterestingFile)
	h.store.New(ctx, "/e/restricted.pdf", artifact.CategoryInterestingFile)

	h.engine.Process(ctx, memTask("/e/signed.pdf", "code=0"))
	h.engine.Process(ctx, memTask("/e/restricted.pdf", "code=10 access=print"))

	snap := h.engine.Store().Snapshot()
	if snap.Stats.InsertedArtifacts != 0 {
		t.Fatalf("inserted = %d, want 0", snap.Stats.InsertedArtifacts)
	}
	if snap.Stats.SignedFiles != 1 {
		t.Fatal("signed count is independent of publication")
	}
	if _, ok := snap.Signatures["/e/signed.pdf"]; !ok {
		t.Fatal("signature row must be recorded even when suppressed")
	}
	if len(snap.Permissions) != 0 {
		t.Fatal("suppressed permission pathway must not record")
	}
	if _, exif := h.tools.calls(); exif != 0 {
		t.Fatalf("suppressed files should skip exiftool, got %d calls", exif)
	}
	if h.store.Count("/e/signed.pdf") != 1 {
		t.Fatal("no new artifact expected")
	}
}

func TestDuplicatesAllowed(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ctx := context.Background()
	h.store.New(ctx, "/e/signed.pdf", artifact.CategoryInterestingFile)
	h.engine.Process(ctx, memTask("/e/signed.pdf", "code=20"))
	if h.store.Count("/e/signed.pdf") != 2 {
		t.Fatalf("expected a duplicate artifact, have %d", h.store.Count("/e/signed.pdf"))
	}
}

func TestCancelledContextHasNoSideEffects(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if res := h.engine.Process(ctx, memTask("/e/a.pdf", "code=0")); res != ResultCancelled {
		t.Fatalf("result = %v", res)
	}
	snap := h.engine.Store().Snapshot()
	if snap.Stats.FilesSeen != 0 || len(snap.Signatures) != 0 {
		t.Fatalf("cancelled file changed state: %+v", snap)
	}
	if v, _ := h.tools.calls(); v != 0 {
		t.Fatal("cancelled file must not spawn tools")
	}
}

func TestCancelAfterEntryCompletesFile(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task := memTask("/e/late.pdf", "code=0")
	open := task.Open
	task.Open = func() (io.ReadCloser, error) {
		cancel()
		return open()
	}
	if res := h.engine.Process(ctx, task); res != ResultOK {
		t.Fatalf("result = %v", res)
	}
	snap := h.engine.Store().Snapshot()
	if snap.Stats.PDFFiles != 1 || snap.Stats.SignedFiles != 1 || snap.Stats.InsertedArtifacts != 1 {
		t.Fatalf("unexpected stats: %+v", snap.Stats)
	}
	if row := snap.Signatures["/e/late.pdf"]; len(row) != 3 || row[1] != "0" {
		t.Fatalf("signature row = %v", row)
	}
	if v, _ := h.tools.calls(); v != 1 {
		t.Fatalf("verifier calls = %d", v)
	}
}

func TestNonFilesAreSkippedUncounted(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	for _, kind := range []ingest.Kind{ingest.Directory, ingest.UnallocatedBlocks, ingest.UnusedBlocks} {
		task := memTask("/e/x.pdf", "code=0")
		task.Kind = kind
		if res := h.engine.Process(context.Background(), task); res != ResultSkipped {
			t.Fatalf("%s: result = %v", kind, res)
		}
	}
	if h.engine.Store().Snapshot().Stats.FilesSeen != 0 {
		t.Fatal("non-files must not be counted")
	}
}

func TestCopyFailureLeavesPlaceholderRow(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.CreateCSV = true })
	h.start(t)
	task := memTask("/e/broken.pdf", "code=0")
	task.Open = func() (io.ReadCloser, error) { return nil, errors.New("unreadable sector") }
	if res := h.engine.Process(context.Background(), task); res != ResultError {
		t.Fatalf("result = %v", res)
	}
	sum := h.engine.Shutdown(context.Background())
	var signPath string
	for _, x := range sum.Exports {
		if x.Kind == report.Signatures {
			signPath = x.Path
		}
	}
	data, err := os.ReadFile(signPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "/e/broken.pdf;") || !strings.Contains(string(data), ";(empty);(empty)") {
		t.Fatalf("expected placeholder row, got:\n%s", data)
	}
}

func TestVerifierSpawnFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.tools.spawnErr = errors.New("exec format error")
	h.start(t)
	if res := h.engine.Process(context.Background(), memTask("/e/a.pdf", "code=0")); res != ResultError {
		t.Fatalf("result = %v", res)
	}
	if h.engine.Store().Snapshot().Stats.SignedFiles != 0 {
		t.Fatal("failed verification must not count as signed")
	}
}

func TestStartupFailureIsFatal(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.VerifierPath = filepath.Join(o.CaseDir, "missing-verifier")
		o.CreateCSV = true
	})
	err := h.engine.Startup(context.Background())
	var se *StartupError
	if !errors.As(err, &se) {
		t.Fatalf("expected StartupError, got %v", err)
	}
	if res := h.engine.Process(context.Background(), memTask("/e/a.pdf", "code=0")); res != ResultError {
		t.Fatalf("processing after a failed startup: %v", res)
	}
	sum := h.engine.Shutdown(context.Background())
	if len(sum.Lines) != 1 || !strings.HasPrefix(sum.Lines[0], "Got no results (Cannot find PDF verifier EXE") {
		t.Fatalf("summary = %v", sum.Lines)
	}
	if len(sum.Exports) != 0 {
		t.Fatal("no export after a fatal error")
	}
}

func TestStartupRejectsDirectoryAsExiftool(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.ExiftoolPath = o.CaseDir })
	os.MkdirAll(h.opts.CaseDir, 0o755)
	if err := h.engine.Startup(context.Background()); err == nil {
		t.Fatal("expected startup failure")
	}
	if !strings.HasPrefix(h.engine.Fatal(), "Cannot find ExifTool") {
		t.Fatalf("fatal = %q", h.engine.Fatal())
	}
}

func TestShutdownExportsBothTables(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.CreateCSV = true })
	h.start(t)
	h.engine.Process(context.Background(), memTask("/e/b.pdf", "code=0"))
	h.engine.Process(context.Background(), memTask("/e/a.pdf", "code=10 access=print,copy"))

	wantDir := filepath.Join(h.opts.CaseDir, ModuleDirName, "Test_Case")
	if h.engine.WorkDir() != wantDir {
		t.Fatalf("work dir = %s", h.engine.WorkDir())
	}

	sum := h.engine.Shutdown(context.Background())
	if len(sum.Exports) != 2 {
		t.Fatalf("exports = %+v", sum.Exports)
	}
	if !strings.HasPrefix(sum.Lines[0], "number of analyzed files 2 (2 PDF [1 signed PDF]) -- 2 inserted") {
		t.Fatalf("summary line = %s", sum.Lines[0])
	}
	if sum.Lines[1] != "number of permissions-based PDF files 1 (AssembleOFF_ModifyOFF=1,AssembleON_ModifyOFF=0,AssembleON_ModifyON=0,AssembleOFF_ModifyON=0)" {
		t.Fatalf("permissions line = %s", sum.Lines[1])
	}

	perms, err := os.ReadFile(filepath.Join(wantDir, "Test_Case_PERMS_20240517_093000.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(perms) != "#FullPath;EncryptFlag;UserAccessFlag;UserAccess_S\n/e/a.pdf;False;True;AssembleOFF_ModifyOFF\n" {
		t.Fatalf("perms export:\n%s", perms)
	}
	sign, err := os.ReadFile(filepath.Join(wantDir, "Test_Case_SIGN_20240517_093000.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(sign)), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "/e/a.pdf;") || !strings.HasPrefix(lines[2], "/e/b.pdf;") {
		t.Fatalf("sign export:\n%s", sign)
	}
	if len(h.sink.OfType(output.TypeSummary)) != 1 {
		t.Fatal("expected one summary record")
	}

	again := New(h.opts)
	if err := again.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := again.Shutdown(context.Background())
	for _, x := range second.Exports {
		if x.Status != report.AlreadyExists {
			t.Fatalf("second export of %s: %v", x.Path, x.Status)
		}
	}
	after, _ := os.ReadFile(filepath.Join(wantDir, "Test_Case_PERMS_20240517_093000.csv"))
	if string(after) != string(perms) {
		t.Fatal("existing export was overwritten")
	}
}

func TestDedupContentRunsToolsOnce(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.DedupContent = true })
	h.start(t)
	for _, p := range []string{"/e/one/copy.pdf", "/e/two/copy.pdf", "/e/three.pdf"} {
		h.engine.Process(context.Background(), memTask(p, "code=10 access=print"))
	}
	verifierCalls, exifCalls := h.tools.calls()
	if verifierCalls != 1 || exifCalls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", verifierCalls, exifCalls)
	}
	snap := h.engine.Store().Snapshot()
	if len(snap.Signatures) != 3 || len(snap.Permissions) != 3 {
		t.Fatalf("every path must still be recorded: %d %d", len(snap.Signatures), len(snap.Permissions))
	}
	if h.engine.Copies() != 3 {
		t.Fatalf("copies = %d", h.engine.Copies())
	}
}

func TestNameLogs(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.LogFileNames = true })
	h.start(t)
	h.engine.Process(context.Background(), memTask("/e/a.pdf", "code=10"))
	h.engine.Process(context.Background(), memTask("/e/b.txt", "x"))
	h.engine.Shutdown(context.Background())

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(h.opts.CaseDir, "Temp", name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return string(data)
	}
	if got := read("_log_name_EVERY.log.txt"); got != "0:'a.pdf'\n1:'b.txt'\n" {
		t.Fatalf("EVERY = %q", got)
	}
	if got := read("_log_name_COUNTED.log.txt"); got != "1:'a.pdf'\n2:'b.txt'\n" {
		t.Fatalf("COUNTED = %q", got)
	}
	if got := read("_log_name_PDF_files.log.txt"); got != "1:'a.pdf'\n" {
		t.Fatalf("PDF = %q", got)
	}
	if got := read("_log_name_NOT_PDF_files.log.txt"); got != "1:'b.txt'\n" {
		t.Fatalf("NOT_PDF = %q", got)
	}
}

func TestIndexFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.store.IndexErr = errors.New("index offline")
	h.start(t)
	if res := h.engine.Process(context.Background(), memTask("/e/a.pdf", "code=0")); res != ResultOK {
		t.Fatalf("result = %v", res)
	}
	if h.engine.Store().Snapshot().Stats.InsertedArtifacts != 1 {
		t.Fatal("artifact still counts as inserted")
	}
}

func TestArtifactAttributes(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.HashAlgorithms = []string{"sha256", "xxh64"}
		o.DocInfo = true
	})
	h.start(t)
	task := memTask("/e/a.pdf", "%PDF-1.4 code=0")
	task.ModTime = "2024-01-02T03:04:05Z"
	h.engine.Process(context.Background(), task)
	got, _ := h.store.Existing(context.Background(), "/e/a.pdf", artifact.CategoryInterestingFile)
	if len(got) != 1 {
		t.Fatal("expected one artifact")
	}
	for _, name := range []string{"file_name", "mod_time", "hash_sha256", "hash_xxh64"} {
		if v, ok := got[0].Attr(name); !ok || v == "" {
			t.Errorf("missing attribute %s", name)
		}
	}
	if v, _ := got[0].Attr("mime_type"); v != "application/pdf" {
		t.Errorf("mime_type = %q", v)
	}
}

func TestConcurrentProcessing(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	const files = 64
	var wg sync.WaitGroup
	for i := 0; i < files; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := "code=10 access=print"
			if i%2 == 0 {
				content = fmt.Sprintf("code=%d", 20+i%40)
			}
			h.engine.Process(context.Background(), memTask(fmt.Sprintf("/e/%02d/f.pdf", i), content))
		}(i)
	}
	wg.Wait()
	snap := h.engine.Store().Snapshot()
	if snap.Stats.PDFFiles != files || snap.Stats.SignedFiles != files/2 {
		t.Fatalf("unexpected stats: %+v", snap.Stats)
	}
	if snap.Stats.InsertedArtifacts != files || len(snap.Permissions) != files/2 {
		t.Fatalf("inserted=%d perms=%d", snap.Stats.InsertedArtifacts, len(snap.Permissions))
	}
	if h.engine.Completed() != files || len(h.engine.InFlight()) != 0 {
		t.Fatal("in-flight tracking out of sync")
	}
}

func TestVerboseExecLogs(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.VerboseExec = true })
	h.start(t)
	h.engine.Process(context.Background(), memTask("/e/a.pdf", "code=0"))
	out, err := os.ReadFile(filepath.Join(h.opts.CaseDir, "Temp", "out_is_signed_00001.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(out), "ret_verifier=0") {
		t.Fatalf("out log = %q", out)
	}
}
