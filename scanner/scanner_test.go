package scanner

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"pdfsift/config"
	"pdfsift/engine"
	"pdfsift/ingest"
	"pdfsift/logger"
	"pdfsift/toolrun"
)

func init() {
	logger.Init("error")
}

type recorder struct {
	mu    sync.Mutex
	tasks map[string]ingest.Task
}

func (r *recorder) Process(_ context.Context, task ingest.Task) engine.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks == nil {
		r.tasks = map[string]ingest.Task{}
	}
	r.tasks[task.Path] = task
	if task.IsFile() {
		return engine.ResultOK
	}
	return engine.ResultSkipped
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, t := range r.tasks {
		out = append(out, t.Name)
	}
	sort.Strings(out)
	return out
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func testConfig(root string) *config.Config {
	return &config.Config{
		StartPaths:       []string{root},
		CaseDir:          root,
		TempDir:          filepath.Join(root, "Temp"),
		ConcurrencyLevel: 3,
		ConcurrencySet:   true,
		NiceLevel:        "medium",
		SkipCount:        true,
	}
}

func TestScanDispatchesEntriesAndSkipsModuleDirs(t *testing.T) {
	t.Setenv("PDFSIFT_DISABLE_PROGRESS", "1")
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/report.pdf":                 "%PDF-1.7",
		"a/notes.txt":                  "notes",
		"b/.keep":                      "",
		"SignedPDFs/case/copy.pdf":     "working copy",
		"Temp/_log_name_EVERY.log.txt": "0:'x'",
	})

	rec := &recorder{}
	sum, err := Scan(context.Background(), testConfig(root), rec)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{".keep", "a", "b", filepath.Base(root), "notes.txt", "report.pdf"}
	sort.Strings(want)
	if got := rec.names(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("dispatched %v, want %v", got, want)
	}
	if sum.Dispatched != 6 || sum.OK != 3 || sum.Skipped != 3 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	pdf := rec.tasks[filepath.Join(root, "a", "report.pdf")]
	if pdf.Kind != ingest.Regular || pdf.Size != 8 || pdf.ModTime == "" {
		t.Fatalf("unexpected task: %+v", pdf)
	}
	if pdf.ParentPath != filepath.Join(root, "a")+string(filepath.Separator) {
		t.Fatalf("unexpected parent path: %s", pdf.ParentPath)
	}
	rc, err := pdf.Open()
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "%PDF-1.7" {
		t.Fatalf("unexpected content: %q", data)
	}
	if dir := rec.tasks[filepath.Join(root, "b")]; dir.Kind != ingest.Directory || dir.Open != nil {
		t.Fatalf("unexpected directory task: %+v", dir)
	}
}

func TestScanAppliesIncludePatternsToFilesOnly(t *testing.T) {
	t.Setenv("PDFSIFT_DISABLE_PROGRESS", "1")
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"docs/a.pdf": "a",
		"docs/b.doc": "b",
		"docs/c.PDF": "c",
	})
	cfg := testConfig(root)
	cfg.IncludePatterns = []string{"*.pdf", "*.PDF"}
	cfg.ExcludePatterns = []string{"c.PDF"}

	rec := &recorder{}
	if _, err := Scan(context.Background(), cfg, rec); err != nil {
		t.Fatalf("scan: %v", err)
	}
	got := strings.Join(rec.names(), ",")
	want := []string{"a.pdf", "docs", filepath.Base(root)}
	sort.Strings(want)
	if got != strings.Join(want, ",") {
		t.Fatalf("dispatched %s", got)
	}
}

func TestScanCancelled(t *testing.T) {
	t.Setenv("PDFSIFT_DISABLE_PROGRESS", "1")
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.pdf": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recorder{}
	sum, err := Scan(ctx, testConfig(root), rec)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if sum.Dispatched != 0 {
		t.Fatalf("nothing should be dispatched: %+v", sum)
	}
}

func TestCountEntries(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"x/one.pdf":            "1",
		"x/two.txt":            "2",
		"SignedPDFs/c/one.pdf": "1",
	})
	skip := []string{filepath.Join(root, "SignedPDFs")}
	n, err := countEntries(context.Background(), root, newPatternMatcher(nil, nil), skip)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("expected 4 entries (root, x, two files), got %d", n)
	}
}

func TestPatternMatcher(t *testing.T) {
	matcher := newPatternMatcher(nil, nil)
	if !matcher.ShouldInclude("file.txt") {
		t.Fatal("expected include by default")
	}
	matcher = newPatternMatcher([]string{"*.pdf"}, nil)
	if matcher.ShouldInclude("file.txt") || !matcher.ShouldInclude("/x/doc.pdf") {
		t.Fatal("glob include not applied")
	}
	matcher = newPatternMatcher(nil, []string{"draft_*"})
	if matcher.ShouldInclude("/x/draft_1.pdf") || !matcher.ShouldInclude("/x/final.pdf") {
		t.Fatal("glob exclude not applied")
	}
	matcher = newPatternMatcher([]string{`/evidence/.*\.pdf$`}, nil)
	if !matcher.ShouldInclude("/evidence/sub/a.pdf") || matcher.ShouldInclude("/other/a.pdf") {
		t.Fatal("regex include not applied")
	}
}

func TestWithin(t *testing.T) {
	root := t.TempDir()
	if !within(filepath.Join(root, "a", "b"), []string{root}) {
		t.Fatal("expected nested path to be within root")
	}
	if !within(root, []string{root}) {
		t.Fatal("root is within itself")
	}
	if within(filepath.Join(filepath.Dir(root), "elsewhere"), []string{root}) {
		t.Fatal("sibling must not be within root")
	}
}

// countingRunner answers every verifier call with "signed" and counts calls.
type countingRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRunner) Run(context.Context, string, ...string) (toolrun.Result, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return toolrun.Result{ExitCode: 0}, nil
}

func TestScanWithEngine(t *testing.T) {
	t.Setenv("PDFSIFT_DISABLE_PROGRESS", "1")
	root := t.TempDir()
	evidence := filepath.Join(root, "evidence")
	writeTree(t, evidence, map[string]string{
		"one.pdf":        "%PDF-1.4 one",
		"nested/2.pdf":   "%PDF-1.4 two",
		"nested/3.txt":   "text",
		"nested/4.pdf":   "",
		"deeper/x/5.pdf": "%PDF-1.4 five",
	})
	tool := filepath.Join(root, "tool")
	os.WriteFile(tool, []byte("#!/bin/sh\n"), 0o755)

	caseDir := filepath.Join(root, "case")
	runner := &countingRunner{}
	eng := engine.New(engine.Options{
		CaseName:     "scan test",
		CaseDir:      caseDir,
		VerifierPath: tool,
		ExiftoolPath: tool,
		Runner:       runner,
	})
	if err := eng.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(evidence)
	cfg.CaseDir = caseDir
	if _, err := Scan(context.Background(), cfg, eng); err != nil {
		t.Fatal(err)
	}
	stats := eng.Store().Snapshot().Stats
	if stats.PDFFiles != 3 || stats.NonPDFFiles != 2 || stats.SignedFiles != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if runner.calls != 3 {
		t.Fatalf("verifier calls = %d", runner.calls)
	}
}
