// Package engine is the per-run context: it owns the aggregation store, the
// working-copy cache and the tool wrappers, and runs every file through the
// classification pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pdfsift/aggregate"
	"pdfsift/artifact"
	"pdfsift/logger"
	"pdfsift/output"
	"pdfsift/report"
	"pdfsift/toolrun"
	"pdfsift/workcopy"
)

// ModuleName is recorded on every published artifact.
const ModuleName = "pdfsift"

// ModuleDirName is created under the case directory to hold working copies
// and exports.
const ModuleDirName = "SignedPDFs"

type Options struct {
	CaseName string
	CaseDir  string
	// TempDir receives verbose tool logs and name logs. Defaults to
	// <CaseDir>/Temp.
	TempDir string

	VerifierPath string
	ExiftoolPath string
	// Runner spawns both tools. Defaults to toolrun.ExecRunner.
	Runner toolrun.Runner

	Artifacts          artifact.Store
	SuppressDuplicates bool
	CreateCSV          bool

	VerboseExec  bool
	LogFileNames bool
	DedupContent bool

	HashAlgorithms   []string
	FuzzyHash        string
	DocInfo          bool
	MetadataMaxBytes int64

	Sink output.Sink
	Now  func() time.Time
}

// StartupError is a fatal setup failure. No file is processed after one.
type StartupError struct {
	Msg string
	Err error
}

func (e *StartupError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Engine is safe for concurrent Process calls between Startup and Shutdown.
type Engine struct {
	opts Options

	store    *aggregate.Store
	guard    artifact.Guard
	verifier *toolrun.Verifier
	exiftool *toolrun.Exiftool
	cache    *workcopy.Cache
	memo     *verdictMemo
	names    *nameLogs

	workDir string
	started time.Time

	fatalMu sync.Mutex
	fatal   string

	completed atomic.Int64
	flightMu  sync.Mutex
	inFlight  map[string]time.Time
}

func New(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Runner == nil {
		opts.Runner = toolrun.ExecRunner{}
	}
	if opts.Sink == nil {
		opts.Sink = output.Nop{}
	}
	if opts.Artifacts == nil {
		opts.Artifacts = artifact.NewMemoryStore()
	}
	if opts.TempDir == "" && opts.CaseDir != "" {
		opts.TempDir = filepath.Join(opts.CaseDir, "Temp")
	}
	return &Engine{
		opts:     opts,
		store:    aggregate.NewStore(),
		guard:    artifact.Guard{Store: opts.Artifacts},
		memo:     newVerdictMemo(),
		inFlight: make(map[string]time.Time),
	}
}

// CaseDirName is the case name with spaces replaced by underscores.
func CaseDirName(caseName string) string {
	return strings.ReplaceAll(caseName, " ", "_")
}

// WorkDir is valid after a successful Startup.
func (e *Engine) WorkDir() string { return e.workDir }

// Store exposes the aggregation store of this run.
func (e *Engine) Store() *aggregate.Store { return e.store }

// Copies reports how many working copies were written.
func (e *Engine) Copies() int64 {
	if e.cache == nil {
		return 0
	}
	return e.cache.Copies()
}

// Startup prepares the working directory and checks both executables. Any
// failure is recorded as the run's fatal message and returned.
func (e *Engine) Startup(ctx context.Context) error {
	e.started = e.opts.Now()
	e.store.Reset()

	base := filepath.Join(e.opts.CaseDir, ModuleDirName)
	e.workDir = filepath.Join(base, CaseDirName(e.opts.CaseName))
	if err := os.MkdirAll(e.workDir, 0o755); err != nil {
		return e.fail(&StartupError{Msg: fmt.Sprintf("Can't create DIR '%s'", e.workDir), Err: err})
	}
	if err := toolrun.CheckExecutable(e.opts.VerifierPath); err != nil {
		return e.fail(&StartupError{Msg: fmt.Sprintf("Cannot find PDF verifier EXE '%s'", e.opts.VerifierPath), Err: err})
	}
	if err := toolrun.CheckExecutable(e.opts.ExiftoolPath); err != nil {
		return e.fail(&StartupError{Msg: fmt.Sprintf("Cannot find ExifTool '%s'", e.opts.ExiftoolPath), Err: err})
	}
	if e.opts.VerboseExec || e.opts.LogFileNames {
		if err := os.MkdirAll(e.opts.TempDir, 0o755); err != nil {
			return e.fail(&StartupError{Msg: fmt.Sprintf("Can't create DIR '%s'", e.opts.TempDir), Err: err})
		}
	}
	if e.opts.LogFileNames {
		names, err := openNameLogs(e.opts.TempDir)
		if err != nil {
			return e.fail(&StartupError{Msg: "Can't open name logs", Err: err})
		}
		e.names = names
	}

	e.cache = workcopy.New(e.workDir)
	e.verifier = &toolrun.Verifier{
		Path:    e.opts.VerifierPath,
		Runner:  e.opts.Runner,
		Verbose: e.opts.VerboseExec,
		LogDir:  e.opts.TempDir,
	}
	e.exiftool = &toolrun.Exiftool{Path: e.opts.ExiftoolPath, Runner: e.opts.Runner}
	logger.Infof("Working directory %s", e.workDir)
	return nil
}

func (e *Engine) fail(err *StartupError) error {
	logger.Error(err.Error())
	e.fatalMu.Lock()
	if e.fatal == "" {
		e.fatal = err.Msg
	}
	e.fatalMu.Unlock()
	return err
}

// Fatal returns the recorded startup failure, if any.
func (e *Engine) Fatal() string {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()
	return e.fatal
}

// Completed counts files that left Process.
func (e *Engine) Completed() int64 { return e.completed.Load() }

// InFlight lists the paths currently inside Process.
func (e *Engine) InFlight() []string {
	e.flightMu.Lock()
	defer e.flightMu.Unlock()
	out := make([]string, 0, len(e.inFlight))
	for p := range e.inFlight {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) enter(path string) {
	e.flightMu.Lock()
	e.inFlight[path] = e.opts.Now()
	e.flightMu.Unlock()
}

func (e *Engine) leave(path string) {
	e.flightMu.Lock()
	delete(e.inFlight, path)
	e.flightMu.Unlock()
	e.completed.Add(1)
}

// ExportResult describes one report file written at shutdown.
type ExportResult struct {
	Kind   report.Kind
	Path   string
	Status report.Status
	Err    error
}

// Summary is the end-of-run report.
type Summary struct {
	Fatal   string
	Stats   aggregate.Stats
	Elapsed time.Duration
	Lines   []string
	Exports []ExportResult
}

// Failed lists exports whose write failed.
func (s Summary) Failed() []ExportResult {
	var out []ExportResult
	for _, x := range s.Exports {
		if x.Err != nil {
			out = append(out, x)
		}
	}
	return out
}

// Shutdown builds the summary and, unless startup failed, exports both
// tables when CSV export is enabled. Call it once all Process calls have
// returned.
func (e *Engine) Shutdown(ctx context.Context) Summary {
	defer e.opts.Sink.Shutdown()
	if e.names != nil {
		e.names.Close()
		e.names = nil
	}

	var sum Summary
	if !e.started.IsZero() {
		sum.Elapsed = e.opts.Now().Sub(e.started)
	}
	if fatal := e.Fatal(); fatal != "" {
		sum.Fatal = fatal
		sum.Lines = []string{report.FatalLine(fatal)}
		logger.Info(sum.Lines[0])
		return sum
	}

	snap := e.store.Snapshot()
	sum.Stats = snap.Stats
	sum.Lines = []string{
		report.AnalyzedLine(snap.Stats, sum.Elapsed),
		report.PermissionsLine(snap.Stats),
	}
	for _, line := range sum.Lines {
		logger.Info(line)
	}

	if e.opts.CreateCSV {
		at := e.opts.Now()
		sum.Exports = append(sum.Exports,
			e.export(report.Signatures, snap.Signatures, report.SignatureHeader, at),
			e.export(report.Permissions, snap.Permissions, report.PermissionHeader, at),
		)
	}
	for _, x := range sum.Failed() {
		sum.Lines = append(sum.Lines, fmt.Sprintf("can't write %s: %v", x.Path, x.Err))
	}

	e.opts.Sink.Emit(output.TypeSummary, summaryFields(sum, e.workDir))
	return sum
}

func (e *Engine) export(kind report.Kind, table aggregate.Table, header []string, at time.Time) ExportResult {
	dest := filepath.Join(e.workDir, report.FileName(e.opts.CaseName, kind, at))
	status, err := report.Export(table, header, dest)
	res := ExportResult{Kind: kind, Path: dest, Status: status, Err: err}
	switch {
	case err != nil:
		logger.Errorf("CSV export failed for %s: %v", dest, err)
	case status == report.AlreadyExists:
		logger.Warnf("CSV file %s already exists; left untouched", dest)
	default:
		logger.Infof("CSV file created '%s'", filepath.Base(dest))
	}
	return res
}

func summaryFields(sum Summary, workDir string) map[string]interface{} {
	classes := make(map[string]int64, len(sum.Stats.Classes))
	for k, v := range sum.Stats.Classes {
		classes[string(k)] = v
	}
	fields := map[string]interface{}{
		"files_seen":         sum.Stats.FilesSeen,
		"pdf_files":          sum.Stats.PDFFiles,
		"non_pdf_files":      sum.Stats.NonPDFFiles,
		"signed_files":       sum.Stats.SignedFiles,
		"inserted_artifacts": sum.Stats.InsertedArtifacts,
		"permission_files":   sum.Stats.PermissionFiles(),
		"elapsed_secs":       sum.Elapsed.Seconds(),
		"classes":            classes,
		"work_dir":           workDir,
	}
	var exports []string
	for _, x := range sum.Exports {
		if x.Err == nil {
			exports = append(exports, x.Path)
		}
	}
	if len(exports) > 0 {
		fields["exports"] = exports
	}
	return fields
}

var errNotStarted = errors.New("engine not started or startup failed")
