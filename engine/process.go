package engine

import (
	"context"

	"pdfsift/aggregate"
	"pdfsift/artifact"
	"pdfsift/hasher"
	"pdfsift/ingest"
	"pdfsift/logger"
	"pdfsift/output"
	"pdfsift/permission"
	"pdfsift/tracing"
	"pdfsift/verdict"
)

// Result is the per-file outcome reported to the host.
type Result int

const (
	ResultOK Result = iota
	ResultSkipped
	ResultError
	ResultCancelled
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultSkipped:
		return "skipped"
	case ResultError:
		return "error"
	case ResultCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Process runs one entry through the pipeline. A cancelled ctx on entry
// returns ResultCancelled without touching any state. Past that check the
// file runs to completion even if ctx is cancelled meanwhile.
func (e *Engine) Process(ctx context.Context, task ingest.Task) Result {
	if ctx.Err() != nil {
		return ResultCancelled
	}
	ctx = context.WithoutCancel(ctx)
	if e.cache == nil || e.Fatal() != "" {
		logger.Errorf("%s: %v", task.Path, errNotStarted)
		return ResultError
	}
	e.enter(task.Path)
	defer e.leave(task.Path)
	ctx, endTask := tracing.FileTask(ctx, task.Path)
	defer endTask()

	e.names.write(logEvery, e.store.Value(aggregate.FilesSeen), task.Name)
	if !task.IsFile() {
		logger.Debugf("'%s' is %s, not a file", task.Name, task.Kind)
		return ResultSkipped
	}
	n := e.store.Add(aggregate.FilesSeen)
	e.names.write(logCounted, n, task.Name)
	logger.Debugf("analyzing file '%s' (file #%d)", task.Name, n)

	if !ingest.IsEligible(task) {
		n := e.store.Add(aggregate.NonPDFFiles)
		e.names.write(logNotPDF, n, task.Name)
		return ResultSkipped
	}
	n = e.store.Add(aggregate.PDFFiles)
	e.names.write(logPDF, n, task.Name)
	logger.Debugf("Processing PDF file '%s' (#%d)", task.Name, n)

	e.store.RecordWorkingCopy(task.Path, e.cache.DestPath(task))
	endRegion := tracing.StartRegion(ctx, tracing.RegionMaterialize)
	working, err := e.cache.Materialize(ctx, task)
	endRegion()
	if err != nil {
		logger.Errorf("Error in copying file '%s': %v", task.Name, err)
		return ResultError
	}

	var digest string
	if e.opts.DedupContent {
		if digest, err = hasher.Blake3(working); err != nil {
			logger.Warnf("can't digest %s, content dedup disabled for it: %v", working, err)
			digest = ""
		}
	}

	endRegion = tracing.StartRegion(ctx, tracing.RegionVerify)
	code, err := e.memo.code(digest, func() (verdict.Code, error) {
		return e.verifier.VerifySignature(ctx, working)
	})
	endRegion()
	if err != nil {
		logger.Errorf("can't run verifier on '%s': %v", task.Name, err)
		return ResultError
	}
	e.store.RecordSignature(task.Path, working, code)
	if !verdict.Known(code) {
		logger.Warnf("verifier returned code %d outside its table for '%s'", int(code), task.Name)
	}
	outcome := verdict.Classify(code)
	logger.Info(verdict.Describe(code, task.Name))
	tracing.Log(ctx, "verdict", outcome.String())

	var published *artifact.Artifact
	if outcome.Interesting() {
		e.store.Increment(aggregate.SignedFiles)
		if e.guard.ShouldPublish(ctx, task.Path, artifact.CategoryInterestingFile, true, e.opts.SuppressDuplicates) {
			published = e.publish(ctx, task, working, verdict.Label(code), output.TypeSignature, map[string]interface{}{
				"code":    int(code),
				"outcome": outcome.String(),
			})
		}
	}
	if published == nil {
		published = e.permissionPathway(ctx, task, working, digest)
	}
	if published != nil {
		if err := e.opts.Artifacts.Index(ctx, published); err != nil {
			logger.Errorf("Error indexing artifact for '%s': %v", task.Name, err)
		}
		e.opts.Artifacts.Notify(artifact.CategoryInterestingFile)
	}
	return ResultOK
}

// permissionPathway runs only for files that got no signature artifact in
// this call.
func (e *Engine) permissionPathway(ctx context.Context, task ingest.Task, working, digest string) *artifact.Artifact {
	if !e.guard.ShouldPublish(ctx, task.Path, artifact.CategoryInterestingFile, true, e.opts.SuppressDuplicates) {
		logger.Debugf("[PDF ACCESS] skipping file '%s': already exists", task.Name)
		return nil
	}
	endRegion := tracing.StartRegion(ctx, tracing.RegionPermissions)
	rec := e.memo.permissions(digest, func() permission.Record {
		return e.exiftool.ExtractPermissions(ctx, working)
	})
	endRegion()
	if !rec.Reportable() {
		return nil
	}
	class := rec.Class()
	e.store.RecordPermission(task.Path, rec.Encrypted, rec.UserAccessPresent, class)
	e.store.IncrementClass(class)
	logger.Infof("[file '%s'] Encryption_flag=%s,User_Access_flag=%s,user_Access_S='%s'",
		task.Name, permission.BoolString(rec.Encrypted), permission.BoolString(rec.UserAccessPresent), class)
	return e.publish(ctx, task, working, string(class), output.TypePermission, map[string]interface{}{
		"encrypted":   rec.Encrypted,
		"user_access": rec.UserAccessPresent,
		"access":      rec.Access.String(),
	})
}

func (e *Engine) publish(ctx context.Context, task ingest.Task, working, label, recordType string, fields map[string]interface{}) *artifact.Artifact {
	endRegion := tracing.StartRegion(ctx, tracing.RegionPublish)
	defer endRegion()

	a, err := e.opts.Artifacts.New(ctx, task.Path, artifact.CategoryInterestingFile)
	if err != nil {
		logger.Errorf("can't create artifact for '%s': %v", task.Name, err)
		return nil
	}
	e.store.Increment(aggregate.InsertedArtifacts)
	logger.Infof("***ADDING*** file '%s' (%s)", task.Name, label)
	if err := artifact.AddLabel(ctx, e.opts.Artifacts, a, label); err != nil {
		logger.Errorf("can't label artifact for '%s': %v", task.Name, err)
	}
	for _, at := range e.attributes(task, working) {
		if err := e.opts.Artifacts.AddAttribute(ctx, a, at.Name, at.Value); err != nil {
			logger.Warnf("can't add attribute %s for '%s': %v", at.Name, task.Name, err)
		}
	}

	record := map[string]interface{}{
		"path":         task.Path,
		"working_path": working,
		"name":         task.Name,
		"size":         task.Size,
		"label":        label,
	}
	for k, v := range fields {
		record[k] = v
	}
	e.opts.Sink.Emit(recordType, record)
	return a
}
