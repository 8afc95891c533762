//go:build trace

package tracing

import (
	"context"
	"os"
	"runtime/trace"
)

var traceFile *os.File

// Start writes an execution trace to path.
func Start(path string) error {
	if path == "" {
		path = "trace.out"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := trace.Start(f); err != nil {
		f.Close()
		return err
	}
	traceFile = f
	return nil
}

func Stop() {
	trace.Stop()
	if traceFile != nil {
		traceFile.Close()
		traceFile = nil
	}
}

// FileTask opens a trace task covering one file.
func FileTask(ctx context.Context, path string) (context.Context, func()) {
	ctx, task := trace.NewTask(ctx, "process_file")
	trace.Log(ctx, "path", path)
	return ctx, task.End
}

func StartRegion(ctx context.Context, name string) func() {
	return trace.StartRegion(ctx, name).End
}

func Log(ctx context.Context, category, message string) {
	trace.Log(ctx, category, message)
}
