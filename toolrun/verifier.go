package toolrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"pdfsift/logger"
	"pdfsift/verdict"
)

// Verifier wraps the signature verification tool. Its exit status is the
// verdict code.
type Verifier struct {
	Path   string
	Runner Runner
	// Verbose keeps stdout/stderr of every run in numbered files under LogDir.
	Verbose bool
	LogDir  string

	seq atomic.Int64
}

func (v *Verifier) runner() Runner {
	if v.Runner == nil {
		return ExecRunner{}
	}
	return v.Runner
}

// VerifySignature runs `<verifier> <workingPath>`.
func (v *Verifier) VerifySignature(ctx context.Context, workingPath string) (verdict.Code, error) {
	res, err := v.runner().Run(ctx, v.Path, workingPath)
	if err != nil {
		return 0, err
	}
	code := verdict.Code(res.ExitCode)
	if v.Verbose {
		n := v.seq.Add(1)
		if werr := v.writeLogs(n, res); werr != nil {
			logger.Warnf("can't keep verifier output for %s: %v", workingPath, werr)
		}
	}
	return code, nil
}

func (v *Verifier) writeLogs(n int64, res Result) error {
	outName := filepath.Join(v.LogDir, fmt.Sprintf("out_is_signed_%05d.txt", n))
	errName := filepath.Join(v.LogDir, fmt.Sprintf("err_is_signed_%05d.txt", n))
	out := append([]byte{}, res.Stdout...)
	out = append(out, fmt.Sprintf("ret_verifier=%d", res.ExitCode)...)
	if err := os.WriteFile(outName, out, 0o644); err != nil {
		return err
	}
	return os.WriteFile(errName, res.Stderr, 0o644)
}
