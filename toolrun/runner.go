// Package toolrun spawns the external verifier and metadata tools.
package toolrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Result is what a finished tool run produced. A non-zero ExitCode is a
// normal result, not an error.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner executes a program and waits for it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// InvocationError means the program could not be started at all.
type InvocationError struct {
	Name string
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s: %v", e.Name, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// ExecRunner runs programs with os/exec. Once started, a process always runs
// to completion; ctx is only consulted before the spawn.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &InvocationError{Name: name, Err: err}
	}
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, &InvocationError{Name: name, Err: err}
	}
	return res, nil
}
