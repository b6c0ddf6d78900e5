package shell

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/luwshell/luw/pkg/bytecode"
)

// ExternalRunner executes passthrough lines in an external shell. The
// raw line travels verbatim; quoting and pipes are the target shell's
// business, never reinterpreted here.
type ExternalRunner struct {
	// Timeout bounds a single passthrough invocation. Zero means no
	// bound beyond the caller's context.
	Timeout time.Duration

	// lookPath is swappable for tests.
	lookPath func(file string) (string, error)
}

// NewExternalRunner creates a runner with the default passthrough
// timeout.
func NewExternalRunner() *ExternalRunner {
	return &ExternalRunner{
		Timeout:  5 * time.Minute,
		lookPath: exec.LookPath,
	}
}

// Run hands the raw line to the shell selected by kind and captures
// its output. The child process starts in dir, so the caller's
// working directory carries over without touching the process one.
// A non-zero exit travels in the result; a shell that cannot be
// resolved or started is an error.
func (r *ExternalRunner) Run(ctx context.Context, kind byte, line, dir string) (bytecode.Result, error) {
	name, argv, err := r.command(kind, line)
	if err != nil {
		return bytecode.Result{}, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, argv...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	res := bytecode.Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			return res, runErr
		}
	}
	return res, nil
}

// command resolves the target shell binary and argument vector.
func (r *ExternalRunner) command(kind byte, line string) (string, []string, error) {
	switch kind {
	case bytecode.ShellKindPwsh:
		for _, candidate := range []string{"pwsh", "powershell"} {
			if path, err := r.lookPath(candidate); err == nil {
				return path, []string{"-NoProfile", "-Command", line}, nil
			}
		}
		return "", nil, errors.New("pwsh/powershell not found")
	case bytecode.ShellKindCmd:
		if path, err := r.lookPath("cmd"); err == nil {
			return path, []string{"/C", line}, nil
		}
		// Non-Windows hosts route !cmd lines to the POSIX shell.
		if path, err := r.lookPath("sh"); err == nil {
			return path, []string{"-c", line}, nil
		}
		return "", nil, errors.New("cmd/sh not found")
	default:
		return "", nil, errors.New("unknown shell kind")
	}
}
