package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Request describes a single external tool invocation.
type Request struct {
	// Name is the executable to run, resolved via PATH.
	Name string
	// Args are the command line arguments.
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env holds extra KEY=VALUE entries appended to the current environment.
	Env []string
	// Stdin is piped to the tool's standard input when non-empty.
	Stdin string
}

// Result carries the captured outcome of an invocation.
type Result struct {
	// Output is the combined stdout and stderr of the tool.
	Output string
	// ExitCode is the tool's exit code, or -1 if it never started.
	ExitCode int
}

// Runner executes external tools. Implementations must be safe for
// sequential reuse across invocations.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// ExecRunner runs tools via os/exec, blocking until they complete.
type ExecRunner struct{}

// Run executes the request and captures combined output.
// The returned Result is populated even when err is non-nil.
func (ExecRunner) Run(ctx context.Context, req Request) (Result, error) {
	cmd := exec.CommandContext(ctx, req.Name, req.Args...)
	cmd.Dir = req.Dir

	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}

	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}

	output, err := cmd.CombinedOutput()
	result := Result{Output: string(output)}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, fmt.Errorf("%s: %w", req.Name, err)
		}

		result.ExitCode = -1

		return result, fmt.Errorf("start %s: %w", req.Name, err)
	}

	return result, nil
}
