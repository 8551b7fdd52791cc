// Package command runs the external tools zman depends on (modprobe, blkid,
// lsblk, systemctl, swapoff, umount, the privileged helper).
//
// Everything goes through Runner so probes and the orchestrator can be
// exercised against Fake in tests.
package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/sigreer/zman/internal/fault"
)

// Output is the captured result of a finished command.
type Output struct {
	Stdout string
	Stderr string
	Code   int
}

// Runner executes external commands.
//
// A non-zero exit is returned as a *fault.CommandError together with the
// captured Output, so callers that treat some exit codes as meaningful
// (blkid exits 2 for "nothing found") can still inspect it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
	RunInput(ctx context.Context, input []byte, name string, args ...string) (Output, error)
	// LookPath reports whether name resolves to an executable.
	LookPath(name string) bool
}

// Exec is the os/exec Runner.
type Exec struct{}

func (Exec) Run(ctx context.Context, name string, args ...string) (Output, error) {
	return run(ctx, nil, name, args...)
}

func (Exec) RunInput(ctx context.Context, input []byte, name string, args ...string) (Output, error) {
	return run(ctx, input, name, args...)
}

func (Exec) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func run(ctx context.Context, input []byte, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if input != nil {
		cmd.Stdin = bytes.NewReader(input)
	}

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}

	out.Code = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.Code = exitErr.ExitCode()
	}
	return out, &fault.CommandError{
		Cmd:    append([]string{name}, args...),
		Code:   out.Code,
		Stdout: out.Stdout,
		Stderr: out.Stderr,
		Err:    err,
	}
}
