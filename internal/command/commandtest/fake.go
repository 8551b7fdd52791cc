// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"strings"
	"sync"

	"github.com/sigreer/zman/internal/command"
	"github.com/sigreer/zman/internal/fault"
)

// Call is one recorded invocation.
type Call struct {
	Name  string
	Args  []string
	Input string
}

// String renders the call as a shell-like line ("systemctl daemon-reload").
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Fake is a scripted Runner for tests. Responses are keyed by the full
// command line; unscripted commands succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	responses map[string]command.Output
	hooks     map[string]func(Call)
	missing   map[string]bool
	calls     []Call
}

func NewFake() *Fake {
	return &Fake{
		responses: make(map[string]command.Output),
		hooks:     make(map[string]func(Call)),
		missing:   make(map[string]bool),
	}
}

// On scripts the result of line. A non-zero code makes Run fail.
func (f *Fake) On(line string, out command.Output) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[line] = out
	return f
}

// Hook runs fn whenever line is executed, before the response is returned.
// Tests use it to mimic side effects such as swapoff clearing /proc/swaps.
func (f *Fake) Hook(line string, fn func(Call)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[line] = fn
	return f
}

// Missing makes LookPath report name as unavailable.
func (f *Fake) Missing(name string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[name] = true
	return f
}

// Calls returns a copy of every invocation so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Lines returns the recorded calls rendered with Call.String.
func (f *Fake) Lines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.String()
	}
	return lines
}

func (f *Fake) Run(ctx context.Context, name string, args ...string) (command.Output, error) {
	return f.RunInput(ctx, nil, name, args...)
}

func (f *Fake) RunInput(_ context.Context, input []byte, name string, args ...string) (command.Output, error) {
	call := Call{Name: name, Args: append([]string(nil), args...), Input: string(input)}
	line := call.String()

	f.mu.Lock()
	f.calls = append(f.calls, call)
	out := f.responses[line]
	hook := f.hooks[line]
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if out.Code != 0 {
		return out, &fault.CommandError{
			Cmd:    append([]string{name}, args...),
			Code:   out.Code,
			Stdout: out.Stdout,
			Stderr: out.Stderr,
		}
	}
	return out, nil
}

func (f *Fake) LookPath(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.missing[name]
}
