// Package fault defines the error kinds shared by every zman component.
//
// Callers classify failures with Is / KindOf instead of matching strings:
// validation problems are reported before any mutation, command failures
// carry the captured tool output, and Internal marks states that should be
// structurally impossible.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotBlockDevice // specialization of KindValidation
	KindNotSupported
	KindCommandFailed
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotBlockDevice:
		return "not-block-device"
	case KindNotSupported:
		return "not-supported"
	case KindCommandFailed:
		return "command-failed"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a classified failure with an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports bad input. Nothing has been mutated when it is returned.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotBlockDevice reports that path exists as something other than a block
// device, or does not exist at all.
func NotBlockDevice(path string) error {
	return &Error{Kind: KindNotBlockDevice, Msg: fmt.Sprintf("%s is not a block device", path)}
}

// NotSupported wraps cause as a missing kernel or system feature.
func NotSupported(cause error, format string, args ...any) error {
	return &Error{Kind: KindNotSupported, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// Internal wraps cause as a bug-signaling, non-recoverable state.
func Internal(cause error, format string, args ...any) error {
	return &Error{Kind: KindInternal, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// CommandError is returned when an external tool exits non-zero or cannot be
// started. Code is -1 when the process never ran.
type CommandError struct {
	Cmd    []string
	Code   int
	Stdout string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command failed: %s (code %d)", strings.Join(e.Cmd, " "), e.Code)
	if detail := e.Detail(); detail != "" {
		msg += ": " + detail
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Detail returns the most useful single line of diagnostic output.
func (e *CommandError) Detail() string {
	if s := strings.TrimSpace(e.Stderr); s != "" {
		return s
	}
	if s := strings.TrimSpace(e.Stdout); s != "" {
		return s
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return KindCommandFailed
	}
	return KindUnknown
}

// Is reports whether err is of kind k. A NotBlockDevice error is also a
// Validation error.
func Is(err error, k Kind) bool {
	got := KindOf(err)
	if got == k {
		return true
	}
	return k == KindValidation && got == KindNotBlockDevice
}
