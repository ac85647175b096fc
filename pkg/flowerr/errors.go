// Package flowerr defines the single error taxonomy shared by every flow4d
// component. Every public operation returns either a result or an *Error
// whose Kind tells the caller what went wrong.
package flowerr

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// InvalidInput is a malformed or missing argument. It is a caller bug
	// and is never worth retrying.
	InvalidInput Kind = iota + 1

	// UnsupportedVendor is a vendor-specific layout that was not recognised.
	UnsupportedVendor

	// ParseFailed means a source volume could not be decoded.
	ParseFailed

	// MissingTag means expected metadata was absent.
	MissingTag

	// InconsistentData means a cross-check failed, such as a missing
	// velocity component or too few in-bounds samples.
	InconsistentData

	// InternalError wraps numeric or toolkit level faults.
	InternalError
)

// String implements fmt.Stringer
func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "InvalidInput"
	case UnsupportedVendor:
		return "UnsupportedVendor"
	case ParseFailed:
		return "ParseFailed"
	case MissingTag:
		return "MissingTag"
	case InconsistentData:
		return "InconsistentData"
	case InternalError:
		return "InternalError"
	default:
		return "*Unknown*"
	}
}

// Error is the concrete error type returned by flow4d operations.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// sentinels for errors.Is comparisons
var (
	ErrInvalidInput      = &Error{Kind: InvalidInput}
	ErrUnsupportedVendor = &Error{Kind: UnsupportedVendor}
	ErrParseFailed       = &Error{Kind: ParseFailed}
	ErrMissingTag        = &Error{Kind: MissingTag}
	ErrInconsistentData  = &Error{Kind: InconsistentData}
	ErrInternal          = &Error{Kind: InternalError}
)

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind. Sentinels carry no message,
// so errors.Is(err, ErrInvalidInput) matches any InvalidInput failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return (t.Op == "" || t.Op == e.Op) && (t.Msg == "" || t.Msg == e.Msg)
}

// New creates an error of the given kind.
func New(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, op string, cause error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the Kind of err, or 0 if err is not a flow error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Recover converts a panic in the calling operation into an InternalError.
// It must be deferred directly:
//
//	defer flowerr.Recover("correction.Correct", &err)
func Recover(op string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("%v", r)
	}
	*errp = &Error{
		Kind: InternalError,
		Op:   op,
		Msg:  "recovered from fault: " + firstFrame(debug.Stack()),
		Err:  cause,
	}
}

// firstFrame extracts the function that panicked from a stack dump so the
// message stays short.
func firstFrame(stack []byte) string {
	lines := strings.Split(string(stack), "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "panic(") && i+2 < len(lines) {
			return strings.TrimSpace(lines[i+2])
		}
	}
	return "unknown location"
}
