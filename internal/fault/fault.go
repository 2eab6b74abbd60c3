// Package fault classifies the failures the dedupe pipeline can hit.
//
// Only invalid operator input is recoverable. I/O and store failures abort the
// run and are reported to the caller unchanged.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure.
type Kind int

const (
	// KindIO covers file open, read, list and delete failures.
	KindIO Kind = iota + 1
	// KindStore covers index read and write failures.
	KindStore
	// KindInvalidInput is an unparseable or out-of-range operator reply.
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindStore:
		return "store"
	case KindInvalidInput:
		return "invalid input"
	default:
		return "unknown"
	}
}

// ErrInvalidInput is returned when an operator reply cannot be used.
var ErrInvalidInput = &Error{Kind: KindInvalidInput, Op: "parse selection"}

// Error carries the failure kind along with the operation and path involved.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrInvalidInput)
// holds for every invalid input failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == e.Op && t.Path == "" && t.Err == nil
}

// IO wraps a filesystem failure.
func IO(op, path string, err error) error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// Store wraps an index failure.
func Store(op string, err error) error {
	return &Error{Kind: KindStore, Op: op, Err: err}
}

// InvalidInput reports an unusable reply, keeping the raw text for logging.
func InvalidInput(reply string) error {
	return &Error{Kind: KindInvalidInput, Op: "parse selection", Err: fmt.Errorf("unusable reply %q", reply)}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err should abort the run. Everything except invalid
// input is fatal, including errors this package never classified.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) != KindInvalidInput
}
