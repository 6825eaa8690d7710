package harness

import (
	"errors"
	"fmt"
)

// Error categories. Every failure of a directive wraps exactly one of them
// and is reported as a *FatalError; the run stops at the first one.
var (
	// ErrParse wraps a statement batch that failed to parse.
	ErrParse = errors.New("parse error")

	// ErrProtocolViolation covers a wrong outcome kind, a missing argument,
	// a malformed body and any other misuse of the directive protocol.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrTimeout is returned when wait-sql exhausts its wall-clock bound.
	ErrTimeout = errors.New("timed out")

	// ErrNotFound covers unknown session names, duplicate session names and
	// unresolvable object paths.
	ErrNotFound = errors.New("not found")

	// ErrUnrecognizedDirective is returned for an unknown directive name.
	ErrUnrecognizedDirective = errors.New("unrecognized directive")
)

// FatalError halts a script run.
type FatalError struct {
	// Directive is the directive name.
	Directive string

	// Pos is "file:line" of the directive.
	Pos string

	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Pos != "" {
		return fmt.Sprintf("%s: %s: %v", e.Pos, e.Directive, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Directive, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err halted a run. Uses errors.As to handle
// wrapped errors.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func protocolf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
