package patch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a diff could not be parsed or applied.
type ErrorKind int

const (
	// KindNullInput - the original text was not provided at all.
	KindNullInput ErrorKind = iota + 1

	// KindInvalidHeader - a "@@" line is malformed or has non-integer ranges.
	KindInvalidHeader

	// KindEmptyHunk - a header followed by end of input or another header.
	KindEmptyHunk

	// KindMalformedBodyLine - a body line with an unrecognized leading character.
	KindMalformedBodyLine

	// KindContextMismatch - the context/delete lines do not match the buffer at the
	// hunk's claimed position.
	KindContextMismatch

	// KindOverlappingHunk - a hunk starts before the read cursor left by a prior hunk.
	KindOverlappingHunk

	// KindCountMismatch - header counts disagree with the body (only with WithVerifyCounts).
	KindCountMismatch
)

var kindNames = map[ErrorKind]string{
	KindNullInput:         "null_input",
	KindInvalidHeader:     "invalid_header",
	KindEmptyHunk:         "empty_hunk",
	KindMalformedBodyLine: "malformed_body_line",
	KindContextMismatch:   "context_mismatch",
	KindOverlappingHunk:   "overlapping_hunk",
	KindCountMismatch:     "count_mismatch",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrNullInput         = &Error{Kind: KindNullInput, Hunk: -1}
	ErrInvalidHeader     = &Error{Kind: KindInvalidHeader, Hunk: -1}
	ErrEmptyHunk         = &Error{Kind: KindEmptyHunk, Hunk: -1}
	ErrMalformedBodyLine = &Error{Kind: KindMalformedBodyLine, Hunk: -1}
	ErrContextMismatch   = &Error{Kind: KindContextMismatch, Hunk: -1}
	ErrOverlappingHunk   = &Error{Kind: KindOverlappingHunk, Hunk: -1}
	ErrCountMismatch     = &Error{Kind: KindCountMismatch, Hunk: -1}
)

// Error is the single error type returned by this package.
type Error struct {
	Kind ErrorKind

	// Hunk is the 0-based index of the offending hunk, or -1 when the error is not
	// tied to a hunk (NullInput).
	Hunk int

	// Offset is the 0-based position inside the hunk's expected original slice where
	// a ContextMismatch was detected.
	Offset int

	// Line is the 1-based line number the error refers to: a line of the diff text for
	// parse errors, a line of the original buffer for apply errors. 0 when unknown.
	Line int

	Msg string
}

func (e *Error) Error() string {
	var prefix string
	if e.Hunk >= 0 {
		prefix = fmt.Sprintf("hunk %d: ", e.Hunk+1)
	}
	if e.Msg == "" {
		return prefix + e.Kind.String()
	}
	return prefix + e.Msg
}

// Is matches any *Error with the same Kind, so callers can write
// errors.Is(err, patch.ErrContextMismatch).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Details returns structured data for logs and JSON output.
func (e *Error) Details() map[string]any {
	d := map[string]any{
		"kind":    e.Kind.String(),
		"message": e.Error(),
	}
	if e.Hunk >= 0 {
		d["hunk"] = e.Hunk + 1
	}
	if e.Kind == KindContextMismatch {
		d["offset"] = e.Offset
	}
	if e.Line > 0 {
		d["line"] = e.Line
	}
	return d
}

func newError(kind ErrorKind, hunk, line int, format string, args ...any) *Error {
	return &Error{Kind: kind, Hunk: hunk, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// AsError extracts the *Error from err, if any.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsParseError reports whether err was raised before anything was applied because the
// input itself is unusable (null original, bad header, empty hunk, bad body line).
// These are always fatal regardless of policy.
func IsParseError(err error) bool {
	pe, ok := AsError(err)
	if !ok {
		return false
	}
	switch pe.Kind {
	case KindNullInput, KindInvalidHeader, KindEmptyHunk, KindMalformedBodyLine:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether the diff was well-formed but does not fit the buffer.
// A caller can fix these by asking its diff producer for a corrected diff.
func IsRetryable(err error) bool {
	pe, ok := AsError(err)
	if !ok {
		return false
	}
	switch pe.Kind {
	case KindContextMismatch, KindOverlappingHunk, KindCountMismatch:
		return true
	default:
		return false
	}
}
