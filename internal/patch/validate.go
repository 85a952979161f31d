package patch

import "fmt"

// start returns the 0-based buffer index where the hunk's old-side lines begin.
//
// A hunk with no old-side lines is a pure insertion; by unified-diff convention its
// OldStart names the line after which to insert ("@@ -3,0 +4,2 @@" inserts after line 3).
func (h Hunk) start() int {
	if h.OldStart == 0 {
		return 0
	}
	if h.OldCount == 0 && len(h.Expected()) == 0 {
		return h.OldStart
	}
	return h.OldStart - 1
}

// Validate checks that the hunk's context and delete lines match buf exactly at the
// position the header claims. Line terminators are not part of the comparison;
// leading and trailing whitespace is. index is the hunk's position in its diff and is
// only used for error reporting.
func Validate(buf *Buffer, h Hunk, index int) error {
	if buf == nil {
		return nullInput()
	}

	start := h.start()
	expected := h.Expected()
	if len(expected) == 0 && start > buf.Len() {
		return &Error{
			Kind: KindContextMismatch,
			Hunk: index,
			Line: start,
			Msg:  fmt.Sprintf("insertion after line %d is beyond end of input (%d lines)", start, buf.Len()),
		}
	}

	for i, want := range expected {
		pos := start + i
		if pos >= buf.Len() {
			return &Error{
				Kind:   KindContextMismatch,
				Hunk:   index,
				Offset: i,
				Line:   pos + 1,
				Msg:    fmt.Sprintf("expected %q at line %d, but input has only %d lines", want, pos+1, buf.Len()),
			}
		}
		if got := buf.lines[pos]; got != want {
			return &Error{
				Kind:   KindContextMismatch,
				Hunk:   index,
				Offset: i,
				Line:   pos + 1,
				Msg:    fmt.Sprintf("context mismatch at line %d: expected %q, found %q", pos+1, want, got),
			}
		}
	}
	return nil
}

// verifyCounts enforces the header-count invariant.
func verifyCounts(h Hunk, index int) error {
	oldCount, newCount := h.BodyCounts()
	if oldCount == h.OldCount && newCount == h.NewCount {
		return nil
	}
	return &Error{
		Kind: KindCountMismatch,
		Hunk: index,
		Msg: fmt.Sprintf("header %q does not match body (old %d, new %d)",
			h.Header(), oldCount, newCount),
	}
}

func nullInput() *Error {
	return &Error{Kind: KindNullInput, Hunk: -1, Msg: "original text must be provided"}
}
