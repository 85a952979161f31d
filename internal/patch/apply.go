// Package patch applies single-file unified diffs to in-memory text.
//
// The engine is pure: no I/O, no shared state. Parse turns diff text into hunks,
// Validate checks a hunk against the input, and Apply/ApplyHunks splice the hunks in
// order while keeping every untouched line byte for byte.
package patch

import (
	"fmt"
	"strings"
)

// Policy decides what happens when a hunk's context does not match the input.
type Policy int

const (
	// Strict aborts the whole apply on the first mismatching hunk.
	Strict Policy = iota

	// BestEffort skips mismatching hunks, leaves their region untouched and keeps going.
	// Parse errors and overlapping hunks stay fatal.
	BestEffort
)

func (p Policy) String() string {
	switch p {
	case Strict:
		return "strict"
	case BestEffort:
		return "best_effort"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts "strict", "best_effort" and "best-effort". Empty means Strict.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "best_effort", "best-effort":
		return BestEffort, nil
	default:
		return Strict, fmt.Errorf("unknown patch policy %q (want strict or best_effort)", s)
	}
}

type options struct {
	policy       Policy
	verifyCounts bool
}

// Option configures Apply and ApplyHunks.
type Option func(*options)

// WithPolicy selects the context-mismatch policy. The default is Strict.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithVerifyCounts rejects hunks whose header counts disagree with their body.
func WithVerifyCounts(verify bool) Option {
	return func(o *options) { o.verifyCounts = verify }
}

// Skipped records a hunk left out under BestEffort.
type Skipped struct {
	Index int
	Err   *Error
}

// Result is the outcome of a successful apply.
type Result struct {
	Text string

	// Applied holds the 0-based indexes of the hunks that were spliced in.
	Applied []int

	// Skipped is only populated under BestEffort.
	Skipped []Skipped

	// NewlineRemoved is true when the input ended with a line terminator and Text
	// does not.
	NewlineRemoved bool
}

// Apply parses diffText and applies it to buf. A nil buf always fails with
// ErrNullInput, whatever diffText is. A diff without hunks returns the input as is.
func Apply(buf *Buffer, diffText string, opts ...Option) (*Result, error) {
	if buf == nil {
		return nil, nullInput()
	}
	hunks, err := Parse(diffText)
	if err != nil {
		return nil, err
	}
	return ApplyHunks(buf, hunks, opts...)
}

// ApplyString applies diffText to original and returns the patched text.
func ApplyString(original, diffText string, opts ...Option) (string, error) {
	res, err := Apply(NewBuffer(original), diffText, opts...)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// ApplyHunks applies already parsed hunks, in order, to buf. Hunks must be sorted by
// position and must not overlap.
func ApplyHunks(buf *Buffer, hunks []Hunk, opts ...Option) (*Result, error) {
	if buf == nil {
		return nil, nullInput()
	}
	o := options{policy: Strict}
	for _, opt := range opts {
		opt(&o)
	}

	if len(hunks) == 0 {
		return &Result{Text: buf.String()}, nil
	}

	a := &applier{buf: buf, eol: buf.newline()}
	res := &Result{}
	for i, h := range hunks {
		if o.verifyCounts {
			if err := verifyCounts(h, i); err != nil {
				return nil, err
			}
		}

		target := h.start()
		if a.cursor > target {
			return nil, &Error{
				Kind: KindOverlappingHunk,
				Hunk: i,
				Line: target + 1,
				Msg: fmt.Sprintf("hunk starts at line %d, before the end of the previous hunk (line %d); hunks overlap or are out of order",
					target+1, a.cursor),
			}
		}

		if err := Validate(buf, h, i); err != nil {
			pe, _ := AsError(err)
			if o.policy == BestEffort && pe != nil && pe.Kind == KindContextMismatch {
				res.Skipped = append(res.Skipped, Skipped{Index: i, Err: pe})
				continue
			}
			return nil, err
		}

		a.copyTo(target)
		a.splice(h)
		res.Applied = append(res.Applied, i)
	}
	a.copyTo(buf.Len())

	res.Text = a.finalize()
	res.NewlineRemoved = buf.EndsWithNewline && res.Text != "" && !strings.HasSuffix(res.Text, "\n")
	return res, nil
}

// outLine is an assembled output line with the terminator it should carry.
type outLine struct {
	text string
	eol  string
}

type applier struct {
	buf    *Buffer
	eol    string // terminator for added lines
	cursor int    // 0-based read index into buf, never decreases
	out    []outLine

	// noNewlineAdd is set when a no-newline marker followed an added line.
	noNewlineAdd bool
}

// copyTo copies the untouched original lines from the cursor up to end.
func (a *applier) copyTo(end int) {
	for ; a.cursor < end; a.cursor++ {
		a.out = append(a.out, outLine{a.buf.lines[a.cursor], a.buf.eols[a.cursor]})
	}
}

// splice walks the hunk body. The hunk was validated, so context lines equal the
// buffer lines under the cursor and are emitted with the buffer's terminator.
func (a *applier) splice(h Hunk) {
	for _, l := range h.Lines {
		switch l.Kind {
		case Context:
			a.out = append(a.out, outLine{l.Content, a.buf.eols[a.cursor]})
			a.cursor++
		case Delete:
			a.cursor++
		case Add:
			a.out = append(a.out, outLine{l.Content, a.eol})
			if l.NoNewline {
				a.noNewlineAdd = true
			}
		}
	}
}
