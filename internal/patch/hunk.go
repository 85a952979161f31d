package patch

import (
	"fmt"
	"strings"
)

// NoNewlineMarker is the literal diff line meaning "the preceding line has no
// terminator in that version of the file".
const NoNewlineMarker = `\ No newline at end of file`

// LineKind is the role of a hunk body line.
type LineKind int

const (
	Context LineKind = iota + 1
	Delete
	Add
)

func (k LineKind) String() string {
	switch k {
	case Context:
		return "context"
	case Delete:
		return "delete"
	case Add:
		return "add"
	default:
		return fmt.Sprintf("LineKind(%d)", int(k))
	}
}

// MarshalText renders the kind by name in JSON and YAML output.
func (k LineKind) MarshalText() ([]byte, error) {
	switch k {
	case Context, Delete, Add:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("invalid line kind %d", int(k))
	}
}

// UnmarshalText accepts the names written by MarshalText.
func (k *LineKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "context":
		*k = Context
	case "delete":
		*k = Delete
	case "add":
		*k = Add
	default:
		return fmt.Errorf("invalid line kind %q", text)
	}
	return nil
}

// prefix returns the diff column character for the kind.
func (k LineKind) prefix() byte {
	switch k {
	case Delete:
		return '-'
	case Add:
		return '+'
	default:
		return ' '
	}
}

// Line is one body line of a hunk.
type Line struct {
	Kind    LineKind `yaml:"kind" json:"kind"`
	Content string   `yaml:"content" json:"content"`

	// NoNewline is set when a NoNewlineMarker followed this line in the diff.
	NoNewline bool `yaml:"no_newline,omitempty" json:"no_newline,omitempty"`
}

// Hunk is one contiguous change region. OldStart and NewStart are 1-based.
type Hunk struct {
	OldStart int `yaml:"old_start" json:"old_start"`
	OldCount int `yaml:"old_count" json:"old_count"`
	NewStart int `yaml:"new_start" json:"new_start"`
	NewCount int `yaml:"new_count" json:"new_count"`

	// Section is any text after the closing "@@" (usually a function name).
	Section string `yaml:"section,omitempty" json:"section,omitempty"`

	Lines []Line `yaml:"lines" json:"lines"`
}

// BodyCounts returns the number of body lines on the old side (context + delete) and
// on the new side (context + add).
func (h Hunk) BodyCounts() (oldCount, newCount int) {
	for _, l := range h.Lines {
		switch l.Kind {
		case Context:
			oldCount++
			newCount++
		case Delete:
			oldCount++
		case Add:
			newCount++
		}
	}
	return oldCount, newCount
}

// Expected returns the content the hunk expects to find in the original buffer.
func (h Hunk) Expected() []string {
	var out []string
	for _, l := range h.Lines {
		if l.Kind == Context || l.Kind == Delete {
			out = append(out, l.Content)
		}
	}
	return out
}

// IsNoop reports whether the hunk only carries context.
func (h Hunk) IsNoop() bool {
	for _, l := range h.Lines {
		if l.Kind != Context {
			return false
		}
	}
	return true
}

// Recount rewrites OldCount and NewCount from the body.
func (h *Hunk) Recount() {
	h.OldCount, h.NewCount = h.BodyCounts()
}

// Header renders the "@@ -a,b +c,d @@" line. Counts are always written explicitly.
func (h Hunk) Header() string {
	header := fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
	if h.Section != "" {
		header += " " + h.Section
	}
	return header
}

// String renders the hunk as diff text, each line terminated by "\n".
func (h Hunk) String() string {
	var sb strings.Builder
	sb.WriteString(h.Header())
	sb.WriteByte('\n')
	for _, l := range h.Lines {
		sb.WriteByte(l.Kind.prefix())
		sb.WriteString(l.Content)
		sb.WriteByte('\n')
		if l.NoNewline {
			sb.WriteString(NoNewlineMarker)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Format renders hunks in order as a single diff without file headers.
func Format(hunks []Hunk) string {
	var sb strings.Builder
	for _, h := range hunks {
		sb.WriteString(h.String())
	}
	return sb.String()
}

// JoinHunk builds diff text from a hunk header and its body supplied separately, as
// tool-calling models tend to return them.
func JoinHunk(header, body string) string {
	return strings.TrimSpace(header) + "\n" + strings.TrimLeft(body, "\r\n")
}
