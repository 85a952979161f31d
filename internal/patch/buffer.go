package patch

import "strings"

// Buffer is the original text split into lines. Each line keeps its own terminator so
// untouched lines are reproduced byte for byte. A Buffer is never modified by Apply.
type Buffer struct {
	lines []string
	eols  []string

	// EndsWithNewline is true when the raw text's last byte is a line terminator.
	EndsWithNewline bool
}

// NewBuffer splits text on "\n", treating a preceding "\r" as part of the terminator.
func NewBuffer(text string) *Buffer {
	lines, eols := splitLines(text)
	return &Buffer{
		lines:           lines,
		eols:            eols,
		EndsWithNewline: strings.HasSuffix(text, "\n"),
	}
}

// Len returns the number of lines.
func (b *Buffer) Len() int {
	return len(b.lines)
}

// Line returns the content of the 0-based line i without its terminator.
func (b *Buffer) Line(i int) string {
	return b.lines[i]
}

// Lines returns a copy of the line contents.
func (b *Buffer) Lines() []string {
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// String reassembles the original text.
func (b *Buffer) String() string {
	var sb strings.Builder
	for i, line := range b.lines {
		sb.WriteString(line)
		sb.WriteString(b.eols[i])
	}
	return sb.String()
}

// newline is the terminator used for lines added by a patch: CRLF if the buffer's
// first terminated line uses it, LF otherwise.
func (b *Buffer) newline() string {
	for _, eol := range b.eols {
		if eol != "" {
			return eol
		}
	}
	return "\n"
}

// splitLines splits on "\n". The returned eols hold "\n", "\r\n" or "" (only possible
// for the last line). A trailing terminator does not produce an empty last line.
func splitLines(text string) (lines, eols []string) {
	for len(text) > 0 {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			lines = append(lines, text)
			eols = append(eols, "")
			break
		}
		line, eol := text[:i], "\n"
		if strings.HasSuffix(line, "\r") {
			line, eol = line[:len(line)-1], "\r\n"
		}
		lines = append(lines, line)
		eols = append(eols, eol)
		text = text[i+1:]
	}
	return lines, eols
}
