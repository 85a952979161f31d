package files

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/kvit-s/kvit-patch/internal/patch"
)

// UnifiedDiff renders the change from oldContent to newContent as a unified diff
// with the given number of context lines. Identical inputs give "".
func UnifiedDiff(oldContent, newContent, name string, context int) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        splitLines(oldContent),
		B:        splitLines(newContent),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  context,
	}
	return difflib.GetUnifiedDiffString(diff)
}

// splitLines is difflib.SplitLines without the empty line it appends after a
// trailing newline. An unterminated last line carries the no-newline marker so
// that difflib prints it on its own line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	last := len(lines) - 1
	if lines[last] == "" {
		return lines[:last]
	}
	lines[last] += "\n" + patch.NoNewlineMarker + "\n"
	return lines
}
