package patch

import "strings"

// finalize joins the assembled lines into the result text.
//
// The rule for the end of the text:
//   - every line except the last is terminated; a line that had no terminator in the
//     input (the old last line) gets the buffer's terminator once something follows it
//   - the last line keeps its own terminator: a line copied from the input keeps the
//     one it had there, an added line is terminated
//   - a no-newline marker after any added line strips the final terminator
//
// So the input's trailing-newline state carries through unless the patch replaces or
// extends the last line, in which case the result ends with a terminator.
func (a *applier) finalize() string {
	var sb strings.Builder
	last := len(a.out) - 1
	for i, l := range a.out {
		sb.WriteString(l.text)
		switch {
		case i < last:
			if l.eol == "" {
				sb.WriteString(a.eol)
			} else {
				sb.WriteString(l.eol)
			}
		case !a.noNewlineAdd:
			sb.WriteString(l.eol)
		}
	}
	return sb.String()
}
