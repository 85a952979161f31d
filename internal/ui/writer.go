package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/kvit-s/kvit-patch/internal/stats"
)

// Color definitions for consistent UI
var (
	// Gray for info and debug lines
	grayColor = color.New(color.FgWhite, color.Faint)

	// Red for errors and deleted lines
	errorColor = color.New(color.FgRed)

	// Yellow for warnings
	warnColor = color.New(color.FgYellow)

	// Green for success and added lines
	successColor = color.New(color.FgGreen)

	// Cyan for hunk headers
	hunkColor = color.New(color.FgCyan)

	boldColor = color.New(color.Bold)
)

// JSONOutput is the document printed by --json.
type JSONOutput struct {
	Status  string        `json:"status"` // "applied", "preview", "checked", "declined" or "failed"
	RunID   string        `json:"run_id,omitempty"`
	Path    string        `json:"path,omitempty"`
	Applied []int         `json:"applied,omitempty"` // 1-based hunk numbers
	Skipped []JSONSkipped `json:"skipped,omitempty"`
	Written bool          `json:"written"`
	Stats   *stats.Stats  `json:"stats,omitempty"`
	Diff    string        `json:"diff,omitempty"`
	Error   *JSONError    `json:"error,omitempty"`
}

// JSONSkipped describes a hunk left out under the best-effort policy.
type JSONSkipped struct {
	Hunk   int    `json:"hunk"`
	Line   int    `json:"line,omitempty"`
	Reason string `json:"reason"`
}

// JSONError carries the classification of a failed run.
type JSONError struct {
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// Writer provides formatted output with consistent prefixes and optional colors.
// Messages go to stderr so that stdout only carries results (patched text, diffs, JSON).
type Writer struct {
	verbose  bool
	quiet    bool
	jsonMode bool      // results as JSON, messages suppressed
	stderr   io.Writer // defaults to os.Stderr
	stdout   io.Writer // defaults to os.Stdout
}

// NewWriter creates a Writer on the process streams.
func NewWriter() *Writer {
	return NewWriterTo(os.Stdout, os.Stderr)
}

// NewWriterTo creates a Writer on the given streams. Colors follow color.NoColor,
// which fatih/color turns off when stdout is not a terminal.
func NewWriterTo(stdout, stderr io.Writer) *Writer {
	return &Writer{stdout: stdout, stderr: stderr}
}

// SetVerbose enables Debug output.
func (w *Writer) SetVerbose(verbose bool) {
	w.verbose = verbose
}

// SetQuiet suppresses everything except results and errors.
func (w *Writer) SetQuiet(quiet bool) {
	w.quiet = quiet
}

// SetJSONMode enables or disables JSON output mode.
func (w *Writer) SetJSONMode(jsonMode bool) {
	w.jsonMode = jsonMode
}

// IsJSONMode returns true if JSON mode is enabled.
func (w *Writer) IsJSONMode() bool {
	return w.jsonMode
}

// Stdout is where results are written.
func (w *Writer) Stdout() io.Writer {
	return w.stdout
}

func (w *Writer) silent() bool {
	return w.quiet || w.jsonMode
}

// Info prints an info message with [info] prefix in gray.
func (w *Writer) Info(msg string) {
	if w.silent() {
		return
	}
	grayColor.Fprintf(w.stderr, "[info] %s\n", msg)
}

// Success prints a result line with [ok] prefix in green.
func (w *Writer) Success(msg string) {
	if w.silent() {
		return
	}
	successColor.Fprintf(w.stderr, "[ok] %s\n", msg)
}

// Warn prints a warning message with [warn] prefix in yellow.
func (w *Writer) Warn(msg string) {
	if w.silent() {
		return
	}
	warnColor.Fprintf(w.stderr, "[warn] %s\n", msg)
}

// Error prints an error message with [error] prefix in red. Quiet mode does not
// hide errors; JSON mode reports them in the document instead.
func (w *Writer) Error(msg string) {
	if w.jsonMode {
		return
	}
	errorColor.Fprintf(w.stderr, "[error] %s\n", msg)
}

// Debug prints a debug message in gray, only if verbose mode is enabled.
func (w *Writer) Debug(msg string) {
	if w.silent() || !w.verbose {
		return
	}
	grayColor.Fprintf(w.stderr, "[debug] %s\n", msg)
}

// Diff prints a unified diff to stdout with git-like colors.
func (w *Writer) Diff(diff string) {
	if w.jsonMode || diff == "" {
		return
	}
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			boldColor.Fprint(w.stdout, line)
		case strings.HasPrefix(line, "@@"):
			hunkColor.Fprint(w.stdout, line)
		case strings.HasPrefix(line, "+"):
			successColor.Fprint(w.stdout, line)
		case strings.HasPrefix(line, "-"):
			errorColor.Fprint(w.stdout, line)
		case strings.HasPrefix(line, `\`):
			grayColor.Fprint(w.stdout, line)
		default:
			fmt.Fprint(w.stdout, line)
		}
	}
	if !strings.HasSuffix(diff, "\n") {
		fmt.Fprintln(w.stdout)
	}
}

// Text prints raw text to stdout unchanged.
func (w *Writer) Text(text string) {
	fmt.Fprint(w.stdout, text)
}

// WriteJSON prints the JSON document to stdout. It is a no-op outside JSON mode.
func (w *Writer) WriteJSON(out JSONOutput) {
	if !w.jsonMode {
		return
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Fprintln(w.stdout, string(data))
}
