// Package source finds the diff text a run should apply.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/kvit-s/kvit-patch/internal/patch"
)

var (
	ErrNoInput = errors.New("no diff given: use --diff, --clipboard, --header/--body or pipe it on stdin")

	// ErrEmptyDiff rejects blank input at the command line. patch.Apply itself treats
	// an empty diff as the identity; here it almost always means an empty clipboard
	// or a truncated pipe.
	ErrEmptyDiff = errors.New("diff is empty")

	ErrNoDiffBlock = errors.New("no ```diff or ```patch block found in markdown")
)

// Options selects where the diff comes from. At most one of DiffPath, Clipboard and
// Header/Body may be set; with none of them a piped stdin is read.
type Options struct {
	DiffPath  string // file path, or "-" for stdin
	Clipboard bool
	Header    string // hunk header, paired with Body
	Body      string

	// Markdown treats the input as a markdown reply and uses its first diff block.
	Markdown bool

	// Stdin and ReadClipboard default to os.Stdin and clipboard.ReadAll.
	Stdin         io.Reader
	ReadClipboard func() (string, error)
}

// Load returns the diff text selected by opts.
func Load(opts Options) (string, error) {
	chosen := 0
	if opts.DiffPath != "" {
		chosen++
	}
	if opts.Clipboard {
		chosen++
	}
	if opts.Header != "" || opts.Body != "" {
		chosen++
	}
	if chosen > 1 {
		return "", errors.New("choose only one of --diff, --clipboard and --header/--body")
	}

	var content string
	var err error
	switch {
	case opts.Header != "" || opts.Body != "":
		if opts.Header == "" || opts.Body == "" {
			return "", errors.New("--header and --body must be given together")
		}
		return patch.JoinHunk(opts.Header, opts.Body), nil
	case opts.Clipboard:
		content, err = fromClipboard(opts.ReadClipboard)
	case opts.DiffPath == "-":
		content, err = fromReader(opts.stdin())
	case opts.DiffPath != "":
		content, err = fromFile(opts.DiffPath)
	default:
		if opts.Stdin == nil && !stdinIsPiped() {
			return "", ErrNoInput
		}
		content, err = fromReader(opts.stdin())
	}
	if err != nil {
		return "", err
	}

	if opts.Markdown {
		blocks, err := ExtractDiffBlocks([]byte(content))
		if err != nil {
			return "", err
		}
		if len(blocks) == 0 {
			return "", ErrNoDiffBlock
		}
		content = blocks[0].Content
	}

	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyDiff
	}
	return content, nil
}

func (o Options) stdin() io.Reader {
	if o.Stdin != nil {
		return o.Stdin
	}
	return os.Stdin
}

func stdinIsPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func fromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read diff: %w", err)
	}
	return string(data), nil
}

func fromReader(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read from stdin: %w", err)
	}
	return string(data), nil
}

func fromClipboard(read func() (string, error)) (string, error) {
	if read == nil {
		read = clipboard.ReadAll
	}
	content, err := read()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	return content, nil
}

// TargetPath returns the file named by the diff's "+++" line, without the "b/"
// prefix git adds. It falls back to the "---" line when the new side is /dev/null
// and returns "" when the diff names no file.
func TargetPath(diffText string) string {
	var oldPath, newPath string
	for _, line := range strings.Split(diffText, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "@@"):
			return pickPath(oldPath, newPath)
		case strings.HasPrefix(line, "--- "):
			oldPath = headerPath(line[4:], "a/")
		case strings.HasPrefix(line, "+++ "):
			newPath = headerPath(line[4:], "b/")
		}
	}
	return pickPath(oldPath, newPath)
}

func pickPath(oldPath, newPath string) string {
	if newPath != "" && newPath != "/dev/null" {
		return newPath
	}
	if oldPath == "/dev/null" {
		return ""
	}
	return oldPath
}

// headerPath strips the timestamp some tools append after a tab and the git prefix.
func headerPath(s, prefix string) string {
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	return strings.TrimPrefix(s, prefix)
}
