package ui

import (
	"fmt"
	"unicode"

	"github.com/eiannone/keyboard"
)

// KeyReader reads one key press. keyboard.GetSingleKey is the default.
type KeyReader func() (rune, keyboard.Key, error)

// Confirm asks a y/N question and reads a single key press, without waiting for
// Enter. Only y or Y confirms. Ctrl+C, Esc and every other key decline.
func (w *Writer) Confirm(question string) (bool, error) {
	return w.ConfirmWith(question, keyboard.GetSingleKey)
}

// ConfirmWith is Confirm with an explicit key source.
func (w *Writer) ConfirmWith(question string, read KeyReader) (bool, error) {
	warnColor.Fprintf(w.stderr, "%s [y/N]: ", question)

	char, key, err := read()
	if err != nil {
		fmt.Fprintln(w.stderr)
		return false, fmt.Errorf("read confirmation: %w", err)
	}

	switch {
	case key == keyboard.KeyCtrlC, key == keyboard.KeyEsc:
		fmt.Fprintln(w.stderr, "^C")
		return false, nil
	case char == 0:
		fmt.Fprintln(w.stderr)
		return false, nil
	}

	fmt.Fprintf(w.stderr, "%c\n", char)
	return unicode.ToLower(char) == 'y', nil
}
