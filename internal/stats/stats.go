// Package stats summarizes what a patch did to a file.
package stats

import (
	"fmt"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Stats counts line changes between two versions of a file.
type Stats struct {
	LinesAdded     int `json:"lines_added"`
	LinesRemoved   int `json:"lines_removed"`
	LinesUnchanged int `json:"lines_unchanged"`
	Blocks         int `json:"changed_blocks"` // runs of adjacent added/removed lines
	BytesBefore    int `json:"bytes_before"`
	BytesAfter     int `json:"bytes_after"`
}

// Compute diffs before and after line by line.
func Compute(before, after string) Stats {
	s := Stats{BytesBefore: len(before), BytesAfter: len(after)}
	if before == after {
		s.LinesUnchanged = countLines(before)
		return s
	}

	dmp := diffmatchpatch.New()

	// Each rune stands for one line after DiffLinesToRunes.
	rBefore, rAfter, _ := dmp.DiffLinesToRunes(before, after)
	diffs := dmp.DiffMainRunes(rBefore, rAfter, false)
	diffs = dmp.DiffCleanupMerge(diffs)

	inBlock := false
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			s.LinesUnchanged += n
			inBlock = false
		case diffmatchpatch.DiffDelete:
			s.LinesRemoved += n
			if !inBlock {
				s.Blocks++
				inBlock = true
			}
		case diffmatchpatch.DiffInsert:
			s.LinesAdded += n
			if !inBlock {
				s.Blocks++
				inBlock = true
			}
		}
	}
	return s
}

// Changed reports whether any line was added or removed.
func (s Stats) Changed() bool {
	return s.LinesAdded > 0 || s.LinesRemoved > 0
}

// String renders the git-style short summary, e.g. "+3 -1 (2 blocks)".
func (s Stats) String() string {
	if !s.Changed() {
		return "no changes"
	}
	blocks := "blocks"
	if s.Blocks == 1 {
		blocks = "block"
	}
	return fmt.Sprintf("+%d -%d (%d %s)", s.LinesAdded, s.LinesRemoved, s.Blocks, blocks)
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := 0
	for _, c := range text {
		if c == '\n' {
			n++
		}
	}
	if text[len(text)-1] != '\n' {
		n++
	}
	return n
}
