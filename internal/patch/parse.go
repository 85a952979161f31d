package patch

import (
	"strconv"
	"strings"
)

// Parse tokenizes a single-file unified diff into hunks, in the order they appear.
//
// Lines before the first "@@" header ("---"/"+++" file lines, "diff --git", prose) are
// ignored. A diff without any header yields no hunks and no error, which Apply treats
// as "change nothing".
//
// Empty lines inside a body are read as empty context lines, since editors and models
// routinely strip the lone space of a blank context line. Empty lines at the end of a
// body (right before the next header or the end of input) are dropped.
func Parse(diffText string) ([]Hunk, error) {
	lines, _ := splitLines(diffText)

	var hunks []Hunk
	var cur *Hunk
	curLine := 0 // diff line of the current header
	pending := 0 // empty lines not yet known to be inside the body

	finish := func() error {
		if cur == nil {
			return nil
		}
		if len(cur.Lines) == 0 {
			return newError(KindEmptyHunk, len(hunks), curLine, "header %q has no body", cur.Header())
		}
		hunks = append(hunks, *cur)
		cur = nil
		return nil
	}

	for i, raw := range lines {
		lineNo := i + 1

		if strings.HasPrefix(raw, "@@") {
			if err := finish(); err != nil {
				return nil, err
			}
			h, err := parseHeader(raw, len(hunks), lineNo)
			if err != nil {
				return nil, err
			}
			cur, curLine, pending = &h, lineNo, 0
			continue
		}

		if cur == nil {
			continue
		}

		if raw == "" {
			pending++
			continue
		}
		for ; pending > 0; pending-- {
			cur.Lines = append(cur.Lines, Line{Kind: Context})
		}

		if raw == NoNewlineMarker {
			if len(cur.Lines) == 0 {
				return nil, newError(KindMalformedBodyLine, len(hunks), lineNo, "line %d: %q does not follow a body line", lineNo, raw)
			}
			cur.Lines[len(cur.Lines)-1].NoNewline = true
			continue
		}

		var kind LineKind
		switch raw[0] {
		case ' ':
			kind = Context
		case '-':
			kind = Delete
		case '+':
			kind = Add
		default:
			return nil, newError(KindMalformedBodyLine, len(hunks), lineNo,
				"line %d: unexpected line format (must start with space, -, or +): %q", lineNo, raw)
		}
		cur.Lines = append(cur.Lines, Line{Kind: kind, Content: raw[1:]})
	}

	if err := finish(); err != nil {
		return nil, err
	}
	return hunks, nil
}

// parseHeader parses "@@ -<old_start>[,<old_count>] +<new_start>[,<new_count>] @@ [section]".
// The closing "@@" may be omitted; anything else in its place is rejected.
func parseHeader(raw string, index, lineNo int) (Hunk, error) {
	invalid := func(reason string) error {
		return newError(KindInvalidHeader, index, lineNo, "line %d: invalid hunk header %q: %s", lineNo, raw, reason)
	}

	fields := strings.Fields(raw)
	if len(fields) < 3 || fields[0] != "@@" {
		return Hunk{}, invalid("expected \"@@ -old +new @@\"")
	}

	var h Hunk
	var ok bool
	if h.OldStart, h.OldCount, ok = parseRange(fields[1], '-'); !ok {
		return Hunk{}, invalid("bad old range " + strconv.Quote(fields[1]))
	}
	if h.NewStart, h.NewCount, ok = parseRange(fields[2], '+'); !ok {
		return Hunk{}, invalid("bad new range " + strconv.Quote(fields[2]))
	}

	if len(fields) > 3 {
		if fields[3] != "@@" {
			return Hunk{}, invalid("missing closing @@")
		}
		// The ranges cannot contain "@@", so the second occurrence is the closing one.
		rest := raw[strings.Index(raw, "@@")+2:]
		rest = rest[strings.Index(rest, "@@")+2:]
		h.Section = strings.TrimSpace(rest)
	}

	if h.OldStart == 0 && h.OldCount > 0 {
		return Hunk{}, invalid("old range starts at line 0 but is not empty")
	}
	return h, nil
}

// parseRange parses "-start[,count]" or "+start[,count]". An omitted count is 1.
func parseRange(tok string, sign byte) (start, count int, ok bool) {
	if len(tok) < 2 || tok[0] != sign {
		return 0, 0, false
	}
	startStr, countStr, hasCount := strings.Cut(tok[1:], ",")
	if start, ok = parseUint(startStr); !ok {
		return 0, 0, false
	}
	count = 1
	if hasCount {
		if count, ok = parseUint(countStr); !ok {
			return 0, 0, false
		}
	}
	return start, count, true
}

// parseUint accepts plain decimal digits only (no sign).
func parseUint(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
