package patch

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestApplyString(t *testing.T) {
	tests := []struct {
		name     string
		original string
		diff     string
		want     string
	}{
		{
			name:     "simple substitution and append",
			original: "line1\nline2\nline3\n",
			diff: `--- a/orig.txt
+++ b/orig.txt
@@ -1,3 +1,4 @@
 line1
-line2
+kitty
 line3
+line4
`,
			want: "line1\nkitty\nline3\nline4\n",
		},
		{
			name:     "pure deletion",
			original: "a\nb\nc\n",
			diff: `--- a/orig2.txt
+++ b/orig2.txt
@@ -1,3 +1,2 @@
 a
-b
 c
`,
			want: "a\nc\n",
		},
		{
			name:     "multiple hunks",
			original: "one\ntwo\nthree\nfour\nfive\nsix\n",
			diff: `--- a/multi.txt
+++ b/multi.txt
@@ -1,3 +1,3 @@
 one
-two
+TWO
 three
@@ -4,3 +4,3 @@
 four
-five
+FIVE
 six
`,
			want: "one\nTWO\nthree\nfour\nFIVE\nsix\n",
		},
		{
			name:     "replacing unterminated last line restores terminator",
			original: "a\nb\nc",
			diff: `--- a/nonewline.txt
+++ b/nonewline.txt
@@ -1,3 +1,3 @@
 a
 b
-c
\ No newline at end of file
+d
`,
			want: "a\nb\nd\n",
		},
		{
			name:     "insert at start and delete last line",
			original: "middle\nend\n",
			diff: `--- a/bounds.txt
+++ b/bounds.txt
@@ -1,2 +1,3 @@
+start
 middle
-end
`,
			want: "start\nmiddle\n",
		},
		{
			name:     "marker on added line strips final terminator",
			original: "a\nb\n",
			diff:     "@@ -1,2 +1,2 @@\n a\n-b\n+c\n\\ No newline at end of file\n",
			want:     "a\nc",
		},
		{
			name:     "unterminated last line untouched by hunk keeps its state",
			original: "a\nb\nc",
			diff:     "@@ -1,1 +1,1 @@\n-a\n+A\n",
			want:     "A\nb\nc",
		},
		{
			name:     "deleting unterminated last line leaves terminated previous line",
			original: "a\nb\nc",
			diff:     "@@ -2,2 +2,1 @@\n b\n-c\n\\ No newline at end of file\n",
			want:     "a\nb\n",
		},
		{
			name:     "appending after unterminated last line",
			original: "a\nb",
			diff:     "@@ -2,1 +2,2 @@\n b\n\\ No newline at end of file\n+c\n",
			want:     "a\nb\nc\n",
		},
		{
			name:     "pure insertion after a line",
			original: "a\nb\nc\n",
			diff:     "@@ -2,0 +3,2 @@\n+x\n+y\n",
			want:     "a\nb\nx\ny\nc\n",
		},
		{
			name:     "insertion into empty input",
			original: "",
			diff:     "@@ -0,0 +1,2 @@\n+hello\n+world\n",
			want:     "hello\nworld\n",
		},
		{
			name:     "delete everything",
			original: "a\nb\n",
			diff:     "@@ -1,2 +0,0 @@\n-a\n-b\n",
			want:     "",
		},
		{
			name:     "crlf input keeps crlf and added lines follow it",
			original: "a\r\nb\r\nc\r\n",
			diff:     "@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n",
			want:     "a\r\nB\r\nc\r\n",
		},
		{
			name:     "context only hunk is a no-op",
			original: "x\ny\nz\n",
			diff:     "@@ -1,3 +1,3 @@\n x\n y\n z\n",
			want:     "x\ny\nz\n",
		},
		{
			name:     "whitespace in context is significant but terminator is not",
			original: "  indented\t\nplain\n",
			diff:     "@@ -1,2 +1,2 @@\n   indented\t\n-plain\n+PLAIN\n",
			want:     "  indented\t\nPLAIN\n",
		},
		{
			name:     "header counts are not enforced by default",
			original: "a\nb\nc\n",
			diff:     "@@ -2,7 +2,9 @@\n-b\n+B\n",
			want:     "a\nB\nc\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyString(tt.original, tt.diff)
			if err != nil {
				t.Fatalf("ApplyString() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ApplyString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApply_LineSequences(t *testing.T) {
	res, err := Apply(NewBuffer("one\ntwo\nthree\nfour\nfive\nsix\n"),
		"@@ -1,3 +1,3 @@\n one\n-two\n+TWO\n three\n@@ -4,3 +4,3 @@\n four\n-five\n+FIVE\n six\n")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := []string{"one", "TWO", "three", "four", "FIVE", "six"}
	if got := strings.Split(strings.TrimSuffix(res.Text, "\n"), "\n"); !reflect.DeepEqual(got, want) {
		t.Errorf("lines = %q, want %q", got, want)
	}
	if !reflect.DeepEqual(res.Applied, []int{0, 1}) {
		t.Errorf("Applied = %v, want [0 1]", res.Applied)
	}
	if len(res.Skipped) != 0 {
		t.Errorf("Skipped = %v, want none", res.Skipped)
	}
}

func TestApply_IdentityOnEmptyDiff(t *testing.T) {
	texts := []string{
		"",
		"\n",
		"single",
		"a\nb\nc\n",
		"a\nb\nc",
		"windows\r\nline\r\n",
		"mixed\r\nendings\nhere",
		"\n\n\n",
	}
	for _, text := range texts {
		got, err := ApplyString(text, "")
		if err != nil {
			t.Fatalf("ApplyString(%q, \"\") error = %v", text, err)
		}
		if got != text {
			t.Errorf("ApplyString(%q, \"\") = %q", text, got)
		}
	}
}

func TestApply_NullInput(t *testing.T) {
	diffs := []string{
		"",
		"@@ -1 +1 @@\n-a\n+b\n",
		"@@ garbage",
		"@@ -1,1 +1,1 @@\n",
	}
	for _, diff := range diffs {
		_, err := Apply(nil, diff)
		if !errors.Is(err, ErrNullInput) {
			t.Errorf("Apply(nil, %q) error = %v, want ErrNullInput", diff, err)
		}
	}

	if _, err := ApplyHunks(nil, nil); !errors.Is(err, ErrNullInput) {
		t.Errorf("ApplyHunks(nil, nil) error = %v, want ErrNullInput", err)
	}
}

func TestApply_ContextOnlyRoundTrip(t *testing.T) {
	texts := []string{
		"a\n",
		"a\nb\nc\n",
		"a\nb\nc",
		"  spaced  \n\ttabbed\n",
		"crlf\r\nfile\r\n",
		"last\nline\nno newline",
		"\n\nblank lines\n\n",
	}
	for _, text := range texts {
		buf := NewBuffer(text)
		h := Hunk{OldStart: 1, NewStart: 1}
		for _, line := range buf.Lines() {
			h.Lines = append(h.Lines, Line{Kind: Context, Content: line})
		}
		h.Recount()
		if !buf.EndsWithNewline {
			h.Lines[len(h.Lines)-1].NoNewline = true
		}

		got, err := ApplyString(text, h.String())
		if err != nil {
			t.Fatalf("ApplyString(%q) error = %v", text, err)
		}
		if got != text {
			t.Errorf("context-only hunk changed %q into %q", text, got)
		}
	}
}

func TestApply_ContextMismatchStrict(t *testing.T) {
	tests := []struct {
		name       string
		original   string
		diff       string
		wantHunk   int
		wantOffset int
		wantLine   int
	}{
		{
			name:       "differing content",
			original:   "a\nb\nc\n",
			diff:       "@@ -1,3 +1,3 @@\n a\n-x\n+y\n c\n",
			wantHunk:   0,
			wantOffset: 1,
			wantLine:   2,
		},
		{
			name:       "short buffer",
			original:   "a\n",
			diff:       "@@ -1,2 +1,2 @@\n a\n-b\n+c\n",
			wantHunk:   0,
			wantOffset: 1,
			wantLine:   2,
		},
		{
			name:       "trailing whitespace differs",
			original:   "a \nb\n",
			diff:       "@@ -1,2 +1,2 @@\n a\n-b\n+c\n",
			wantHunk:   0,
			wantOffset: 0,
			wantLine:   1,
		},
		{
			name:       "second hunk fails and nothing is applied",
			original:   "1\n2\n3\n4\n5\n",
			diff:       "@@ -1 +1 @@\n-1\n+one\n@@ -4 +4 @@\n-nope\n+four\n",
			wantHunk:   1,
			wantOffset: 0,
			wantLine:   4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Apply(NewBuffer(tt.original), tt.diff)
			if res != nil {
				t.Errorf("Apply() result = %+v, want nil", res)
			}
			if !errors.Is(err, ErrContextMismatch) {
				t.Fatalf("Apply() error = %v, want ErrContextMismatch", err)
			}
			if !IsRetryable(err) {
				t.Error("IsRetryable() = false, want true")
			}
			pe, _ := AsError(err)
			if pe.Hunk != tt.wantHunk {
				t.Errorf("Hunk = %d, want %d", pe.Hunk, tt.wantHunk)
			}
			if pe.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", pe.Offset, tt.wantOffset)
			}
			if pe.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", pe.Line, tt.wantLine)
			}
		})
	}
}

func TestApply_BestEffortSkipsMismatchedHunk(t *testing.T) {
	original := "one\ntwo\nthree\nfour\nfive\nsix\n"
	diff := `@@ -1,3 +1,3 @@
 one
-TWO?
+2
 three
@@ -4,3 +4,3 @@
 four
-five
+FIVE
 six
`
	res, err := Apply(NewBuffer(original), diff, WithPolicy(BestEffort))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if want := "one\ntwo\nthree\nfour\nFIVE\nsix\n"; res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if !reflect.DeepEqual(res.Applied, []int{1}) {
		t.Errorf("Applied = %v, want [1]", res.Applied)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Index != 0 {
		t.Fatalf("Skipped = %+v, want hunk 0", res.Skipped)
	}
	if res.Skipped[0].Err.Kind != KindContextMismatch {
		t.Errorf("Skipped[0].Err.Kind = %v", res.Skipped[0].Err.Kind)
	}

	if _, err := Apply(NewBuffer(original), diff); !errors.Is(err, ErrContextMismatch) {
		t.Errorf("strict Apply() error = %v, want ErrContextMismatch", err)
	}
}

func TestApply_OverlappingHunks(t *testing.T) {
	original := "a\nb\nc\nd\ne\n"
	tests := []struct {
		name string
		diff string
	}{
		{
			name: "ranges overlap",
			diff: "@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n@@ -2,2 +2,2 @@\n b\n-c\n+C\n",
		},
		{
			name: "out of order",
			diff: "@@ -4,1 +4,1 @@\n-d\n+D\n@@ -1,1 +1,1 @@\n-a\n+A\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, policy := range []Policy{Strict, BestEffort} {
				_, err := Apply(NewBuffer(original), tt.diff, WithPolicy(policy))
				if !errors.Is(err, ErrOverlappingHunk) {
					t.Errorf("policy %v: error = %v, want ErrOverlappingHunk", policy, err)
				}
				pe, _ := AsError(err)
				if pe == nil || pe.Hunk != 1 {
					t.Errorf("policy %v: error hunk = %+v, want 1", policy, pe)
				}
			}
		})
	}
}

func TestApply_AdjacentHunksDoNotOverlap(t *testing.T) {
	got, err := ApplyString("a\nb\nc\n", "@@ -1,1 +1,1 @@\n-a\n+A\n@@ -2,1 +2,1 @@\n-b\n+B\n")
	if err != nil {
		t.Fatalf("ApplyString() error = %v", err)
	}
	if got != "A\nB\nc\n" {
		t.Errorf("ApplyString() = %q", got)
	}
}

func TestApply_VerifyCounts(t *testing.T) {
	diff := "@@ -1,5 +1,5 @@\n a\n-b\n+B\n"
	if _, err := ApplyString("a\nb\n", diff); err != nil {
		t.Fatalf("lenient ApplyString() error = %v", err)
	}
	_, err := ApplyString("a\nb\n", diff, WithVerifyCounts(true))
	if !errors.Is(err, ErrCountMismatch) {
		t.Fatalf("ApplyString() error = %v, want ErrCountMismatch", err)
	}
	if IsParseError(err) {
		t.Error("count mismatch should not be a parse error")
	}
}

func TestApply_InsertionBeyondEnd(t *testing.T) {
	_, err := ApplyString("a\n", "@@ -5,0 +6,1 @@\n+x\n")
	if !errors.Is(err, ErrContextMismatch) {
		t.Errorf("error = %v, want ErrContextMismatch", err)
	}
}

func TestApply_NewlineRemoved(t *testing.T) {
	res, err := Apply(NewBuffer("a\nb\n"), "@@ -2 +2 @@\n-b\n+c\n\\ No newline at end of file\n")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !res.NewlineRemoved {
		t.Error("NewlineRemoved = false, want true")
	}

	res, err = Apply(NewBuffer("a\nb\n"), "@@ -2 +2 @@\n-b\n+c\n")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.NewlineRemoved {
		t.Error("NewlineRemoved = true, want false")
	}
}

func TestApply_DoesNotMutateBuffer(t *testing.T) {
	buf := NewBuffer("a\nb\nc\n")
	before := buf.Lines()
	if _, err := Apply(buf, "@@ -2 +2 @@\n-b\n+B\n"); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !reflect.DeepEqual(buf.Lines(), before) || buf.String() != "a\nb\nc\n" {
		t.Errorf("buffer changed to %q", buf.String())
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", Strict, false},
		{"strict", Strict, false},
		{"STRICT", Strict, false},
		{"best_effort", BestEffort, false},
		{"best-effort", BestEffort, false},
		{"fuzzy", Strict, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
