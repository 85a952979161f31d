package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kvit-s/kvit-patch/internal/checkpoint"
	"github.com/kvit-s/kvit-patch/internal/config"
	"github.com/kvit-s/kvit-patch/internal/patch"
)

type fixture struct {
	root   string
	cfg    *config.Config
	logs   *observer.ObservedLogs
	runner *Runner
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Workspace.Root = root

	core, logs := observer.New(zapcore.DebugLevel)
	return &fixture{
		root:   root,
		cfg:    cfg,
		logs:   logs,
		runner: New(cfg, newLoggerWithCore(core), opts...),
	}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.root, name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func (f *fixture) withCheckpoints(t *testing.T) *checkpoint.Manager {
	t.Helper()
	mgr, err := checkpoint.NewManager(f.root, 0)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	f.runner = New(f.cfg, nil, WithCheckpoints(mgr))
	return mgr
}

const twoHunkDiff = "--- a/notes.txt\n+++ b/notes.txt\n@@ -1,2 +1,2 @@\n-one\n+ONE\n two\n@@ -5,1 +5,1 @@\n-five\n+FIVE\n"

const notes = "one\ntwo\nthree\nfour\nfive\n"

func TestRun_WritesPatchedFile(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", notes)

	out, err := f.runner.Run(context.Background(), Request{Path: "notes.txt", Diff: twoHunkDiff})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if got, want := f.read(t, "notes.txt"), "ONE\ntwo\nthree\nfour\nFIVE\n"; got != want {
		t.Errorf("file = %q, want %q", got, want)
	}
	if !out.Written {
		t.Error("Written = false, want true")
	}
	if !reflect.DeepEqual(out.Applied, []int{0, 1}) {
		t.Errorf("Applied = %v, want [0 1]", out.Applied)
	}
	if out.Rel != "notes.txt" {
		t.Errorf("Rel = %q, want notes.txt", out.Rel)
	}
	if out.Stats.LinesAdded != 2 || out.Stats.LinesRemoved != 2 {
		t.Errorf("Stats = %+v, want +2 -2", out.Stats)
	}
	if !strings.Contains(out.Diff, "+ONE") {
		t.Errorf("Diff missing +ONE:\n%s", out.Diff)
	}
	if _, err := uuid.Parse(out.RunID); err != nil {
		t.Errorf("RunID %q is not a UUID: %v", out.RunID, err)
	}

	applied := f.logs.FilterMessage("patch applied").All()
	if len(applied) != 1 {
		t.Fatalf("got %d \"patch applied\" events, want 1", len(applied))
	}
	fields := applied[0].ContextMap()
	if fields["run_id"] != out.RunID {
		t.Errorf("run_id = %v, want %s", fields["run_id"], out.RunID)
	}
	if fields["hunks_applied"] != int64(2) {
		t.Errorf("hunks_applied = %v, want 2", fields["hunks_applied"])
	}
	if fields["written"] != true {
		t.Errorf("written = %v, want true", fields["written"])
	}

	if _, err := os.Stat(filepath.Join(f.root, ".kvit-patch.lock")); !os.IsNotExist(err) {
		t.Errorf("lock file must be released, stat error = %v", err)
	}
}

func TestRun_TargetFromDiffHeader(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", notes)

	out, err := f.runner.Run(context.Background(), Request{Diff: twoHunkDiff})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if want := filepath.Join(f.root, "notes.txt"); out.Path != want {
		t.Errorf("Path = %q, want %q", out.Path, want)
	}
	if !out.Written {
		t.Error("Written = false, want true")
	}
}

func TestRun_NoTarget(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner.Run(context.Background(), Request{Diff: "@@ -1 +1 @@\n-a\n+b\n"})
	if !errors.Is(err, ErrNoTarget) {
		t.Errorf("Run() error = %v, want ErrNoTarget", err)
	}
}

func TestRun_CheckAndPreviewDoNotWrite(t *testing.T) {
	for _, mode := range []Mode{ModeCheck, ModePreview} {
		f := newFixture(t)
		f.write(t, "notes.txt", notes)

		out, err := f.runner.Run(context.Background(), Request{Path: "notes.txt", Diff: twoHunkDiff, Mode: mode})
		if err != nil {
			t.Fatalf("mode %d: Run() error: %v", mode, err)
		}
		if out.Written {
			t.Errorf("mode %d: Written = true", mode)
		}
		if out.Result.Text != "ONE\ntwo\nthree\nfour\nFIVE\n" {
			t.Errorf("mode %d: Result.Text = %q", mode, out.Result.Text)
		}
		if got := f.read(t, "notes.txt"); got != notes {
			t.Errorf("mode %d: file changed to %q", mode, got)
		}
	}
}

func TestRun_StrictMismatchLeavesFileAlone(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", "one\ntwo\nthree\nfour\n5\n")

	out, err := f.runner.Run(context.Background(), Request{Path: "notes.txt", Diff: twoHunkDiff})
	if !errors.Is(err, patch.ErrContextMismatch) || !patch.IsRetryable(err) {
		t.Fatalf("Run() error = %v, want retryable context mismatch", err)
	}
	if out.RunID == "" {
		t.Error("RunID is empty on failure")
	}
	if got := f.read(t, "notes.txt"); got != "one\ntwo\nthree\nfour\n5\n" {
		t.Errorf("file changed to %q", got)
	}

	failed := f.logs.FilterMessage("patch failed").All()
	if len(failed) != 1 {
		t.Fatalf("got %d \"patch failed\" events, want 1", len(failed))
	}
	fields := failed[0].ContextMap()
	if fields["kind"] != "context_mismatch" || fields["hunk"] != int64(2) {
		t.Errorf("failure fields = %v", fields)
	}
}

func TestRun_BestEffortSkipsAndLogs(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", "one\ntwo\nthree\nfour\n5\n")

	out, err := f.runner.Run(context.Background(), Request{Path: "notes.txt", Diff: twoHunkDiff, Policy: patch.BestEffort})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if got := f.read(t, "notes.txt"); got != "ONE\ntwo\nthree\nfour\n5\n" {
		t.Errorf("file = %q", got)
	}
	if !reflect.DeepEqual(out.Applied, []int{0}) {
		t.Errorf("Applied = %v, want [0]", out.Applied)
	}
	if len(out.Skipped) != 1 || out.Skipped[0].Index != 1 {
		t.Errorf("Skipped = %+v, want hunk index 1", out.Skipped)
	}
	if n := f.logs.FilterMessage("hunk skipped").Len(); n != 1 {
		t.Errorf("got %d \"hunk skipped\" events, want 1", n)
	}
}

func TestRun_SelectSubset(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", notes)

	var seen int
	out, err := f.runner.Run(context.Background(), Request{
		Path: "notes.txt",
		Diff: twoHunkDiff,
		Select: func(path string, hunks []patch.Hunk) ([]int, error) {
			seen = len(hunks)
			return []int{1}, nil
		},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if seen != 2 {
		t.Errorf("Select saw %d hunks, want 2", seen)
	}
	if !reflect.DeepEqual(out.Applied, []int{1}) {
		t.Errorf("Applied = %v, want [1]", out.Applied)
	}
	if got := f.read(t, "notes.txt"); got != "one\ntwo\nthree\nfour\nFIVE\n" {
		t.Errorf("file = %q", got)
	}
}

func TestRun_SelectErrors(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", notes)

	aborted := errors.New("aborted")
	_, err := f.runner.Run(context.Background(), Request{
		Path:   "notes.txt",
		Diff:   twoHunkDiff,
		Select: func(string, []patch.Hunk) ([]int, error) { return nil, aborted },
	})
	if !errors.Is(err, aborted) {
		t.Errorf("Run() error = %v, want %v", err, aborted)
	}

	_, err = f.runner.Run(context.Background(), Request{
		Path:   "notes.txt",
		Diff:   twoHunkDiff,
		Select: func(string, []patch.Hunk) ([]int, error) { return []int{7}, nil },
	})
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("Run() error = %v, want unknown hunk error", err)
	}
	if got := f.read(t, "notes.txt"); got != notes {
		t.Errorf("file changed to %q", got)
	}
}

func TestRun_SelectedHunkErrorUsesDiffNumbering(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", "one\ntwo\nthree\nfour\n5\n")

	_, err := f.runner.Run(context.Background(), Request{
		Path:   "notes.txt",
		Diff:   twoHunkDiff,
		Select: func(string, []patch.Hunk) ([]int, error) { return []int{1}, nil },
	})
	pe, ok := patch.AsError(err)
	if !ok {
		t.Fatalf("Run() error = %v, want *patch.Error", err)
	}
	if pe.Hunk != 1 {
		t.Errorf("Hunk = %d, want 1", pe.Hunk)
	}
}

func TestRun_MissingFile(t *testing.T) {
	f := newFixture(t)

	_, err := f.runner.Run(context.Background(), Request{Path: "nope.txt", Diff: "@@ -1 +1 @@\n-a\n+b\n"})
	if !errors.Is(err, ErrMissing) || !errors.Is(err, patch.ErrNullInput) {
		t.Errorf("Run() error = %v, want ErrMissing wrapping ErrNullInput", err)
	}
}

func TestRun_CreatesFileFromDevNullDiff(t *testing.T) {
	f := newFixture(t)

	diff := "--- /dev/null\n+++ b/pkg/new.go\n@@ -0,0 +1,2 @@\n+package pkg\n+\n"
	out, err := f.runner.Run(context.Background(), Request{Diff: diff})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !out.Created || !out.Written {
		t.Errorf("Created = %v, Written = %v, want both", out.Created, out.Written)
	}
	if got := f.read(t, "pkg/new.go"); got != "package pkg\n\n" {
		t.Errorf("file = %q", got)
	}
}

func TestRun_OutputPath(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", notes)

	_, err := f.runner.Run(context.Background(), Request{Path: "notes.txt", Diff: twoHunkDiff, OutputPath: "out/notes.txt"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := f.read(t, "notes.txt"); got != notes {
		t.Errorf("target changed to %q", got)
	}
	if got := f.read(t, "out/notes.txt"); got != "ONE\ntwo\nthree\nfour\nFIVE\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRun_Confirm(t *testing.T) {
	var asked string
	answer := false
	f := newFixture(t, WithConfirm(func(q string) (bool, error) {
		asked = q
		return answer, nil
	}))
	f.write(t, "notes.txt", notes)

	out, err := f.runner.Run(context.Background(), Request{Path: "notes.txt", Diff: twoHunkDiff, Confirm: true})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !out.Declined || out.Written {
		t.Errorf("Declined = %v, Written = %v, want declined", out.Declined, out.Written)
	}
	if got := f.read(t, "notes.txt"); got != notes {
		t.Errorf("file changed to %q", got)
	}
	if want := "Write notes.txt (+2 -2 (2 blocks))?"; asked != want {
		t.Errorf("question = %q, want %q", asked, want)
	}
	if n := f.logs.FilterMessage("write declined").Len(); n != 1 {
		t.Errorf("got %d \"write declined\" events, want 1", n)
	}

	answer = true
	out, err = f.runner.Run(context.Background(), Request{Path: "notes.txt", Diff: twoHunkDiff, Confirm: true})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !out.Written {
		t.Error("Written = false after confirming")
	}
}

func TestRun_FileChangedWhileWaitingForConfirm(t *testing.T) {
	f := newFixture(t)
	mgr := f.withCheckpoints(t)
	f.write(t, "notes.txt", notes)

	other := New(f.cfg, nil)
	first := New(f.cfg, nil, WithCheckpoints(mgr), WithConfirm(func(string) (bool, error) {
		// Another run lands while the user is still answering
		_, err := other.Run(context.Background(), Request{Path: "notes.txt", Diff: "@@ -3 +3 @@\n-three\n+THREE\n"})
		return true, err
	}))

	out, err := first.Run(context.Background(), Request{Path: "notes.txt", Diff: "@@ -1 +1 @@\n-one\n+ONE\n", Confirm: true})
	if !errors.Is(err, ErrChanged) {
		t.Fatalf("Run() error = %v, want ErrChanged", err)
	}
	if !patch.IsRetryable(err) {
		t.Errorf("IsRetryable(%v) = false, want true", err)
	}
	if out.Written || out.Checkpoint {
		t.Errorf("Written = %v, Checkpoint = %v, want neither", out.Written, out.Checkpoint)
	}

	if got, want := f.read(t, "notes.txt"), "one\ntwo\nTHREE\nfour\nfive\n"; got != want {
		t.Errorf("file = %q, want the other run's edit %q", got, want)
	}
	entries, err := mgr.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d checkpoints, want none for a refused write", len(entries))
	}
}

func TestRun_FileCreatedWhileWaitingForConfirm(t *testing.T) {
	f := newFixture(t)
	first := New(f.cfg, nil, WithConfirm(func(string) (bool, error) {
		f.write(t, "new.txt", "already here\n")
		return true, nil
	}))

	_, err := first.Run(context.Background(), Request{Diff: "--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1 @@\n+hi\n", Confirm: true})
	if !errors.Is(err, ErrChanged) {
		t.Fatalf("Run() error = %v, want ErrChanged", err)
	}
	if got := f.read(t, "new.txt"); got != "already here\n" {
		t.Errorf("file = %q, want it untouched", got)
	}
}

func TestRun_WorkspaceRules(t *testing.T) {
	f := newFixture(t)
	f.cfg.Workspace.Ignore = []string{"vendor"}
	f.cfg.Workspace.MaxFileSizeKB = 1
	f.write(t, "vendor/lib.go", "package lib\n")
	f.write(t, "big.txt", string(make([]byte, 2048)))

	tests := []struct {
		name string
		path string
		diff string
		want error
	}{
		{"ignored", "vendor/lib.go", "@@ -1 +1 @@\n-package lib\n+package lib2\n", ErrIgnored},
		{"too large", "big.txt", "@@ -1 +1 @@\n-a\n+b\n", ErrTooLarge},
		{"outside root", "../escape.txt", "@@ -1 +1 @@\n-a\n+b\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.runner.Run(context.Background(), Request{Path: tt.path, Diff: tt.diff})
			if err == nil {
				t.Fatal("Run() error = nil, want error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Run() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRun_ParseErrorIsNotRetryable(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", notes)

	_, err := f.runner.Run(context.Background(), Request{Path: "notes.txt", Diff: "@@ -1 +1 @@\n*bad\n"})
	if !patch.IsParseError(err) || patch.IsRetryable(err) {
		t.Errorf("Run() error = %v, want a non-retryable parse error", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", notes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.runner.Run(ctx, Request{Path: "notes.txt", Diff: twoHunkDiff})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if got := f.read(t, "notes.txt"); got != notes {
		t.Errorf("file changed to %q", got)
	}
}

func TestRun_UnchangedTextSkipsWrite(t *testing.T) {
	f := newFixture(t)
	f.write(t, "notes.txt", notes)

	out, err := f.runner.Run(context.Background(), Request{Path: "notes.txt", Diff: "@@ -1,2 +1,2 @@\n one\n two\n"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if out.Changed() || out.Written || out.Diff != "" {
		t.Errorf("Changed = %v, Written = %v, Diff = %q, want an untouched run", out.Changed(), out.Written, out.Diff)
	}
}

func TestRun_ZeroContextDiff(t *testing.T) {
	f := newFixture(t)
	zero := 0
	f.cfg.Patch.ContextLines = &zero
	f.write(t, "notes.txt", notes)

	out, err := f.runner.Run(context.Background(), Request{Path: "notes.txt", Diff: twoHunkDiff, Mode: ModePreview})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	want := "--- a/notes.txt\n+++ b/notes.txt\n@@ -1 +1 @@\n-one\n+ONE\n@@ -5 +5 @@\n-five\n+FIVE\n"
	if out.Diff != want {
		t.Errorf("Diff = %q, want %q", out.Diff, want)
	}
}

func TestNewLogger_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, err := NewLogger(path, false)
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}

	logger.WithRun("abc").Info("hello")
	logger.Debug("dropped at info level")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	log := string(data)
	for _, want := range []string{`"msg":"hello"`, `"run_id":"abc"`} {
		if !strings.Contains(log, want) {
			t.Errorf("log missing %s:\n%s", want, log)
		}
	}
	if strings.Contains(log, "dropped") {
		t.Errorf("debug event written at info level:\n%s", log)
	}
}

func TestNewLogger_EmptyPathIsNop(t *testing.T) {
	logger, err := NewLogger("", true)
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}
	logger.Info("nothing")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestRun_SavesCheckpoint(t *testing.T) {
	f := newFixture(t)
	mgr := f.withCheckpoints(t)
	f.write(t, "notes.txt", notes)

	out, err := f.runner.Run(context.Background(), Request{Path: "notes.txt", Diff: twoHunkDiff})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !out.Checkpoint {
		t.Error("Checkpoint = false, want true")
	}

	entries, err := mgr.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d checkpoints, want 1", len(entries))
	}
	if entries[0].RunID != out.RunID || !entries[0].Existed {
		t.Errorf("entry = %+v, want run %s of an existing file", entries[0], out.RunID)
	}

	if _, err := mgr.Restore(out.RunID); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if got := f.read(t, "notes.txt"); got != notes {
		t.Errorf("restored file = %q, want %q", got, notes)
	}
}

func TestRun_CheckpointForCreatedFile(t *testing.T) {
	f := newFixture(t)
	mgr := f.withCheckpoints(t)

	out, err := f.runner.Run(context.Background(), Request{Diff: "--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1 @@\n+hi\n"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !out.Created {
		t.Fatal("Created = false, want true")
	}

	entries, err := mgr.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d checkpoints, want 1", len(entries))
	}
	if entries[0].Existed || entries[0].Path != "new.txt" {
		t.Errorf("entry = %+v, want a created new.txt", entries[0])
	}
}

func TestRun_CheckpointDirIsOffLimits(t *testing.T) {
	f := newFixture(t)
	f.write(t, ".kvit-patch/checkpoints/x/content", "a\n")

	_, err := f.runner.Run(context.Background(), Request{Path: ".kvit-patch/checkpoints/x/content", Diff: "@@ -1 +1 @@\n-a\n+b\n"})
	if !errors.Is(err, ErrIgnored) {
		t.Errorf("Run() error = %v, want ErrIgnored", err)
	}
}
