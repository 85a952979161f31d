// Package runner drives one patch run end to end: it finds the target file, applies
// the diff with the configured policy, and writes the result under the workspace lock.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kvit-s/kvit-patch/internal/checkpoint"
	"github.com/kvit-s/kvit-patch/internal/config"
	"github.com/kvit-s/kvit-patch/internal/files"
	"github.com/kvit-s/kvit-patch/internal/patch"
	"github.com/kvit-s/kvit-patch/internal/source"
	"github.com/kvit-s/kvit-patch/internal/stats"
	"github.com/kvit-s/kvit-patch/internal/workspace"
)

var (
	ErrNoTarget = errors.New("no target file: pass a path or use a diff with a +++ line")
	ErrIgnored  = errors.New("file matches a workspace ignore pattern")
	ErrTooLarge = errors.New("file is larger than workspace.max_file_size_kb")
	ErrMissing  = errors.New("file does not exist")

	// ErrChanged wraps a retryable patch error: the diff was applied to text the
	// file no longer holds.
	ErrChanged = errors.New("file changed during the run")
)

// Mode says what a run does with the patched text.
type Mode int

const (
	// ModeWrite writes the result (the default).
	ModeWrite Mode = iota
	// ModeCheck only reports whether the diff applies.
	ModeCheck
	// ModePreview computes the result diff without writing.
	ModePreview
)

// SelectFunc picks which parsed hunks to apply, by 0-based index.
type SelectFunc func(path string, hunks []patch.Hunk) ([]int, error)

// ConfirmFunc asks the user a yes/no question.
type ConfirmFunc func(question string) (bool, error)

// Request describes one run. Policy and VerifyCounts are taken as given; callers
// fill them from config and flags.
type Request struct {
	Path         string // target file; "" uses the diff's +++ line
	Diff         string
	Policy       patch.Policy
	VerifyCounts bool
	Mode         Mode
	Confirm      bool
	OutputPath   string // write here instead of the target file

	// Select, when set, is called with the parsed hunks before applying.
	Select SelectFunc
}

// Outcome is what a run did. Run returns a partial Outcome (RunID, Path) with
// its error so callers can report failures.
type Outcome struct {
	RunID    string
	Path     string // absolute path of the target file
	Rel      string // path relative to the workspace root
	Created  bool   // the file did not exist and the diff creates it
	Before   string
	Result   *patch.Result
	Applied  []int // 0-based indexes into the parsed diff
	Skipped  []patch.Skipped
	Diff     string // unified diff from Before to Result.Text
	Stats    stats.Stats
	Written  bool
	Declined bool
	Duration time.Duration

	// Checkpoint is set when the previous content was saved for undo.
	Checkpoint bool
}

// Changed reports whether the run produced different text.
func (o *Outcome) Changed() bool {
	return o.Result != nil && o.Result.Text != o.Before
}

// Runner applies diffs inside one workspace.
type Runner struct {
	cfg         *config.Config
	log         *Logger
	confirm     ConfirmFunc
	checkpoints *checkpoint.Manager
	lockWait    time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithConfirm sets the prompt used for Request.Confirm.
func WithConfirm(fn ConfirmFunc) Option {
	return func(r *Runner) { r.confirm = fn }
}

// WithCheckpoints saves the previous content of every written file to m.
func WithCheckpoints(m *checkpoint.Manager) Option {
	return func(r *Runner) { r.checkpoints = m }
}

// WithLockWait sets how long a write waits for the workspace lock.
func WithLockWait(d time.Duration) Option {
	return func(r *Runner) { r.lockWait = d }
}

// New creates a Runner. A nil logger disables logging.
func New(cfg *config.Config, logger *Logger, opts ...Option) *Runner {
	if logger == nil {
		logger, _ = NewLogger("", false)
	}
	r := &Runner{
		cfg:      cfg,
		log:      logger,
		lockWait: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes req. ctx is checked between steps; the apply itself is not
// interruptible.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{RunID: uuid.NewString()}
	log := r.log.WithRun(out.RunID)

	fail := func(err error) (*Outcome, error) {
		out.Duration = time.Since(start)
		log.PatchFailed(out.Path, err, out.Duration)
		return out, err
	}

	if err := r.locate(req, out); err != nil {
		return fail(err)
	}
	log.Debug("target resolved")

	buf, before, err := r.read(out)
	if err != nil {
		return fail(err)
	}
	out.Before = before

	hunks, err := patch.Parse(req.Diff)
	if err != nil {
		return fail(err)
	}

	// A missing file can only be created by a diff that inserts at line 0
	if buf == nil && createsFile(hunks) {
		buf = patch.NewBuffer("")
		out.Created = true
	}

	indexes := allIndexes(len(hunks))
	if req.Select != nil {
		chosen, err := req.Select(out.Rel, hunks)
		if err != nil {
			return fail(err)
		}
		if hunks, indexes, err = pick(hunks, chosen); err != nil {
			return fail(err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	res, err := patch.ApplyHunks(buf, hunks,
		patch.WithPolicy(req.Policy),
		patch.WithVerifyCounts(req.VerifyCounts),
	)
	if err != nil {
		if buf == nil {
			err = fmt.Errorf("%w: %s: %w", ErrMissing, out.Rel, err)
		}
		return fail(remapHunk(err, indexes))
	}
	out.Result = res
	for _, i := range res.Applied {
		out.Applied = append(out.Applied, indexes[i])
	}
	for _, s := range res.Skipped {
		s.Index = indexes[s.Index]
		out.Skipped = append(out.Skipped, s)
		log.HunkSkipped(out.Rel, s)
	}

	if out.Diff, err = files.UnifiedDiff(before, res.Text, filepath.ToSlash(out.Rel), r.cfg.DiffContext()); err != nil {
		return fail(fmt.Errorf("render diff: %w", err))
	}
	out.Stats = stats.Compute(before, res.Text)

	if req.Mode != ModeWrite {
		out.Duration = time.Since(start)
		log.PatchApplied(out.Rel, res, len(before), len(res.Text), false, out.Duration)
		return out, nil
	}

	if err := r.write(ctx, req, out); err != nil {
		return fail(err)
	}

	out.Duration = time.Since(start)
	if !out.Declined {
		log.PatchApplied(out.Rel, res, len(before), len(res.Text), out.Written, out.Duration)
	} else {
		log.WriteDeclined(out.Rel)
	}
	return out, nil
}

// locate resolves the target path inside the workspace.
func (r *Runner) locate(req Request, out *Outcome) error {
	path := req.Path
	if path == "" {
		path = source.TargetPath(req.Diff)
	}
	if path == "" {
		return ErrNoTarget
	}

	full, err := files.Resolve(r.cfg.Workspace.Root, path)
	if err != nil {
		return err
	}
	out.Path = full
	out.Rel, err = filepath.Rel(r.cfg.Workspace.Root, full)
	if err != nil {
		out.Rel = full
	}

	// Checkpoints are never patched
	if strings.HasPrefix(filepath.ToSlash(out.Rel), ".kvit-patch/") || r.cfg.IsIgnored(full) {
		return fmt.Errorf("%w: %s", ErrIgnored, out.Rel)
	}
	return nil
}

// read loads the target. A nil buffer means the file does not exist.
func (r *Runner) read(out *Outcome) (*patch.Buffer, string, error) {
	large, size, err := files.IsLargeFile(out.Path, r.cfg.MaxFileSize())
	if err != nil {
		return nil, "", err
	}
	if large {
		return nil, "", fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, out.Rel, size)
	}
	return files.ReadText(out.Path)
}

// write asks for confirmation if requested, then writes under the workspace lock.
// The prompt runs before the lock is taken, so the target is read again under the
// lock and the write refused if another run changed it in the meantime.
func (r *Runner) write(ctx context.Context, req Request, out *Outcome) error {
	dest := out.Path
	if req.OutputPath != "" {
		var err error
		if dest, err = files.Resolve(r.cfg.Workspace.Root, req.OutputPath); err != nil {
			return err
		}
	}

	// Nothing to do when the text is unchanged and goes back to the same file
	if dest == out.Path && !out.Changed() && !out.Created {
		return nil
	}

	if req.Confirm && r.confirm != nil {
		ok, err := r.confirm(fmt.Sprintf("Write %s (%s)?", out.Rel, out.Stats))
		if err != nil {
			return err
		}
		if !ok {
			out.Declined = true
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if r.cfg.LockEnabled() {
		lock, err := workspace.Acquire(ctx, r.cfg.Workspace.Root, r.lockWait)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	if err := r.verifyUnchanged(out); err != nil {
		return err
	}

	if r.checkpoints != nil {
		if err := r.saveCheckpoint(dest, out); err != nil {
			return err
		}
		out.Checkpoint = true
	}

	if err := files.WriteFileAtomic(dest, out.Result.Text); err != nil {
		return err
	}
	out.Written = true
	return nil
}

// verifyUnchanged checks that the target still holds the text the diff was applied to.
func (r *Runner) verifyUnchanged(out *Outcome) error {
	data, err := os.ReadFile(out.Path)
	var same bool
	switch {
	case errors.Is(err, fs.ErrNotExist):
		same = out.Created
	case err != nil:
		return err
	default:
		same = !out.Created && string(data) == out.Before
	}
	if same {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrChanged, out.Rel, &patch.Error{
		Kind: patch.KindContextMismatch,
		Hunk: -1,
		Msg:  "file no longer matches the text the diff was applied to",
	})
}

// saveCheckpoint records what dest holds before it is overwritten.
func (r *Runner) saveCheckpoint(dest string, out *Outcome) error {
	before, existed := out.Before, !out.Created
	if dest != out.Path {
		data, err := os.ReadFile(dest)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			before, existed = "", false
		case err != nil:
			return err
		default:
			before, existed = string(data), true
		}
	}

	rel, err := filepath.Rel(r.cfg.Workspace.Root, dest)
	if err != nil {
		return err
	}
	if err := r.checkpoints.Save(out.RunID, rel, before, existed); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// createsFile reports whether every hunk is a pure insertion at the top of an
// empty file, as in a "--- /dev/null" diff.
func createsFile(hunks []patch.Hunk) bool {
	if len(hunks) == 0 {
		return false
	}
	for _, h := range hunks {
		if h.OldStart != 0 || len(h.Expected()) != 0 {
			return false
		}
	}
	return true
}

func allIndexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// pick returns the chosen hunks in diff order, dropping duplicates.
func pick(hunks []patch.Hunk, chosen []int) ([]patch.Hunk, []int, error) {
	indexes := slices.Clone(chosen)
	slices.Sort(indexes)
	indexes = slices.Compact(indexes)

	out := make([]patch.Hunk, 0, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(hunks) {
			return nil, nil, fmt.Errorf("selected hunk %d does not exist (diff has %d)", i+1, len(hunks))
		}
		out = append(out, hunks[i])
	}
	return out, indexes, nil
}

// remapHunk translates the hunk number of an apply error from the selected subset
// back to the position in the parsed diff.
func remapHunk(err error, indexes []int) error {
	pe, ok := patch.AsError(err)
	if !ok || pe.Hunk < 0 || pe.Hunk >= len(indexes) || indexes[pe.Hunk] == pe.Hunk {
		return err
	}
	mapped := *pe
	mapped.Hunk = indexes[pe.Hunk]
	return &mapped
}
