package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pxtool/px/internal/classify"
	"github.com/pxtool/px/internal/pxerr"
)

// RunOptions describes one `px run <target>` or `px test` invocation.
type RunOptions struct {
	Target string
	Args   []string
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// Run implements the run/test contract (spec.md §4.4): target
// resolution is strictly scripts-table -> file-path -> PATH-executable,
// in that order, with no implicit `python -m` fallback. In dev mode a
// NeedsEnv state is repaired before running; in frozen mode anything
// short of Consistent fails without repair.
func (d *Deps) Run(ctx context.Context, opts RunOptions) error {
	if d.WorkspaceStore != nil {
		return d.workspaceRun(ctx, opts)
	}

	snap, err := loadSnapshot(d.Store)
	if err != nil {
		return err
	}
	if snap.Manifest == nil {
		return pxerr.New(pxerr.CodeNoProjectFound,
			"no project found",
			[]string{"no pyproject.toml in this directory or any ancestor"},
			[]string{"run `px init` to create one"})
	}

	switch snap.State {
	case classify.Consistent, classify.InitializedEmpty:
		// ready to run as-is
	case classify.NeedsLock:
		return manifestDriftError(snap)
	case classify.NeedsEnv:
		if d.Frozen {
			return pxerr.New(pxerr.CodeEnvOutdated,
				"environment is out of date",
				[]string{"the environment does not match the committed lock"},
				[]string{"run `px sync` to repair it, or re-run without --frozen"})
		}
		if err := d.materializeOnly(ctx, snap); err != nil {
			return err
		}
	default:
		return pxerr.New(pxerr.CodeInvalidState,
			"run requires a consistent project",
			[]string{"current state is " + snap.State.String()},
			[]string{"run `px sync` first"})
	}

	bin, args, err := resolveRunTarget(d.Store.Root, snap, opts.Target)
	if err != nil {
		return err
	}
	return runTarget(ctx, d.Store.Root, bin, args, opts)
}

// runTarget execs bin/args with opts' arguments and I/O streams
// attached, rooted at dir. Shared by the per-project and
// workspace-governed Run paths once readiness has been established.
func runTarget(ctx context.Context, dir, bin string, args []string, opts RunOptions) error {
	args = append(args, opts.Args...)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	return cmd.Run()
}

// resolveRunTarget implements the deterministic three-step lookup: the
// [tool.px].scripts table, then a literal file path relative to the
// project root, then a PATH executable. No step falls back to invoking
// the interpreter with -m; an unresolved target is an error, not a
// guess.
func resolveRunTarget(root string, snap *snapshot, target string) (string, []string, error) {
	if script, ok := snap.Manifest.ToolPx.Scripts[target]; ok {
		return "sh", []string{"-c", script}, nil
	}

	candidate := filepath.Join(root, target)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, nil, nil
	}

	if path, err := exec.LookPath(target); err == nil {
		return path, nil, nil
	}

	return "", nil, pxerr.New(pxerr.CodeInvalidState,
		"run target not found",
		[]string{target + " is not a script, a file, or an executable on PATH"},
		[]string{"add it to [tool.px.scripts] in pyproject.toml"})
}
