package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pxtool/px/internal/classify"
	"github.com/pxtool/px/internal/manifest"
	"github.com/pxtool/px/internal/pxerr"
)

func TestUpdateRequiresExistingLock(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()

	// No manifest at all yet: Update should refuse before touching the
	// resolver.
	if err := d.Update(ctx, nil); err == nil {
		t.Fatal("Update() with no project succeeded, want error")
	}

	// A manifest but no px.lock: Update still refuses, with invalid_state.
	txn := d.Store.Begin()
	if err := txn.WriteManifest(manifest.New("demo", ">=3.9")); err != nil {
		t.Fatalf("WriteManifest() error = %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	err := d.Update(ctx, nil)
	if err == nil {
		t.Fatal("Update() with no lock succeeded, want error")
	}
	var pe *pxerr.Error
	if !errors.As(err, &pe) {
		t.Fatalf("error is not *pxerr.Error: %v", err)
	}
	if pe.Code != pxerr.CodeInvalidState {
		t.Fatalf("Code = %v, want %v", pe.Code, pxerr.CodeInvalidState)
	}
}

func TestUpdateReResolvesAndReusesUnchangedProfile(t *testing.T) {
	d, inst := newTestDeps(t)
	ctx := context.Background()
	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := d.Add(ctx, []string{"httpx>=0.27"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	inst.calls = 0

	if err := d.Update(ctx, nil); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	// The stub resolver yields the same lock again, so the profile
	// materialized by Add is reused and the installer is not re-run.
	if inst.calls != 0 {
		t.Fatalf("installer calls = %d, want 0", inst.calls)
	}

	report, err := d.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if report.State != classify.Consistent {
		t.Fatalf("State = %v, want Consistent", report.State)
	}
}

func TestStatusReportsCleanStateAfterInit(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	report, err := d.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if report.State != classify.Consistent && report.State != classify.InitializedEmpty {
		t.Fatalf("State = %v, want Consistent or InitializedEmpty right after Init", report.State)
	}
	if report.MFingerprint == "" {
		t.Fatal("MFingerprint is empty, want the stamped manifest fingerprint")
	}
}

func TestRunUsesScriptsTableOverFileAndPath(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	snap, err := loadSnapshot(d.Store)
	if err != nil {
		t.Fatalf("loadSnapshot() error = %v", err)
	}
	snap.Manifest.ToolPx.Scripts = map[string]string{"hello": "echo hi"}
	txn := d.Store.Begin()
	if err := txn.WriteManifest(snap.Manifest); err != nil {
		t.Fatalf("WriteManifest() error = %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	// A file of the same name in the project root must lose to the script.
	if err := os.WriteFile(filepath.Join(d.Store.Root, "hello"), []byte("print('from file')\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var out bytes.Buffer
	stdout, stdoutWriter, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() error = %v", err)
	}
	defer stdout.Close()

	err = d.Run(ctx, RunOptions{Target: "hello", Stdin: nil, Stdout: stdoutWriter, Stderr: stdoutWriter})
	stdoutWriter.Close()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := out.ReadFrom(stdout); err != nil {
		t.Fatalf("reading run output: %v", err)
	}
	if got := out.String(); got != "hi\n" {
		t.Fatalf("run output = %q, want %q", got, "hi\n")
	}
}

func TestRunFailsWithManifestDriftOnStaleLock(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// Edit the manifest directly, bypassing Add/mutateManifest, so the
	// committed lock is left pointing at the old fingerprint.
	snap, err := loadSnapshot(d.Store)
	if err != nil {
		t.Fatalf("loadSnapshot() error = %v", err)
	}
	snap.Manifest.Dependencies = append(snap.Manifest.Dependencies, manifest.ParseRequirement("requests"))
	txn := d.Store.Begin()
	if err := txn.WriteManifest(snap.Manifest); err != nil {
		t.Fatalf("WriteManifest() error = %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	report, err := d.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if report.State != classify.NeedsLock {
		t.Fatalf("State = %v, want NeedsLock after an out-of-band manifest edit", report.State)
	}

	err = d.Run(ctx, RunOptions{Target: "python"})
	if err == nil {
		t.Fatal("Run() with a drifted manifest succeeded, want error")
	}
	var pe *pxerr.Error
	if !errors.As(err, &pe) {
		t.Fatalf("error is not *pxerr.Error: %v", err)
	}
	if pe.Code != pxerr.CodeManifestDrift {
		t.Fatalf("Code = %v, want %v", pe.Code, pxerr.CodeManifestDrift)
	}
}

func TestRunRejectsUnresolvableTarget(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	err := d.Run(ctx, RunOptions{Target: "definitely-not-a-real-target-or-script"})
	if err == nil {
		t.Fatal("Run() with an unresolvable target succeeded, want error")
	}
}

func TestMigrateProposesWithoutWriting(t *testing.T) {
	d, inst := newTestDeps(t)
	ctx := context.Background()

	reqPath := filepath.Join(d.Store.Root, "requirements.txt")
	content := "httpx>=0.27\n# a comment\nrequests==2.31.0\n\n"
	if err := os.WriteFile(reqPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	plan, err := d.Migrate(ctx, MigrateOptions{})
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if plan.Source != "requirements.txt" {
		t.Fatalf("Source = %q, want requirements.txt", plan.Source)
	}
	if len(plan.Dependencies) != 2 {
		t.Fatalf("Dependencies = %v, want 2 entries", plan.Dependencies)
	}
	if inst.calls != 0 {
		t.Fatalf("installer calls = %d, want 0 for a proposal-only migrate", inst.calls)
	}

	report, err := d.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if report.ManifestExists {
		t.Fatal("ManifestExists = true after a proposal-only migrate, want false")
	}
}

func TestMigrateApplyWritesAllArtifacts(t *testing.T) {
	d, inst := newTestDeps(t)
	ctx := context.Background()

	reqPath := filepath.Join(d.Store.Root, "requirements.txt")
	if err := os.WriteFile(reqPath, []byte("httpx>=0.27\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := d.Migrate(ctx, MigrateOptions{Apply: true}); err != nil {
		t.Fatalf("Migrate(Apply) error = %v", err)
	}
	if inst.calls != 1 {
		t.Fatalf("installer calls = %d, want 1", inst.calls)
	}

	report, err := d.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !report.ManifestExists || !report.LockExists || !report.EnvExists {
		t.Fatalf("Status() = %+v, want all artifacts present after apply", report)
	}
}

func TestMigrateRefusesOnAmbiguousSources(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(d.Store.Root, "requirements.txt"), []byte("httpx\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(d.Store.Root, "Pipfile"), []byte("[packages]\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := d.Migrate(ctx, MigrateOptions{}); err == nil {
		t.Fatal("Migrate() with two legacy sources present succeeded, want error")
	}
	if _, err := d.Migrate(ctx, MigrateOptions{From: "pipfile"}); err != nil {
		t.Fatalf("Migrate(From: pipfile) error = %v", err)
	}
}

func TestPythonUsePinsInterpreterAndReusesUnchangedProfile(t *testing.T) {
	d, inst := newTestDeps(t)
	ctx := context.Background()
	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	inst.calls = 0

	if err := d.PythonUse(ctx, ">=3.9"); err != nil {
		t.Fatalf("PythonUse() error = %v", err)
	}
	// The same interpreter Init picked is selected again and
	// [tool.px].python is not part of the fingerprint, so the lock and
	// profile are unchanged and the installer is not re-run.
	if inst.calls != 0 {
		t.Fatalf("installer calls = %d, want 0", inst.calls)
	}

	snap, err := loadSnapshot(d.Store)
	if err != nil {
		t.Fatalf("loadSnapshot() error = %v", err)
	}
	if snap.Manifest.ToolPx.Python == "" {
		t.Fatal("ToolPx.Python is empty after PythonUse, want a pinned interpreter path")
	}
}
