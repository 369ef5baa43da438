package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/manifest"
	"github.com/pxtool/px/internal/pxerr"
	"github.com/pxtool/px/internal/pxhome"
	"github.com/pxtool/px/internal/resolverapi"
	"github.com/pxtool/px/internal/store"
)

// fakeInstaller records Materialize calls without touching any real
// Python toolchain.
type fakeInstaller struct{ calls int }

func (f *fakeInstaller) Materialize(destDir string, l *lock.Lock) error {
	f.calls++
	return nil
}

func newTestDeps(t *testing.T) (*Deps, *fakeInstaller) {
	t.Helper()
	t.Setenv(pxhome.EnvOverride, t.TempDir())
	root := t.TempDir()
	s, err := store.Open(root)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	inst := &fakeInstaller{}
	stub := resolverapi.DeterministicStub{}
	return &Deps{
		Store:       s,
		Resolver:    stub,
		WSResolver:  stub,
		Installer:   inst,
		LockTimeout: time.Second,
	}, inst
}

func TestInitCreatesEmptyProject(t *testing.T) {
	d, inst := newTestDeps(t)
	ctx := context.Background()

	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if inst.calls != 1 {
		t.Fatalf("installer calls = %d, want 1", inst.calls)
	}

	report, err := d.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !report.ManifestExists || !report.LockExists || !report.EnvExists {
		t.Fatalf("Status() = %+v, want all artifacts present", report)
	}
}

func TestInitRefusesWhenAlreadyInitialized(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("first Init() error = %v", err)
	}
	err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"})
	if err == nil {
		t.Fatal("second Init() succeeded, want error")
	}
}

func TestAddThenRemoveRoundTrip(t *testing.T) {
	d, inst := newTestDeps(t)
	ctx := context.Background()
	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	inst.calls = 0

	if err := d.Add(ctx, []string{"httpx>=0.27"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	why, err := d.Why("httpx")
	if err != nil {
		t.Fatalf("Why() error = %v", err)
	}
	if !why.Direct || !why.InLock {
		t.Fatalf("Why() = %+v, want direct and in-lock", why)
	}

	if err := d.Remove(ctx, []string{"httpx"}); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := d.Why("httpx"); err == nil {
		t.Fatal("Why() after remove succeeded, want error")
	}
}

func TestRemoveRejectsUndeclaredDependency(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	err := d.Remove(ctx, []string{"nonexistent"})
	if err == nil {
		t.Fatal("Remove() of a non-direct dep succeeded, want error")
	}
	var pe *pxerr.Error
	if !errors.As(err, &pe) {
		t.Fatalf("error is not *pxerr.Error: %v", err)
	}
	if pe.Code != pxerr.CodeNotADirectDep {
		t.Fatalf("Code = %v, want %v", pe.Code, pxerr.CodeNotADirectDep)
	}
}

func TestSyncIsNoOpWhenConsistent(t *testing.T) {
	d, inst := newTestDeps(t)
	ctx := context.Background()
	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	inst.calls = 0

	if err := d.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if inst.calls != 0 {
		t.Fatalf("installer calls = %d, want 0 for a consistent project", inst.calls)
	}
}

func TestSyncFrozenRefusesToResolve(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if err := d.Add(ctx, []string{"httpx>=0.27"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	d.Frozen = true
	if err := d.Add(ctx, []string{"requests"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	// After Add under frozen mode, the project's own add already
	// re-resolved and re-materialized, so it is consistent again;
	// Sync should be a no-op rather than failing.
	if err := d.Sync(ctx); err != nil {
		t.Fatalf("Sync() after frozen add error = %v", err)
	}

	// An out-of-band manifest edit leaves the lock stale (NeedsLock);
	// frozen Sync must then refuse with lock_out_of_date.
	snap, err := loadSnapshot(d.Store)
	if err != nil {
		t.Fatalf("loadSnapshot() error = %v", err)
	}
	snap.Manifest.Dependencies = append(snap.Manifest.Dependencies, manifest.ParseRequirement("click"))
	txn := d.Store.Begin()
	if err := txn.WriteManifest(snap.Manifest); err != nil {
		t.Fatalf("WriteManifest() error = %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	err = d.Sync(ctx)
	if err == nil {
		t.Fatal("frozen Sync() from NeedsLock succeeded, want error")
	}
	var pe *pxerr.Error
	if !errors.As(err, &pe) {
		t.Fatalf("error is not *pxerr.Error: %v", err)
	}
	if pe.Code != pxerr.CodeLockOutOfDate {
		t.Fatalf("Code = %v, want %v", pe.Code, pxerr.CodeLockOutOfDate)
	}
}

func TestWhyOnUnknownPackageFails(t *testing.T) {
	d, _ := newTestDeps(t)
	ctx := context.Background()
	if err := d.Init(ctx, InitOptions{Name: "demo", RequiresPython: ">=3.9"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := d.Why("nope"); err == nil {
		t.Fatal("Why() on unknown package succeeded, want error")
	}
}
