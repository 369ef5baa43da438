package store

import (
	"os"
	"testing"

	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/pxhome"
)

type fakeInstaller struct {
	calls int
}

func (f *fakeInstaller) Materialize(destDir string, l *lock.Lock) error {
	f.calls++
	return os.WriteFile(destDir+"/marker", []byte("installed"), 0o644)
}

func TestMaterializeEnvIsIdempotent(t *testing.T) {
	projectDir := t.TempDir()
	home := t.TempDir()
	t.Setenv(pxhome.EnvOverride, home)

	s, err := Open(projectDir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	l := lock.New("fp1")
	l.Nodes = []lock.LockedNode{{Name: "requests", Version: "2.31", Source: "pypi"}}

	installer := &fakeInstaller{}

	txn1 := s.Begin()
	meta1, err := txn1.MaterializeEnv(l, "cpython-3.11", "linux-x86_64", installer)
	if err != nil {
		t.Fatalf("MaterializeEnv() error = %v", err)
	}
	if err := txn1.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if installer.calls != 1 {
		t.Fatalf("installer called %d times, want 1", installer.calls)
	}

	txn2 := s.Begin()
	meta2, err := txn2.MaterializeEnv(l, "cpython-3.11", "linux-x86_64", installer)
	if err != nil {
		t.Fatalf("second MaterializeEnv() error = %v", err)
	}
	if err := txn2.Commit(); err != nil {
		t.Fatalf("second Commit() error = %v", err)
	}
	if installer.calls != 1 {
		t.Errorf("installer called %d times on repeat materialize, want 1 (idempotent)", installer.calls)
	}
	if meta1.ProfileOID != meta2.ProfileOID {
		t.Errorf("ProfileOID changed across idempotent materializations: %q vs %q", meta1.ProfileOID, meta2.ProfileOID)
	}

	got, err := s.LoadEnvMetadata()
	if err != nil {
		t.Fatalf("LoadEnvMetadata() error = %v", err)
	}
	if got == nil || got.ProfileOID != meta1.ProfileOID {
		t.Errorf("LoadEnvMetadata() = %+v, want ProfileOID %q", got, meta1.ProfileOID)
	}
}
