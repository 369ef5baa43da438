package pxconfig

import (
	"testing"

	"github.com/pxtool/px/internal/pxhome"
)

func TestResolveDefaults(t *testing.T) {
	t.Setenv(pxhome.EnvOverride, t.TempDir())
	r, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.DefaultIndex != defaultIndex {
		t.Errorf("DefaultIndex = %q, want %q", r.DefaultIndex, defaultIndex)
	}
	if r.LockTimeoutMs != defaultLockTimeout {
		t.Errorf("LockTimeoutMs = %d, want %d", r.LockTimeoutMs, defaultLockTimeout)
	}
	if r.Frozen {
		t.Error("Frozen = true by default, want false")
	}
}

func TestResolveEnvOverridesFile(t *testing.T) {
	t.Setenv(pxhome.EnvOverride, t.TempDir())
	if err := Save(&FileConfig{DefaultIndex: "https://file.example/simple"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	t.Setenv(envDefaultIndex, "https://env.example/simple")

	r, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.DefaultIndex != "https://env.example/simple" {
		t.Errorf("DefaultIndex = %q, want env value to win", r.DefaultIndex)
	}
}

func TestResolveFileOverridesDefault(t *testing.T) {
	t.Setenv(pxhome.EnvOverride, t.TempDir())
	if err := Save(&FileConfig{DefaultIndex: "https://file.example/simple"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	r, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.DefaultIndex != "https://file.example/simple" {
		t.Errorf("DefaultIndex = %q, want file value", r.DefaultIndex)
	}
}
