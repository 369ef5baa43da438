package identity

import (
	"testing"

	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/manifest"
)

func newTestLock() *lock.Lock {
	l := lock.New("deadbeef")
	l.Nodes = []lock.LockedNode{{Name: "requests", Version: "2.31", Source: "pypi"}}
	return l
}

func reqs(raws ...string) []manifest.Requirement {
	out := make([]manifest.Requirement, len(raws))
	for i, r := range raws {
		out[i] = rawReq(r)
	}
	return out
}

// rawReq builds a requirement whose Name and Raw are both raw, without
// parsing it; it is enough for the bare package names these tests use.
func rawReq(raw string) manifest.Requirement {
	m := manifest.New("t", "")
	m.AddDependency(manifest.Requirement{Name: raw, Raw: raw})
	return m.Dependencies[0]
}

func TestMFingerprintStableAcrossDependencyOrder(t *testing.T) {
	a := manifest.New("demo", ">=3.11")
	a.Dependencies = reqs("requests", "click")

	b := manifest.New("demo", ">=3.11")
	b.Dependencies = reqs("click", "requests")

	if MFingerprint(a) != MFingerprint(b) {
		t.Error("MFingerprint changed when dependency order changed")
	}
}

func TestMFingerprintIgnoresVersionAndDescription(t *testing.T) {
	a := manifest.New("demo", ">=3.11")
	a.Dependencies = reqs("requests")
	a.Version = "0.1.0"
	a.Description = "first cut"

	b := manifest.New("demo", ">=3.11")
	b.Dependencies = reqs("requests")
	b.Version = "9.9.9"
	b.Description = "completely different text"

	if MFingerprint(a) != MFingerprint(b) {
		t.Error("MFingerprint changed due to version/description, which are not in the projection")
	}
}

func TestMFingerprintChangesOnDependencyChange(t *testing.T) {
	a := manifest.New("demo", ">=3.11")
	a.Dependencies = reqs("requests")

	b := manifest.New("demo", ">=3.11")
	b.Dependencies = reqs("requests", "click")

	if MFingerprint(a) == MFingerprint(b) {
		t.Error("MFingerprint did not change when a dependency was added")
	}
}

func TestMFingerprintCaseInsensitiveNames(t *testing.T) {
	a := manifest.New("demo", "")
	a.Dependencies = reqs("Requests")

	b := manifest.New("demo", "")
	b.Dependencies = reqs("requests")

	if MFingerprint(a) != MFingerprint(b) {
		t.Error("MFingerprint differs for names differing only by case")
	}
}

func TestProfileOIDDependsOnAllThreeInputs(t *testing.T) {
	lid := LID(newTestLock(), "cpython-3.11", "linux-x86_64")
	a := ProfileOID(lid, "cpython-3.11", "linux-x86_64")
	b := ProfileOID(lid, "cpython-3.12", "linux-x86_64")
	c := ProfileOID(lid, "cpython-3.11", "darwin-arm64")

	if a == b || a == c || b == c {
		t.Error("ProfileOID did not vary with runtime/platform")
	}
}
