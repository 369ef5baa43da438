package lock

import "testing"

func TestLoadMissingReturnsNil(t *testing.T) {
	dir := t.TempDir()
	l, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if l != nil {
		t.Errorf("Load() on missing lock = %+v, want nil", l)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := New("deadbeef")
	l.Nodes = []LockedNode{
		{Name: "zlib", Version: "1.0", Source: "pypi"},
		{Name: "anyio", Version: "4.0", Source: "pypi", Dependencies: []string{"idna", "sniffio"}},
	}

	if err := Save(dir, l); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !Exists(dir) {
		t.Fatal("Exists() = false after Save()")
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.MFingerprint != "deadbeef" {
		t.Errorf("MFingerprint = %q, want deadbeef", got.MFingerprint)
	}
	if len(got.Nodes) != 2 {
		t.Fatalf("Nodes = %v, want 2 entries", got.Nodes)
	}
	// Canonicalize sorts by name.
	if got.Nodes[0].Name != "anyio" || got.Nodes[1].Name != "zlib" {
		t.Errorf("Nodes not canonically sorted: %v", got.Nodes)
	}
}

func TestCanonicalizeIsOrderIndependent(t *testing.T) {
	a := New("fp")
	a.Nodes = []LockedNode{
		{Name: "b", Dependencies: []string{"z", "a"}},
		{Name: "a"},
	}
	b := New("fp")
	b.Nodes = []LockedNode{
		{Name: "a"},
		{Name: "b", Dependencies: []string{"a", "z"}},
	}
	Canonicalize(a)
	Canonicalize(b)

	if len(a.Nodes) != len(b.Nodes) {
		t.Fatalf("node count differs: %d vs %d", len(a.Nodes), len(b.Nodes))
	}
	for i := range a.Nodes {
		if a.Nodes[i].Name != b.Nodes[i].Name {
			t.Errorf("node[%d] name mismatch: %q vs %q", i, a.Nodes[i].Name, b.Nodes[i].Name)
		}
	}
}

func TestNodeByName(t *testing.T) {
	l := New("fp")
	l.Nodes = []LockedNode{{Name: "requests", Version: "2.31"}}
	n, ok := l.NodeByName("requests")
	if !ok || n.Version != "2.31" {
		t.Errorf("NodeByName(requests) = %+v, %v", n, ok)
	}
	if _, ok := l.NodeByName("flask"); ok {
		t.Error("NodeByName(flask) = true, want false")
	}
}
