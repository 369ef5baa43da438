package resolverapi

import (
	"context"
	"testing"

	"github.com/pxtool/px/internal/manifest"
)

func TestDeterministicStubResolveIsStable(t *testing.T) {
	m := manifest.New("demo", ">=3.11")
	m.AddDependency(manifest.Requirement{Name: "requests", Specifier: ">=2.31", Raw: "requests>=2.31"})

	var stub DeterministicStub
	l1, err := stub.Resolve(context.Background(), Request{Manifest: m})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	l2, err := stub.Resolve(context.Background(), Request{Manifest: m})
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}

	if len(l1.Nodes) != 1 || len(l2.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d and %d", len(l1.Nodes), len(l2.Nodes))
	}
	if l1.Nodes[0].Version != l2.Nodes[0].Version {
		t.Errorf("Resolve() not deterministic: %q vs %q", l1.Nodes[0].Version, l2.Nodes[0].Version)
	}
	if l1.Nodes[0].Version != "2.31" {
		t.Errorf("Version = %q, want 2.31", l1.Nodes[0].Version)
	}
}

func TestResolveWorkspaceTagsOwningMember(t *testing.T) {
	a := manifest.New("a", "")
	a.AddDependency(manifest.Requirement{Name: "httpx", Raw: "httpx"})
	b := manifest.New("b", "")
	b.AddDependency(manifest.Requirement{Name: "rich", Raw: "rich"})

	var stub DeterministicStub
	wl, err := stub.ResolveWorkspace(context.Background(), WorkspaceRequest{
		MemberManifests: map[string]*manifest.Manifest{"packages/a": a, "packages/b": b},
	})
	if err != nil {
		t.Fatalf("ResolveWorkspace() error = %v", err)
	}
	if len(wl.Nodes) != 2 {
		t.Fatalf("Nodes = %v, want 2", wl.Nodes)
	}
	for _, n := range wl.Nodes {
		if n.OwningMember == "" {
			t.Errorf("node %q missing OwningMember", n.Name)
		}
	}
}
