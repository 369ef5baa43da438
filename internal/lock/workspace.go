package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// WorkspaceFileName is the workspace lock's canonical on-disk name,
// written at the workspace root alongside its pyproject.toml.
const WorkspaceFileName = "px.workspace.lock"

// WorkspaceNode is a node in the workspace's union dependency graph,
// tagged with the member that owns it ("" / "external" for third-party
// packages not owned by any member).
type WorkspaceNode struct {
	LockedNode
	OwningMember string `toml:"owning-member,omitempty"`
}

// WorkspaceLock is the WL artifact: the resolved graph across every
// workspace member, spec.md §3.
type WorkspaceLock struct {
	SchemaVersion  int             `toml:"schema-version"`
	WMFingerprint  string          `toml:"wmfingerprint"`
	RequiresPython string          `toml:"requires-python,omitempty"`
	Platforms      []string        `toml:"platforms,omitempty"`
	Nodes          []WorkspaceNode `toml:"nodes"`

	path string
}

// WorkspacePath returns the workspace lock file path for root.
func WorkspacePath(root string) string {
	return filepath.Join(root, WorkspaceFileName)
}

// WorkspaceExists reports whether a workspace lock is present at root.
func WorkspaceExists(root string) bool {
	_, err := os.Stat(WorkspacePath(root))
	return err == nil
}

// LoadWorkspace reads and parses px.workspace.lock from root. A missing
// file returns (nil, nil).
func LoadWorkspace(root string) (*WorkspaceLock, error) {
	p := WorkspacePath(root)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	var wl WorkspaceLock
	if err := toml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", p, err)
	}
	wl.path = p
	CanonicalizeWorkspace(&wl)
	return &wl, nil
}

// SaveWorkspace writes wl back to root as px.workspace.lock.
func SaveWorkspace(root string, wl *WorkspaceLock) error {
	CanonicalizeWorkspace(wl)
	f, err := os.Create(WorkspacePath(root))
	if err != nil {
		return fmt.Errorf("creating %s: %w", WorkspacePath(root), err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(wl); err != nil {
		return fmt.Errorf("encoding %s: %w", WorkspacePath(root), err)
	}
	return nil
}

// CanonicalizeWorkspace sorts wl's node list deterministically, same
// discipline as Canonicalize for per-project locks.
func CanonicalizeWorkspace(wl *WorkspaceLock) {
	sort.Slice(wl.Nodes, func(i, j int) bool {
		if wl.Nodes[i].Name != wl.Nodes[j].Name {
			return wl.Nodes[i].Name < wl.Nodes[j].Name
		}
		return wl.Nodes[i].OwningMember < wl.Nodes[j].OwningMember
	})
	for i := range wl.Nodes {
		sort.Strings(wl.Nodes[i].Dependencies)
		sort.Strings(wl.Nodes[i].Hashes)
		sort.Strings(wl.Nodes[i].Extras)
	}
	sort.Strings(wl.Platforms)
}

// NodesOwnedBy returns the subset of wl's nodes owned by the named
// member (PEP 503 normalized member/package name).
func (wl *WorkspaceLock) NodesOwnedBy(member string) []WorkspaceNode {
	var out []WorkspaceNode
	for _, n := range wl.Nodes {
		if n.OwningMember == member {
			out = append(out, n)
		}
	}
	return out
}

// NewWorkspace returns an empty workspace lock stamped with the
// current workspace manifest fingerprint.
func NewWorkspace(wmfingerprint string) *WorkspaceLock {
	return &WorkspaceLock{
		SchemaVersion: SchemaVersion,
		WMFingerprint: wmfingerprint,
	}
}
