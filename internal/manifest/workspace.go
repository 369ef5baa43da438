package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// WorkspaceManifest is the WM artifact: a workspace root's member list
// and settings shared across members (spec.md §3).
type WorkspaceManifest struct {
	Members          []string          `toml:"members"`
	PythonConstraint string            `toml:"requires-python,omitempty"`
	Shared           map[string]string `toml:"shared,omitempty"`

	path string
}

type rawWorkspaceTool struct {
	Workspace WorkspaceManifest `toml:"workspace"`
}

type rawWorkspaceDoc struct {
	Tool rawWorkspaceTool `toml:"tool"`
}

// IsWorkspaceRoot reports whether dir's pyproject.toml declares
// [tool.px.workspace], i.e. this directory is workspace-governed.
func IsWorkspaceRoot(dir string) bool {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return false
	}
	var raw rawWorkspaceDoc
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}
	return len(raw.Tool.Workspace.Members) > 0
}

// LoadWorkspace reads [tool.px.workspace] from dir's pyproject.toml. A
// missing manifest or missing workspace table returns (nil, nil).
func LoadWorkspace(dir string) (*WorkspaceManifest, error) {
	p := Path(dir)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	var raw rawWorkspaceDoc
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", p, err)
	}
	if len(raw.Tool.Workspace.Members) == 0 {
		return nil, nil
	}
	wm := raw.Tool.Workspace
	wm.path = p
	sort.Strings(wm.Members)
	return &wm, nil
}

// MemberPaths resolves each declared member to an absolute path rooted
// at root.
func (wm *WorkspaceManifest) MemberPaths(root string) []string {
	out := make([]string, len(wm.Members))
	for i, m := range wm.Members {
		out[i] = filepath.Join(root, m)
	}
	return out
}
