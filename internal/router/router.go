// Package router implements the Context Router (spec.md §4.5): a pure
// upward filesystem walk from the current directory that decides
// which authority (a standalone project, or a governing workspace)
// owns a command invocation.
package router

import (
	"os"
	"path/filepath"

	"github.com/pxtool/px/internal/manifest"
	"github.com/pxtool/px/internal/pxerr"
)

// Governance names which state machine governs an invocation.
type Governance int

const (
	// GovernanceProject: a standalone project, no governing workspace.
	GovernanceProject Governance = iota
	// GovernanceWorkspace: a workspace root directly, or a member
	// whose nearest workspace ancestor claims it.
	GovernanceWorkspace
)

// Target is the result of locating a command's governing root.
type Target struct {
	// ProjectRoot is the directory containing the nearest pyproject.toml
	// at or above cwd ("" if none found).
	ProjectRoot string
	// WorkspaceRoot is the directory of the governing workspace, if any.
	WorkspaceRoot string
	Governance    Governance
	// Frozen is true when --frozen or CI=1 should force frozen-mode
	// semantics for every downstream transition (spec.md §4.5).
	Frozen bool
}

// EnvCI is the environment variable whose presence (any non-empty,
// non-"0"/"false" value) forces frozen mode regardless of --frozen.
const EnvCI = "CI"

// Locate walks upward from cwd looking for a pyproject.toml, then
// checks whether any ancestor declares a [tool.px.workspace] that
// lists the found project as a member.
func Locate(cwd string, frozenFlag bool) (*Target, error) {
	projectRoot, err := findUpward(cwd, manifest.FileName)
	if err != nil {
		return nil, err
	}
	if projectRoot == "" {
		return nil, pxerr.New(pxerr.CodeNoProjectFound,
			"no pyproject.toml found in "+cwd+" or any parent directory",
			nil,
			[]string{"run `px init` to create one"})
	}

	t := &Target{
		ProjectRoot: projectRoot,
		Governance:  GovernanceProject,
		Frozen:      frozenFlag || isCIEnv(),
	}

	if manifest.IsWorkspaceRoot(projectRoot) {
		t.WorkspaceRoot = projectRoot
		t.Governance = GovernanceWorkspace
		return t, nil
	}

	wsRoot, wm, err := findGoverningWorkspace(projectRoot)
	if err != nil {
		return nil, err
	}
	if wsRoot != "" {
		rel, err := filepath.Rel(wsRoot, projectRoot)
		if err == nil && memberListed(wm, rel) {
			t.WorkspaceRoot = wsRoot
			t.Governance = GovernanceWorkspace
		}
	}

	return t, nil
}

func isCIEnv() bool {
	v := os.Getenv(EnvCI)
	return v != "" && v != "0" && v != "false"
}

// findUpward walks from dir to the filesystem root looking for name,
// returning the first directory that contains it.
func findUpward(dir, name string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// findGoverningWorkspace walks upward from (and including) the
// project's parent directory looking for a workspace-declaring
// pyproject.toml.
func findGoverningWorkspace(projectRoot string) (string, *manifest.WorkspaceManifest, error) {
	dir := filepath.Dir(projectRoot)
	for {
		if manifest.IsWorkspaceRoot(dir) {
			wm, err := manifest.LoadWorkspace(dir)
			if err != nil {
				return "", nil, err
			}
			return dir, wm, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil, nil
		}
		dir = parent
	}
}

func memberListed(wm *manifest.WorkspaceManifest, rel string) bool {
	if wm == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, m := range wm.Members {
		if filepath.ToSlash(m) == rel {
			return true
		}
	}
	return false
}
