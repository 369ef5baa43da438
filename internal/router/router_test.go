package router

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLocateNoProjectFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Locate(dir, false)
	if err == nil {
		t.Fatal("Locate() succeeded in an empty directory, want error")
	}
}

func TestLocateStandaloneProject(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), `[project]
name = "demo"
`)
	target, err := Locate(dir, false)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if target.Governance != GovernanceProject {
		t.Errorf("Governance = %v, want GovernanceProject", target.Governance)
	}
	if target.ProjectRoot != dir {
		t.Errorf("ProjectRoot = %q, want %q", target.ProjectRoot, dir)
	}
}

func TestLocateFindsProjectFromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), `[project]
name = "demo"
`)
	sub := filepath.Join(dir, "src", "demo")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	target, err := Locate(sub, false)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if target.ProjectRoot != dir {
		t.Errorf("ProjectRoot = %q, want %q", target.ProjectRoot, dir)
	}
}

func TestLocateWorkspaceGovernedMember(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pyproject.toml"), `[project]
name = "root"

[tool.px.workspace]
members = ["packages/a"]
`)
	member := filepath.Join(root, "packages", "a")
	writeFile(t, filepath.Join(member, "pyproject.toml"), `[project]
name = "a"
`)

	target, err := Locate(member, false)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if target.Governance != GovernanceWorkspace {
		t.Errorf("Governance = %v, want GovernanceWorkspace", target.Governance)
	}
	if target.WorkspaceRoot != root {
		t.Errorf("WorkspaceRoot = %q, want %q", target.WorkspaceRoot, root)
	}
}

func TestLocateProjectNotListedAsMemberStaysStandalone(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pyproject.toml"), `[project]
name = "root"

[tool.px.workspace]
members = ["packages/a"]
`)
	unrelated := filepath.Join(root, "other", "b")
	writeFile(t, filepath.Join(unrelated, "pyproject.toml"), `[project]
name = "b"
`)

	target, err := Locate(unrelated, false)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if target.Governance != GovernanceProject {
		t.Errorf("Governance = %v, want GovernanceProject (not listed as a member)", target.Governance)
	}
}

func TestLocateFrozenFromCI(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), `[project]
name = "demo"
`)
	t.Setenv(EnvCI, "true")
	target, err := Locate(dir, false)
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if !target.Frozen {
		t.Error("Frozen = false with CI=true set, want true")
	}
}
