// Package manifest parses and serializes a project's pyproject.toml
// into the Manifest (M) artifact spec.md §3 describes.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest's canonical on-disk name.
const FileName = "pyproject.toml"

// Requirement is a single declared dependency, e.g. "httpx[http2]>=0.27".
type Requirement struct {
	Name      string   // raw here; PEP 503 normalized by Normalize()
	Extras    []string // e.g. ["http2"]
	Specifier string   // e.g. ">=0.27,<1.0"
	Marker    string   // e.g. "python_version >= '3.9'"
	Raw       string   // the original requirement string, for display only
}

// DependencyGroups resolves inclusion of dependency groups, per §3.6 of
// the domain rules: an explicit include-groups list wins; otherwise
// every declared group plus the well-known dev groups is included.
type DependencyGroups struct {
	Include []string `toml:"include-groups,omitempty"`
}

// ToolPxConfig is the [tool.px] table.
type ToolPxConfig struct {
	Python      string            `toml:"python,omitempty"`
	PinManifest bool              `toml:"pin-manifest,omitempty"`
	Scripts     map[string]string `toml:"scripts,omitempty"`
	Dependency  DependencyGroups  `toml:"dependencies,omitempty"`
}

// Manifest is the parsed, in-memory M artifact.
type Manifest struct {
	Name             string
	Version          string
	Description      string
	Dependencies     []Requirement
	PythonConstraint string
	ToolPx           ToolPxConfig
	Groups           map[string][]Requirement // [dependency-groups] table

	path string // absolute path this was loaded from; empty if not yet saved
}

// WellKnownDevGroups are unioned into the fingerprint projection whenever
// [tool.px.dependencies] does not name an explicit include-groups list.
var WellKnownDevGroups = []string{"dev", "test"}

type rawProject struct {
	Name            string   `toml:"name"`
	Version         string   `toml:"version"`
	Description     string   `toml:"description"`
	Dependencies    []string `toml:"dependencies"`
	RequiresPython  string   `toml:"requires-python"`
}

type rawTool struct {
	Px ToolPxConfig `toml:"px"`
}

type rawDoc struct {
	Project          rawProject             `toml:"project"`
	Tool             rawTool                `toml:"tool"`
	DependencyGroups map[string][]string    `toml:"dependency-groups"`
}

// Path returns the path of pyproject.toml inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Exists reports whether a manifest is present in dir.
func Exists(dir string) bool {
	_, err := os.Stat(Path(dir))
	return err == nil
}

// Load reads and parses pyproject.toml from dir. A missing file returns
// (nil, nil) — callers distinguish "absent" from "error" themselves,
// matching the Artifact Store's load_manifest contract (spec.md §4.3).
func Load(dir string) (*Manifest, error) {
	p := Path(dir)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}

	var raw rawDoc
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", p, err)
	}

	m := &Manifest{
		Name:             raw.Project.Name,
		Version:          raw.Project.Version,
		Description:      raw.Project.Description,
		PythonConstraint: raw.Project.RequiresPython,
		ToolPx:           raw.Tool.Px,
		Groups:           make(map[string][]Requirement, len(raw.DependencyGroups)),
		path:             p,
	}
	for _, dep := range raw.Project.Dependencies {
		m.Dependencies = append(m.Dependencies, parseRequirement(dep))
	}
	for name, deps := range raw.DependencyGroups {
		reqs := make([]Requirement, 0, len(deps))
		for _, dep := range deps {
			reqs = append(reqs, parseRequirement(dep))
		}
		m.Groups[name] = reqs
	}
	return m, nil
}

// New returns a minimal manifest with no dependencies, as init creates.
func New(name, requiresPython string) *Manifest {
	return &Manifest{
		Name:             name,
		Version:          "0.1.0",
		PythonConstraint: requiresPython,
		Groups:           map[string][]Requirement{},
	}
}

// Save writes the manifest back to dir as pyproject.toml.
//
// BurntSushi/toml does not preserve comments or original key order on
// round-trip; px accepts this since spec.md §8
// property 3 only requires that such cosmetic drift leave the
// fingerprint unchanged, not that the bytes be preserved.
func Save(dir string, m *Manifest) error {
	raw := rawDoc{
		Project: rawProject{
			Name:           m.Name,
			Version:        m.Version,
			Description:    m.Description,
			RequiresPython: m.PythonConstraint,
		},
		Tool: rawTool{Px: m.ToolPx},
	}
	for _, r := range m.Dependencies {
		raw.Project.Dependencies = append(raw.Project.Dependencies, r.Raw)
	}
	if len(m.Groups) > 0 {
		raw.DependencyGroups = make(map[string][]string, len(m.Groups))
		for name, reqs := range m.Groups {
			list := make([]string, 0, len(reqs))
			for _, r := range reqs {
				list = append(list, r.Raw)
			}
			raw.DependencyGroups[name] = list
		}
	}

	f, err := os.Create(Path(dir))
	if err != nil {
		return fmt.Errorf("creating %s: %w", Path(dir), err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(raw); err != nil {
		return fmt.Errorf("encoding %s: %w", Path(dir), err)
	}
	return nil
}

// HasDirect reports whether name appears directly in m.Dependencies
// (PEP 503 normalized comparison), used by the remove contract's
// not_a_direct_dep check (spec.md §4.4).
func (m *Manifest) HasDirect(name string) bool {
	norm := Normalize(name)
	for _, r := range m.Dependencies {
		if Normalize(r.Name) == norm {
			return true
		}
	}
	return false
}

// RemoveDependency removes the named requirement from Dependencies,
// returning false if it was not directly declared.
func (m *Manifest) RemoveDependency(name string) bool {
	norm := Normalize(name)
	out := m.Dependencies[:0]
	removed := false
	for _, r := range m.Dependencies {
		if Normalize(r.Name) == norm {
			removed = true
			continue
		}
		out = append(out, r)
	}
	m.Dependencies = out
	return removed
}

// AddDependency replaces a requirement with the same normalized name in
// place, or appends it and re-sorts Dependencies by normalized name
// (order is not fingerprint-significant, but deterministic order keeps
// on-disk diffs small).
func (m *Manifest) AddDependency(r Requirement) {
	norm := Normalize(r.Name)
	for i, existing := range m.Dependencies {
		if Normalize(existing.Name) == norm {
			m.Dependencies[i] = r
			return
		}
	}
	m.Dependencies = append(m.Dependencies, r)
	sort.SliceStable(m.Dependencies, func(i, j int) bool {
		return Normalize(m.Dependencies[i].Name) < Normalize(m.Dependencies[j].Name)
	})
}

// GroupNames returns the declared dependency-group names, sorted.
func (m *Manifest) GroupNames() []string {
	names := make([]string, 0, len(m.Groups))
	for name := range m.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
