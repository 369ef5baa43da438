// Package lock parses and serializes a project's px.lock into the Lock
// (L) artifact spec.md §3 describes.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// FileName is the lock's canonical on-disk name.
const FileName = "px.lock"

// SchemaVersion is bumped whenever the on-disk shape of px.lock changes
// in a way that requires migration (spec.md §4.4 migrate contract).
const SchemaVersion = 1

// LockedNode is a single resolved package in the dependency graph.
type LockedNode struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source"` // e.g. "pypi", "url:...", "path:..."
	Hashes       []string `toml:"hashes,omitempty"`
	Dependencies []string `toml:"dependencies,omitempty"` // normalized names of direct deps
	Extras       []string `toml:"extras,omitempty"`
	Marker       string   `toml:"marker,omitempty"`
}

// Lock is the parsed, in-memory L artifact.
type Lock struct {
	SchemaVersion    int          `toml:"schema-version"`
	MFingerprint     string       `toml:"mfingerprint"`
	RequiresPython   string       `toml:"requires-python,omitempty"`
	Groups           []string     `toml:"groups,omitempty"` // groups this lock covers
	Platforms        []string     `toml:"platforms,omitempty"`
	Nodes            []LockedNode `toml:"nodes"`

	path string
}

// Path returns the lock file path for dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Exists reports whether a lock file is present in dir.
func Exists(dir string) bool {
	_, err := os.Stat(Path(dir))
	return err == nil
}

// Load reads and parses px.lock from dir. A missing file returns
// (nil, nil), matching manifest.Load's absent-artifact contract.
func Load(dir string) (*Lock, error) {
	p := Path(dir)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}

	var l Lock
	if err := toml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", p, err)
	}
	l.path = p
	Canonicalize(&l)
	return &l, nil
}

// Save writes l back to dir as px.lock. Callers in internal/store route
// this through a Txn rather than calling it directly, so the write is
// atomic from a crash-recovery standpoint.
func Save(dir string, l *Lock) error {
	Canonicalize(l)
	f, err := os.Create(Path(dir))
	if err != nil {
		return fmt.Errorf("creating %s: %w", Path(dir), err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(l); err != nil {
		return fmt.Errorf("encoding %s: %w", Path(dir), err)
	}
	return nil
}

// Canonicalize sorts l's node list and each node's dependency/hash/extra
// lists into a deterministic lexicographic order. Two logically identical locks must serialize to identical bytes so
// l_id is stable regardless of resolver iteration order.
func Canonicalize(l *Lock) {
	sort.Slice(l.Nodes, func(i, j int) bool {
		return l.Nodes[i].Name < l.Nodes[j].Name
	})
	for i := range l.Nodes {
		sort.Strings(l.Nodes[i].Dependencies)
		sort.Strings(l.Nodes[i].Hashes)
		sort.Strings(l.Nodes[i].Extras)
	}
	sort.Strings(l.Groups)
	sort.Strings(l.Platforms)
}

// NodeByName returns the locked node for a PEP 503 normalized name, or
// false if it is not present in the lock.
func (l *Lock) NodeByName(normalizedName string) (LockedNode, bool) {
	for _, n := range l.Nodes {
		if n.Name == normalizedName {
			return n, true
		}
	}
	return LockedNode{}, false
}

// New returns an empty lock stamped with the current manifest fingerprint.
func New(mfingerprint string) *Lock {
	return &Lock{
		SchemaVersion: SchemaVersion,
		MFingerprint:  mfingerprint,
	}
}
