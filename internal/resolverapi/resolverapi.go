// Package resolverapi is the pure-function boundary onto the
// out-of-scope dependency resolver (spec.md §1): px's core invokes
// Resolve and treats it as an opaque collaborator, never implementing
// SAT-style backtracking itself.
package resolverapi

import (
	"context"

	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/manifest"
)

// Mode selects how the resolver should treat an existing lock.
type Mode int

const (
	// ModeLock resolves from scratch against the manifest's
	// requirements, ignoring any existing lock contents.
	ModeLock Mode = iota
	// ModeUpgrade re-resolves, preferring newer versions within
	// constraints, optionally scoped to a named subset of packages.
	ModeUpgrade
)

// Request describes one resolve invocation.
type Request struct {
	Manifest    *manifest.Manifest
	RuntimeKey  string
	Platform    string
	Mode        Mode
	UpgradeOnly []string // normalized names; empty means "all" in ModeUpgrade
}

// Resolver produces a Lock from a manifest. Implementations may hit a
// package index, run a SAT solver, or (in tests) return a canned
// graph — the core never cares which.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (*lock.Lock, error)
}

// WorkspaceRequest describes a workspace-scoped resolve invocation.
type WorkspaceRequest struct {
	Workspace       *manifest.WorkspaceManifest
	MemberManifests map[string]*manifest.Manifest // member path -> manifest
	RuntimeKey      string
	Platform        string
	Mode            Mode
	UpgradeOnly     []string // normalized names; empty means "all" in ModeUpgrade
}

// WorkspaceResolver produces a WorkspaceLock from a workspace's members.
type WorkspaceResolver interface {
	ResolveWorkspace(ctx context.Context, req WorkspaceRequest) (*lock.WorkspaceLock, error)
}
