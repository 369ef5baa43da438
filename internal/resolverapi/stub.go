package resolverapi

import (
	"context"
	"fmt"

	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/manifest"
)

// DeterministicStub is a minimal Resolver used where no external
// resolver is configured (e.g. offline development, or tests).  It
// does not perform dependency resolution in the SAT sense — spec.md
// §1 scopes that out of the core entirely — it simply pins every
// direct requirement to the version after a leading "==", ">=" or "~="
// (or "0" when unconstrained, "resolved-from(<spec>)" for any other
// specifier) and reports no transitive closure. cmd/px uses this stub
// too (via engine.NewDeps); no solver-backed Resolver exists in this
// repository.
type DeterministicStub struct{}

func (DeterministicStub) Resolve(ctx context.Context, req Request) (*lock.Lock, error) {
	l := lock.New("")
	for _, dep := range req.Manifest.Dependencies {
		l.Nodes = append(l.Nodes, lock.LockedNode{
			Name:    manifest.Normalize(dep.Name),
			Version: pinnedVersion(dep),
			Source:  "pypi",
			Extras:  dep.CanonicalExtras(),
			Marker:  dep.CanonicalMarker(),
		})
	}
	lock.Canonicalize(l)
	return l, nil
}

func (DeterministicStub) ResolveWorkspace(ctx context.Context, req WorkspaceRequest) (*lock.WorkspaceLock, error) {
	result := &lock.WorkspaceLock{SchemaVersion: lock.SchemaVersion}
	for member, m := range req.MemberManifests {
		for _, dep := range m.Dependencies {
			result.Nodes = append(result.Nodes, lockWorkspaceNode(member, dep))
		}
	}
	lock.CanonicalizeWorkspace(result)
	return result, nil
}

func lockWorkspaceNode(member string, dep manifest.Requirement) lock.WorkspaceNode {
	return lock.WorkspaceNode{
		LockedNode: lock.LockedNode{
			Name:    manifest.Normalize(dep.Name),
			Version: pinnedVersion(dep),
			Source:  "pypi",
			Extras:  dep.CanonicalExtras(),
			Marker:  dep.CanonicalMarker(),
		},
		OwningMember: member,
	}
}

func pinnedVersion(dep manifest.Requirement) string {
	spec := dep.CanonicalSpecifier()
	if spec == "" {
		return "0"
	}
	for _, op := range []string{"==", ">=", "~="} {
		if len(spec) > len(op) && spec[:len(op)] == op {
			return spec[len(op):]
		}
	}
	return fmt.Sprintf("resolved-from(%s)", spec)
}
