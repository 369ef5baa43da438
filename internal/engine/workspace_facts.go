package engine

import (
	"path/filepath"

	"github.com/pxtool/px/internal/classify"
	"github.com/pxtool/px/internal/identity"
	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/manifest"
	"github.com/pxtool/px/internal/runtimereg"
	"github.com/pxtool/px/internal/store"
)

// workspaceSnapshot is loadWorkspaceSnapshot's result: every artifact
// governing a workspace-governed invocation, plus the classifier's
// verdict over their union (spec.md §4.5's workspace routing).
type workspaceSnapshot struct {
	WM              *manifest.WorkspaceManifest
	WL              *lock.WorkspaceLock
	WEnvMeta        *store.EnvMetadata
	StateRecord     *store.StateRecord
	MemberManifests map[string]*manifest.Manifest // member relative path -> manifest
	MemberRel       string                        // the invoking member's path relative to WorkspaceRoot, "" at the root itself

	WMFingerprint string
	State         classify.State
	LockIssue     *classify.LockIssue
}

// loadWorkspaceSnapshot reads WM/WL/WE from d.WorkspaceStore and every
// member manifest WM names, then classifies their union exactly as
// loadSnapshot does for a single project, mapped onto the W-prefixed
// states (spec.md §3 invariant 7).
func loadWorkspaceSnapshot(d *Deps) (*workspaceSnapshot, error) {
	ws := d.WorkspaceStore
	wm, err := ws.LoadWorkspaceManifest()
	if err != nil {
		return nil, err
	}
	if wm == nil {
		st, _ := classify.Classify(classify.Facts{ManifestExists: false})
		return &workspaceSnapshot{State: classify.ToWorkspaceState(st)}, nil
	}

	memberManifests := make(map[string]*manifest.Manifest, len(wm.Members))
	var ordered []*manifest.Manifest
	for _, rel := range wm.Members {
		mm, err := manifest.Load(filepath.Join(ws.Root, rel))
		if err != nil {
			return nil, err
		}
		if mm == nil {
			continue
		}
		memberManifests[rel] = mm
		ordered = append(ordered, mm)
	}

	memberRel, _ := filepath.Rel(ws.Root, d.Store.Root)
	if memberRel == "." {
		memberRel = ""
	}

	wl, err := ws.LoadWorkspaceLock()
	if err != nil {
		return nil, err
	}
	weMeta, err := ws.LoadEnvMetadata()
	if err != nil {
		return nil, err
	}
	stateRec, err := ws.LoadState()
	if err != nil {
		return nil, err
	}

	wmfp := identity.WMFingerprint(wm, ordered).String()
	depsEmpty := true
	for _, mm := range ordered {
		if len(mm.Dependencies) > 0 {
			depsEmpty = false
			break
		}
	}

	facts := classify.Facts{
		ManifestExists:      true,
		CurrentMFingerprint: wmfp,
		DependenciesEmpty:   depsEmpty,
	}

	if wl != nil {
		runtimeSatisfies := runtimereg.Satisfies(runtimeVersionFromKey(currentRuntimeKeyOrEmpty(stateRec)), wm.PythonConstraint)
		facts.LockExists = true
		facts.LockMFingerprint = wl.WMFingerprint
		facts.LockSchemaSupported = wl.SchemaVersion == lock.SchemaVersion
		facts.RuntimeSatisfies = runtimeSatisfies || wm.PythonConstraint == ""
		facts.PlatformMatches = weMeta == nil || weMeta.Platform == currentPlatform()
		facts.GroupsMatch = true // workspace lock tracks no per-member group scoping today

		wlID := identity.WLID(wl, runtimeKeyOf(stateRec), currentPlatform())
		facts.LockLID = wlID.String()
	}

	if weMeta != nil {
		facts.EnvExists = true
		facts.EnvLID = weMeta.LID
		facts.EnvRuntime = weMeta.RuntimeKey
		facts.EnvPlatform = weMeta.Platform
		if wl != nil {
			facts.LockRuntime = weMeta.RuntimeKey
		}
	}

	st, issue := classify.Classify(facts)
	return &workspaceSnapshot{
		WM:              wm,
		WL:              wl,
		WEnvMeta:        weMeta,
		StateRecord:     stateRec,
		MemberManifests: memberManifests,
		MemberRel:       memberRel,
		WMFingerprint:   wmfp,
		State:           classify.ToWorkspaceState(st),
		LockIssue:       issue,
	}, nil
}

// orderedMemberManifests returns snap's member manifests in wm.Members
// order, the same order identity.WMFingerprint hashes them in.
func (snap *workspaceSnapshot) orderedMemberManifests() []*manifest.Manifest {
	out := make([]*manifest.Manifest, 0, len(snap.WM.Members))
	for _, rel := range snap.WM.Members {
		if mm, ok := snap.MemberManifests[rel]; ok {
			out = append(out, mm)
		}
	}
	return out
}
