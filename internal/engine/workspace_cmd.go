package engine

import (
	"context"

	"github.com/pxtool/px/internal/advisory"
	"github.com/pxtool/px/internal/classify"
	"github.com/pxtool/px/internal/manifest"
	"github.com/pxtool/px/internal/pxerr"
	"github.com/pxtool/px/internal/resolverapi"
	"github.com/pxtool/px/internal/runtimereg"
)

// workspaceAdd implements the add contract under workspace governance
// (spec.md §4.5): edit the invoking member's own M, then re-resolve the
// union across every member into a new WL, then rebuild WE. Per-member
// L/E are never read or written in this mode.
func (d *Deps) workspaceAdd(ctx context.Context, rawRequirements []string) error {
	return d.mutateWorkspaceMember(ctx, func(m *manifest.Manifest) error {
		for _, raw := range rawRequirements {
			m.AddDependency(manifest.ParseRequirement(raw))
		}
		return nil
	})
}

// workspaceRemove is workspaceAdd's remove counterpart: every name must
// already be a direct dependency of the invoking member.
func (d *Deps) workspaceRemove(ctx context.Context, names []string) error {
	return d.mutateWorkspaceMember(ctx, func(m *manifest.Manifest) error {
		for _, name := range names {
			if !m.HasDirect(name) {
				return pxerr.New(pxerr.CodeNotADirectDep,
					"not a direct dependency",
					[]string{name + " is not declared in this member's pyproject.toml"},
					[]string{"check `px why " + name + "` to see what pulls it in transitively"})
			}
		}
		for _, name := range names {
			m.RemoveDependency(name)
		}
		return nil
	})
}

// mutateWorkspaceMember edits the invoking member's manifest, commits
// it through the member's own store, then re-resolves and
// re-materializes the workspace union. The member write and the
// workspace write are two separate atomic transactions (each store
// guarantees its own), not one cross-root transaction: a failure
// between them leaves the member's M ahead of WL, which the classifier
// reports as w_needs_lock rather than as corruption.
func (d *Deps) mutateWorkspaceMember(ctx context.Context, edit func(*manifest.Manifest) error) error {
	snap, err := loadWorkspaceSnapshot(d)
	if err != nil {
		return err
	}
	if snap.WM == nil {
		return pxerr.New(pxerr.CodeNoProjectFound,
			"no workspace found",
			[]string{"no [tool.px.workspace] declared above this project"},
			nil)
	}
	if snap.MemberRel == "" {
		return pxerr.New(pxerr.CodeInvalidState,
			"run this from inside a workspace member",
			[]string{"the workspace root itself is not a member"},
			[]string{"cd into one of " + joinKeys(snap.WM.Members) + " first"})
	}
	m, ok := snap.MemberManifests[snap.MemberRel]
	if !ok {
		return pxerr.New(pxerr.CodeNoProjectFound,
			"no project found",
			[]string{"no pyproject.toml in this member directory"},
			nil)
	}

	if err := edit(m); err != nil {
		return err
	}

	if err := d.withLock(advisory.Exclusive, func() error {
		txn := d.Store.Begin()
		defer txn.Abort()
		if err := txn.WriteManifest(m); err != nil {
			return err
		}
		return txn.Commit()
	}); err != nil {
		return err
	}

	snap.MemberManifests[snap.MemberRel] = m
	return d.resolveAndCommitWorkspace(ctx, snap, resolverapi.ModeLock, nil)
}

// resolveAndCommitWorkspace re-resolves snap's member manifests into a
// fresh WL, stamps its identity, writes it, and rebuilds WE — the
// union-resolve step every workspace-governed mutation shares.
func (d *Deps) resolveAndCommitWorkspace(ctx context.Context, snap *workspaceSnapshot, mode resolverapi.Mode, upgradeOnly []string) error {
	return d.withWorkspaceLock(advisory.Exclusive, func() error {
		runtimeKey := runtimeKeyOf(snap.StateRecord)
		if runtimeKey == "" {
			interp, err := runtimereg.Find(ctx, snap.WM.PythonConstraint)
			if err != nil {
				return err
			}
			runtimeKey = interp.Key()
		}

		newWL, err := d.WSResolver.ResolveWorkspace(ctx, resolverapi.WorkspaceRequest{
			Workspace:       snap.WM,
			MemberManifests: snap.MemberManifests,
			RuntimeKey:      runtimeKey,
			Platform:        currentPlatform(),
			Mode:            mode,
			UpgradeOnly:     upgradeOnly,
		})
		if err != nil {
			return err
		}
		stampWorkspaceLockMetadata(newWL, snap.WM, snap.orderedMemberManifests())

		txn := d.WorkspaceStore.Begin()
		defer txn.Abort()

		if err := txn.WriteWorkspaceLock(newWL); err != nil {
			return err
		}
		envMeta, err := materializeWorkspaceEnv(txn, newWL, runtimeKey, currentPlatform(), d.Installer)
		if err != nil {
			return err
		}
		if err := txn.WriteState(buildWorkspaceStateRecord(envMeta, newWL)); err != nil {
			return err
		}
		return txn.Commit()
	})
}

// workspaceMaterializeOnly rebuilds WE against the already-committed
// WL, without re-resolving — the workspace counterpart of
// materializeOnly, used to repair w_needs_env.
func (d *Deps) workspaceMaterializeOnly(ctx context.Context, snap *workspaceSnapshot) error {
	return d.withWorkspaceLock(advisory.Exclusive, func() error {
		runtimeKey := runtimeKeyOf(snap.StateRecord)
		if runtimeKey == "" && snap.WEnvMeta != nil {
			runtimeKey = snap.WEnvMeta.RuntimeKey
		}
		if runtimeKey == "" {
			interp, err := runtimereg.Find(ctx, snap.WM.PythonConstraint)
			if err != nil {
				return err
			}
			runtimeKey = interp.Key()
		}

		txn := d.WorkspaceStore.Begin()
		defer txn.Abort()

		envMeta, err := materializeWorkspaceEnv(txn, snap.WL, runtimeKey, currentPlatform(), d.Installer)
		if err != nil {
			return err
		}
		if err := txn.WriteState(buildWorkspaceStateRecord(envMeta, snap.WL)); err != nil {
			return err
		}
		return txn.Commit()
	})
}

// workspaceSync implements the sync contract under workspace
// governance: identical shape to Sync, but classified and committed
// against WM/WL/WE instead of M/L/E.
func (d *Deps) workspaceSync(ctx context.Context) error {
	snap, err := loadWorkspaceSnapshot(d)
	if err != nil {
		return err
	}
	if snap.WM == nil {
		return pxerr.New(pxerr.CodeNoProjectFound,
			"no workspace found",
			[]string{"no [tool.px.workspace] declared above this project"},
			nil)
	}

	switch snap.State {
	case classify.WConsistent, classify.WInitializedEmpty:
		return nil

	case classify.WNeedsLock:
		if d.Frozen {
			return workspaceLockOutOfDateError(snap)
		}
		return d.resolveAndCommitWorkspace(ctx, snap, resolverapi.ModeLock, nil)

	case classify.WNeedsEnv:
		if d.Frozen {
			return pxerr.New(pxerr.CodeEnvOutdated,
				"environment is out of date",
				[]string{"the workspace environment does not match the committed workspace lock"},
				[]string{"run `px sync` without --frozen to repair it"})
		}
		return d.workspaceMaterializeOnly(ctx, snap)

	default:
		return pxerr.New(pxerr.CodeInvalidState,
			"sync cannot run from this state",
			[]string{"current state is " + snap.State.String()},
			nil)
	}
}

func workspaceLockOutOfDateError(snap *workspaceSnapshot) error {
	why := []string{"running with --frozen (or CI=1) refuses to re-resolve the workspace lock"}
	if snap.LockIssue != nil {
		for _, r := range snap.LockIssue.Reasons {
			why = append(why, string(r))
		}
	}
	return pxerr.New(pxerr.CodeLockOutOfDate,
		"workspace lock is out of date",
		why,
		[]string{"run `px sync` without --frozen to re-resolve"})
}

func workspaceManifestDriftError(snap *workspaceSnapshot) error {
	why := []string{"a member manifest's fingerprint no longer matches px.workspace.lock"}
	if snap.LockIssue != nil {
		for _, r := range snap.LockIssue.Reasons {
			why = append(why, string(r))
		}
	}
	return pxerr.New(pxerr.CodeManifestDrift,
		"workspace manifest has drifted from the lock",
		why,
		[]string{"run `px sync` to re-resolve"})
}

// workspaceUpdate implements the update contract under workspace
// governance: requires an existing WL, re-resolves in upgrade mode
// across every member.
func (d *Deps) workspaceUpdate(ctx context.Context, names []string) error {
	snap, err := loadWorkspaceSnapshot(d)
	if err != nil {
		return err
	}
	if snap.WM == nil {
		return pxerr.New(pxerr.CodeNoProjectFound,
			"no workspace found",
			[]string{"no [tool.px.workspace] declared above this project"},
			nil)
	}
	if snap.WL == nil {
		return pxerr.New(pxerr.CodeInvalidState,
			"update requires an existing workspace lock",
			[]string{"no px.workspace.lock is present"},
			[]string{"run `px sync` first to create one"})
	}
	return d.resolveAndCommitWorkspace(ctx, snap, resolverapi.ModeUpgrade, names)
}

// workspaceRun implements the run/test contract under workspace
// governance: readiness is judged against WE, never against any
// member's own per-project E, but the target (script/file/executable)
// still resolves against the invoking member's own manifest.
func (d *Deps) workspaceRun(ctx context.Context, opts RunOptions) error {
	snap, err := loadWorkspaceSnapshot(d)
	if err != nil {
		return err
	}
	if snap.WM == nil {
		return pxerr.New(pxerr.CodeNoProjectFound,
			"no workspace found",
			[]string{"no [tool.px.workspace] declared above this project"},
			nil)
	}
	if snap.MemberRel == "" {
		return pxerr.New(pxerr.CodeInvalidState,
			"run this from inside a workspace member",
			[]string{"the workspace root itself is not a member"},
			[]string{"cd into one of " + joinKeys(snap.WM.Members) + " first"})
	}
	memberManifest, ok := snap.MemberManifests[snap.MemberRel]
	if !ok {
		return pxerr.New(pxerr.CodeNoProjectFound,
			"no project found",
			[]string{"no pyproject.toml in this member directory"},
			nil)
	}

	switch snap.State {
	case classify.WConsistent, classify.WInitializedEmpty:
		// ready to run as-is
	case classify.WNeedsLock:
		return workspaceManifestDriftError(snap)
	case classify.WNeedsEnv:
		if d.Frozen {
			return pxerr.New(pxerr.CodeEnvOutdated,
				"environment is out of date",
				[]string{"the workspace environment does not match the committed workspace lock"},
				[]string{"run `px sync` to repair it, or re-run without --frozen"})
		}
		if err := d.workspaceMaterializeOnly(ctx, snap); err != nil {
			return err
		}
	default:
		return pxerr.New(pxerr.CodeInvalidState,
			"run requires a consistent workspace",
			[]string{"current state is " + snap.State.String()},
			[]string{"run `px sync` first"})
	}

	memberSnap := &snapshot{Manifest: memberManifest}
	bin, args, err := resolveRunTarget(d.Store.Root, memberSnap, opts.Target)
	if err != nil {
		return err
	}
	return runTarget(ctx, d.Store.Root, bin, args, opts)
}
