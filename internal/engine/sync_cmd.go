package engine

import (
	"context"

	"github.com/pxtool/px/internal/advisory"
	"github.com/pxtool/px/internal/classify"
	"github.com/pxtool/px/internal/pxerr"
	"github.com/pxtool/px/internal/resolverapi"
	"github.com/pxtool/px/internal/runtimereg"
)

// Sync implements the sync contract (spec.md §4.4). In frozen/CI mode
// a NeedsLock state fails immediately with lock_out_of_date rather
// than invoking the resolver; in dev mode a missing or drifted lock is
// resolved, and a missing or stale env is materialized.
func (d *Deps) Sync(ctx context.Context) error {
	if d.WorkspaceStore != nil {
		return d.workspaceSync(ctx)
	}

	snap, err := loadSnapshot(d.Store)
	if err != nil {
		return err
	}
	if snap.Manifest == nil {
		return pxerr.New(pxerr.CodeNoProjectFound,
			"no project found",
			[]string{"no pyproject.toml in this directory or any ancestor"},
			[]string{"run `px init` to create one"})
	}

	switch snap.State {
	case classify.Consistent, classify.InitializedEmpty:
		return nil

	case classify.NeedsLock:
		if d.Frozen {
			return lockOutOfDateError(snap)
		}
		return d.resyncAndMaterialize(ctx, snap)

	case classify.NeedsEnv:
		if d.Frozen {
			return pxerr.New(pxerr.CodeEnvOutdated,
				"environment is out of date",
				[]string{"the environment does not match the committed lock"},
				[]string{"run `px sync` without --frozen to repair it"})
		}
		return d.materializeOnly(ctx, snap)

	default:
		return pxerr.New(pxerr.CodeInvalidState,
			"sync cannot run from this state",
			[]string{"current state is " + snap.State.String()},
			nil)
	}
}

func lockOutOfDateError(snap *snapshot) error {
	why := []string{"running with --frozen (or CI=1) refuses to re-resolve the lock"}
	if snap.LockIssue != nil {
		for _, r := range snap.LockIssue.Reasons {
			why = append(why, string(r))
		}
	}
	return pxerr.New(pxerr.CodeLockOutOfDate,
		"lock is out of date",
		why,
		[]string{"run `px sync` without --frozen to re-resolve"})
}

// manifestDriftError is the PX120 the run/test contract requires when
// the manifest has moved on from the committed lock (spec.md §4.4):
// unlike sync, run never re-resolves on its own initiative.
func manifestDriftError(snap *snapshot) error {
	why := []string{"the manifest's fingerprint no longer matches px.lock"}
	if snap.LockIssue != nil {
		for _, r := range snap.LockIssue.Reasons {
			why = append(why, string(r))
		}
	}
	return pxerr.New(pxerr.CodeManifestDrift,
		"manifest has drifted from the lock",
		why,
		[]string{"run `px sync` to re-resolve"})
}

func (d *Deps) resyncAndMaterialize(ctx context.Context, snap *snapshot) error {
	return d.withLock(advisory.Exclusive, func() error {
		runtimeKey := runtimeKeyOf(snap.StateRecord)
		if runtimeKey == "" {
			interp, err := runtimereg.Find(ctx, snap.Manifest.PythonConstraint)
			if err != nil {
				return err
			}
			runtimeKey = interp.Key()
		}

		newLock, err := d.resolveFn(ctx, snap.Manifest, runtimeKey, resolverapi.ModeLock, nil)
		if err != nil {
			return err
		}
		stampLockMetadata(newLock, snap.Manifest)

		txn := d.Store.Begin()
		defer txn.Abort()

		if err := txn.WriteLock(newLock); err != nil {
			return err
		}
		envMeta, err := materializeEnv(txn, newLock, runtimeKey, currentPlatform(), d.Installer)
		if err != nil {
			return err
		}
		if err := txn.WriteState(buildStateRecord(envMeta, newLock)); err != nil {
			return err
		}
		return txn.Commit()
	})
}

func (d *Deps) materializeOnly(ctx context.Context, snap *snapshot) error {
	return d.withLock(advisory.Exclusive, func() error {
		runtimeKey := runtimeKeyOf(snap.StateRecord)
		if runtimeKey == "" && snap.EnvMeta != nil {
			runtimeKey = snap.EnvMeta.RuntimeKey
		}
		if runtimeKey == "" {
			interp, err := runtimereg.Find(ctx, snap.Manifest.PythonConstraint)
			if err != nil {
				return err
			}
			runtimeKey = interp.Key()
		}

		txn := d.Store.Begin()
		defer txn.Abort()

		envMeta, err := materializeEnv(txn, snap.Lock, runtimeKey, currentPlatform(), d.Installer)
		if err != nil {
			return err
		}
		if err := txn.WriteState(buildStateRecord(envMeta, snap.Lock)); err != nil {
			return err
		}
		return txn.Commit()
	})
}
