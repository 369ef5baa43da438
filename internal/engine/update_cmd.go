package engine

import (
	"context"

	"github.com/pxtool/px/internal/advisory"
	"github.com/pxtool/px/internal/pxerr"
	"github.com/pxtool/px/internal/resolverapi"
)

// Update implements the update contract: requires an existing lock,
// invokes the resolver in upgrade mode (optionally scoped to named
// packages), then re-materializes the environment.
func (d *Deps) Update(ctx context.Context, names []string) error {
	if d.WorkspaceStore != nil {
		return d.workspaceUpdate(ctx, names)
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
	if snap.Lock == nil {
		return pxerr.New(pxerr.CodeInvalidState,
			"update requires an existing lock",
			[]string{"no px.lock is present"},
			[]string{"run `px sync` first to create one"})
	}

	return d.withLock(advisory.Exclusive, func() error {
		runtimeKey := runtimeKeyOf(snap.StateRecord)
		if runtimeKey == "" && snap.EnvMeta != nil {
			runtimeKey = snap.EnvMeta.RuntimeKey
		}

		newLock, err := d.resolveFn(ctx, snap.Manifest, runtimeKey, resolverapi.ModeUpgrade, names)
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
