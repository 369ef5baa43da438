package engine

import (
	"context"

	"github.com/pxtool/px/internal/advisory"
	"github.com/pxtool/px/internal/pxerr"
	"github.com/pxtool/px/internal/resolverapi"
	"github.com/pxtool/px/internal/runtimereg"
)

// PythonUse implements `px python use <constraint>`: pins [tool.px].python
// in the manifest to a concrete interpreter satisfying constraint, then
// re-resolves and re-materializes against it, exactly like add/remove.
func (d *Deps) PythonUse(ctx context.Context, constraint string) error {
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

	interp, err := runtimereg.Find(ctx, constraint)
	if err != nil {
		return err
	}

	return d.withLock(advisory.Exclusive, func() error {
		m := snap.Manifest
		m.ToolPx.Python = interp.Path

		newLock, err := d.resolveFn(ctx, m, interp.Key(), resolverapi.ModeLock, nil)
		if err != nil {
			return err
		}
		stampLockMetadata(newLock, m)

		txn := d.Store.Begin()
		defer txn.Abort()

		if err := txn.WriteManifest(m); err != nil {
			return err
		}
		if err := txn.WriteLock(newLock); err != nil {
			return err
		}
		envMeta, err := materializeEnv(txn, newLock, interp.Key(), currentPlatform(), d.Installer)
		if err != nil {
			return err
		}
		if err := txn.WriteState(buildStateRecord(envMeta, newLock)); err != nil {
			return err
		}
		return txn.Commit()
	})
}

