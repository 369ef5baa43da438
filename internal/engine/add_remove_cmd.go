package engine

import (
	"context"

	"github.com/pxtool/px/internal/advisory"
	"github.com/pxtool/px/internal/manifest"
	"github.com/pxtool/px/internal/pxerr"
	"github.com/pxtool/px/internal/resolverapi"
	"github.com/pxtool/px/internal/runtimereg"
)

// Add implements the add contract (spec.md §4.4): allowed from any
// state with a manifest present. The fixed transition order is compute
// M' -> resolve L' -> materialize E' -> commit all three atomically.
func (d *Deps) Add(ctx context.Context, rawRequirements []string) error {
	if d.WorkspaceStore != nil {
		return d.workspaceAdd(ctx, rawRequirements)
	}
	return d.mutateManifest(ctx, func(m *manifest.Manifest) error {
		for _, raw := range rawRequirements {
			m.AddDependency(manifest.ParseRequirement(raw))
		}
		return nil
	})
}

// Remove implements the remove contract: every name must already be a
// direct dependency, or the whole call fails with not_a_direct_dep
// before any write happens.
func (d *Deps) Remove(ctx context.Context, names []string) error {
	if d.WorkspaceStore != nil {
		return d.workspaceRemove(ctx, names)
	}
	return d.mutateManifest(ctx, func(m *manifest.Manifest) error {
		for _, name := range names {
			if !m.HasDirect(name) {
				return pxerr.New(pxerr.CodeNotADirectDep,
					"not a direct dependency",
					[]string{name + " is not declared in pyproject.toml"},
					[]string{"check `px why " + name + "` to see what pulls it in transitively"})
			}
		}
		for _, name := range names {
			m.RemoveDependency(name)
		}
		return nil
	})
}

// mutateManifest is the shared add/remove transition: edit the
// manifest in memory, re-resolve, re-materialize, and commit the three
// artifacts as one atomic transaction. Any failure aborts the whole
// transaction, leaving the prior M/L/E triple untouched.
func (d *Deps) mutateManifest(ctx context.Context, edit func(*manifest.Manifest) error) error {
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

	return d.withLock(advisory.Exclusive, func() error {
		m := snap.Manifest
		if err := edit(m); err != nil {
			return err
		}

		runtimeKey := runtimeKeyOf(snap.StateRecord)
		if runtimeKey == "" {
			interp, err := runtimereg.Find(ctx, m.PythonConstraint)
			if err != nil {
				return err
			}
			runtimeKey = interp.Key()
		}

		newLock, err := d.resolveFn(ctx, m, runtimeKey, resolverapi.ModeLock, nil)
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
