package engine

import (
	"context"
	"os"

	"github.com/pxtool/px/internal/advisory"
	"github.com/pxtool/px/internal/classify"
	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/manifest"
	"github.com/pxtool/px/internal/pxerr"
	"github.com/pxtool/px/internal/resolverapi"
	"github.com/pxtool/px/internal/runtimereg"
)

// InitOptions configures a new project.
type InitOptions struct {
	Name             string
	RequiresPython   string // e.g. ">=3.11"; empty selects a default constraint
	ForeignOwnership bool   // not read by Init, which runs DetectForeignOwnership itself
}

var foreignOwnershipMarkers = []string{"[tool.poetry]", "[tool.hatch.envs]"}

// DetectForeignOwnership applies spec.md §4.4's init heuristic: a
// pyproject.toml that already carries another tool's table without a
// [tool.px] table is refused.
func DetectForeignOwnership(root string) bool {
	data, err := os.ReadFile(manifest.Path(root))
	if err != nil {
		return false
	}
	content := string(data)
	hasPx := contains(content, "[tool.px]") || contains(content, "[tool.px.")
	if hasPx {
		return false
	}
	for _, marker := range foreignOwnershipMarkers {
		if contains(content, marker) {
			return true
		}
	}
	return false
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// Init implements the init contract (spec.md §4.4): allowed only from
// Uninitialized, creates a minimal manifest, resolves a runtime,
// writes an empty lock with the correct mfingerprint, and materializes
// an empty env. End state: InitializedEmpty.
func (d *Deps) Init(ctx context.Context, opts InitOptions) error {
	snap, err := loadSnapshot(d.Store)
	if err != nil {
		return err
	}
	if snap.State != classify.Uninitialized {
		return pxerr.New(pxerr.CodeInvalidState,
			"init requires an uninitialized directory",
			[]string{"current state is " + snap.State.String()},
			[]string{"remove the existing pyproject.toml, or use a different directory"})
	}
	if DetectForeignOwnership(d.Store.Root) {
		return pxerr.New(pxerr.CodeInvalidState,
			"pyproject.toml is owned by another tool",
			[]string{"found [tool.poetry] or [tool.hatch.envs] without [tool.px]"},
			[]string{"run `px migrate` to adopt an existing project instead"})
	}

	constraint := opts.RequiresPython
	if constraint == "" {
		constraint = ">=3.9"
	}

	interp, err := runtimereg.Find(ctx, constraint)
	if err != nil {
		return err
	}

	m := manifest.New(opts.Name, constraint)
	l := lock.New("")
	stampLockMetadata(l, m)

	return d.withLock(advisory.Exclusive, func() error {
		txn := d.Store.Begin()
		defer txn.Abort()

		if err := txn.WriteManifest(m); err != nil {
			return err
		}
		if err := txn.WriteLock(l); err != nil {
			return err
		}
		envMeta, err := materializeEnv(txn, l, interp.Key(), currentPlatform(), d.Installer)
		if err != nil {
			return err
		}
		if err := txn.WriteState(buildStateRecord(envMeta, l)); err != nil {
			return err
		}
		return txn.Commit()
	})
}

// resolveFn exists so sync/add/remove/update share one call shape into
// d.Resolver without repeating context plumbing.
func (d *Deps) resolveFn(ctx context.Context, m *manifest.Manifest, runtimeKey string, mode resolverapi.Mode, upgradeOnly []string) (*lock.Lock, error) {
	return d.Resolver.Resolve(ctx, resolverapi.Request{
		Manifest:    m,
		RuntimeKey:  runtimeKey,
		Platform:    currentPlatform(),
		Mode:        mode,
		UpgradeOnly: upgradeOnly,
	})
}
