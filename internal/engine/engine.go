// Package engine is the State Machine Engine (spec.md §4.4): per-command
// contract enforcement over the Identity Layer, State Classifier, and
// Artifact Store, invoking external collaborators (resolver, runtime
// registry, artifact installer) in the fixed order spec.md §5 mandates.
package engine

import (
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pxtool/px/internal/advisory"
	"github.com/pxtool/px/internal/artifactstore"
	"github.com/pxtool/px/internal/identity"
	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/manifest"
	"github.com/pxtool/px/internal/resolverapi"
	"github.com/pxtool/px/internal/runtimereg"
	"github.com/pxtool/px/internal/store"
)

// materializeGroup coalesces concurrent MaterializeEnv calls for the
// same profile within one process: two goroutines racing to materialize
// the same profile share a single installer invocation instead of each
// paying for it.
var materializeGroup singleflight.Group

// Deps bundles every external collaborator a command needs. One Deps
// is built per command invocation at the CLI entry point; nothing here
// is a process-wide singleton (spec.md §9).
type Deps struct {
	Store      *store.Store
	Resolver   resolverapi.Resolver
	WSResolver resolverapi.WorkspaceResolver
	Installer  store.Installer
	LockTimeout time.Duration
	Frozen     bool

	// WorkspaceStore is non-nil exactly when this invocation is
	// workspace-governed (router.GovernanceWorkspace): it is rooted at
	// the workspace root and owns WM/WL/WE, while Store stays rooted at
	// the invoking member and owns only that member's M (spec.md §4.5).
	// Add/Remove/Sync/Update/Run dispatch to the workspace-governed
	// transition whenever it is set.
	WorkspaceStore *store.Store
}

// NewDeps wires a Deps with the deterministic stub resolver and a
// content-addressed artifact installer backed by src. cmd/px builds
// every Deps through this constructor, so the CLI resolves with the
// stub; no index-backed resolver is wired anywhere.
func NewDeps(s *store.Store, src artifactstore.Source, cacheDir string, frozen bool) (*Deps, error) {
	installer, err := artifactstore.Open(cacheDir, src)
	if err != nil {
		return nil, err
	}
	stub := resolverapi.DeterministicStub{}
	return &Deps{
		Store:       s,
		Resolver:    stub,
		WSResolver:  stub,
		Installer:   installer,
		LockTimeout: advisory.DefaultTimeout,
		Frozen:      frozen,
	}, nil
}

// withLock runs fn while holding mode on d.Store.Root's .px directory,
// releasing it unconditionally afterward (spec.md §5's bounded-timeout,
// guaranteed-release discipline).
func (d *Deps) withLock(mode advisory.Mode, fn func() error) error {
	pxDir := d.Store.Root + "/.px"
	advLock, err := advisory.Acquire(pxDir, mode, d.LockTimeout)
	if err != nil {
		return err
	}
	defer advLock.Release()
	return fn()
}

// withWorkspaceLock is withLock's counterpart for the governing
// workspace root, used by every workspace-governed transition so it
// never races another invocation touching the same WL/WE.
func (d *Deps) withWorkspaceLock(mode advisory.Mode, fn func() error) error {
	pxDir := d.WorkspaceStore.Root + "/.px"
	advLock, err := advisory.Acquire(pxDir, mode, d.LockTimeout)
	if err != nil {
		return err
	}
	defer advLock.Release()
	return fn()
}

func currentPlatform() string {
	return runtimereg.Platform()
}

// buildStateRecord derives the persistent StateRecord written alongside
// every committed transition from the env metadata and lock just staged.
func buildStateRecord(envMeta *store.EnvMetadata, l *lock.Lock) *store.StateRecord {
	rec := &store.StateRecord{
		SchemaVersion:    store.CurrentStateSchemaVersion,
		RuntimeKey:       envMeta.RuntimeKey,
		Platform:         envMeta.Platform,
		LID:              envMeta.LID,
		LastMFingerprint: l.MFingerprint,
	}
	return rec
}

// buildWorkspaceStateRecord is buildStateRecord's WL/WE counterpart:
// it stamps wl_id rather than l_id, since a workspace-governed
// StateRecord tracks the union lock's identity, not any member's own.
func buildWorkspaceStateRecord(envMeta *store.EnvMetadata, wl *lock.WorkspaceLock) *store.StateRecord {
	return &store.StateRecord{
		SchemaVersion:    store.CurrentStateSchemaVersion,
		RuntimeKey:       envMeta.RuntimeKey,
		Platform:         envMeta.Platform,
		WLID:             envMeta.LID,
		LastMFingerprint: wl.WMFingerprint,
	}
}

// stampLockMetadata sets l's MFingerprint, Groups, and Platforms from
// m's current projection and the running platform. The resolver is a
// pure function over dependency requirements (spec.md §1) and has no
// reason to know about the identity layer or the host platform, so the
// engine stamps this onto every lock it receives back, immediately
// before writing it.
func stampLockMetadata(l *lock.Lock, m *manifest.Manifest) {
	l.MFingerprint = identity.MFingerprint(m).String()
	l.Groups = m.GroupNames()
	l.Platforms = []string{currentPlatform()}
}

// stampWorkspaceLockMetadata is stampLockMetadata's WL counterpart:
// wmfingerprint is hashed over the workspace manifest plus every
// member's manifest, not any single one.
func stampWorkspaceLockMetadata(wl *lock.WorkspaceLock, wm *manifest.WorkspaceManifest, memberManifests []*manifest.Manifest) {
	wl.WMFingerprint = identity.WMFingerprint(wm, memberManifests).String()
	wl.Platforms = []string{currentPlatform()}
}

// materializeEnv runs txn.MaterializeEnv through materializeGroup,
// keyed on the profile a given (lock, runtime, platform) triple would
// produce, so two commands racing to materialize the identical profile
// in one process block on the first call rather than both invoking the
// installer.
func materializeEnv(txn *store.Txn, l *lock.Lock, runtimeKey, platform string, installer store.Installer) (*store.EnvMetadata, error) {
	lID := identity.LID(l, runtimeKey, platform)
	key := lID.String() + "\x00" + runtimeKey + "\x00" + platform
	v, err, _ := materializeGroup.Do(key, func() (interface{}, error) {
		return txn.MaterializeEnv(l, runtimeKey, platform, installer)
	})
	if err != nil {
		return nil, err
	}
	return v.(*store.EnvMetadata), nil
}

// materializeWorkspaceEnv is materializeEnv's WL/WE counterpart,
// coalescing concurrent materializations of the same wl_id.
func materializeWorkspaceEnv(txn *store.Txn, wl *lock.WorkspaceLock, runtimeKey, platform string, installer store.Installer) (*store.EnvMetadata, error) {
	wlID := identity.WLID(wl, runtimeKey, platform)
	key := "ws\x00" + wlID.String() + "\x00" + runtimeKey + "\x00" + platform
	v, err, _ := materializeGroup.Do(key, func() (interface{}, error) {
		return txn.MaterializeWorkspaceEnv(wl, runtimeKey, platform, installer)
	})
	if err != nil {
		return nil, err
	}
	return v.(*store.EnvMetadata), nil
}
