package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	"github.com/pxtool/px/internal/identity"
	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/pxhome"
)

// Installer materializes the artifact set named by a lock into a
// directory. It is the pure-function boundary onto the out-of-scope
// downloader/installer subsystem (spec.md §1): the store knows how to
// stage and atomically swap the env pointer, not how to fetch wheels.
type Installer interface {
	Materialize(destDir string, l *lock.Lock) error
}

// MaterializeEnv implements the env materialization contract (spec.md
// §4.3): given l and a runtime/platform pair, ensure
// ~/.px/envs/<profile_oid> exists with exactly l's artifact set
// installed, then stage the .px/envs/current pointer swap into txn.
//
// If the profile directory already exists with matching metadata, this
// is a no-op except for re-pointing current — idempotent by construction.
func (t *Txn) MaterializeEnv(l *lock.Lock, runtimeKey, platform string, installer Installer) (*EnvMetadata, error) {
	lID := identity.LID(l, runtimeKey, platform)
	return t.materializeProfile(lID, runtimeKey, platform, l, installer)
}

// MaterializeWorkspaceEnv is MaterializeEnv's workspace-governed
// counterpart (spec.md §3 WE): the profile is keyed by wl_id instead
// of l_id, but installation itself operates over the same flattened
// node list an installer already knows how to read, ownership tags
// stripped since they don't affect what gets installed.
func (t *Txn) MaterializeWorkspaceEnv(wl *lock.WorkspaceLock, runtimeKey, platform string, installer Installer) (*EnvMetadata, error) {
	wlID := identity.WLID(wl, runtimeKey, platform)
	flat := &lock.Lock{SchemaVersion: wl.SchemaVersion, Platforms: wl.Platforms}
	for _, n := range wl.Nodes {
		flat.Nodes = append(flat.Nodes, n.LockedNode)
	}
	return t.materializeProfile(wlID, runtimeKey, platform, flat, installer)
}

func (t *Txn) materializeProfile(id digest.Digest, runtimeKey, platform string, flat *lock.Lock, installer Installer) (*EnvMetadata, error) {
	profileOID := identity.ProfileOID(id, runtimeKey, platform)

	envsRoot, err := pxhome.EnvsDir()
	if err != nil {
		return nil, err
	}
	profileDir := filepath.Join(envsRoot, profileOID.Encoded())

	meta := &EnvMetadata{
		SchemaVersion: CurrentStateSchemaVersion,
		LID:           id.String(),
		RuntimeKey:    runtimeKey,
		Platform:      platform,
		ProfileOID:    profileOID.String(),
	}

	if existing, err := readEnvMetadata(profileDir); err == nil && existing != nil && *existing == *meta {
		t.store.Log.Command("materialize_env").WithField("profile_oid", profileOID.String()).Debug("profile already materialized, reusing")
	} else {
		if err := os.MkdirAll(profileDir, 0o755); err != nil {
			return nil, err
		}
		if err := installer.Materialize(profileDir, flat); err != nil {
			return nil, err
		}
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(profileDir, "env.json"), data, 0o644); err != nil {
			return nil, err
		}
	}

	return meta, t.stageEnvPointer(profileDir)
}

func readEnvMetadata(profileDir string) (*EnvMetadata, error) {
	data, err := os.ReadFile(filepath.Join(profileDir, "env.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var meta EnvMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// stageEnvPointer stages the .px/envs/current symlink swap. The
// pointer swap is the actual commit point for env materialization
// (spec.md §4.3): the profile directory itself may already be on disk
// from a previous run, but the project isn't considered to be on it
// until current is repointed, and that repoint happens at txn.Commit
// alongside every other staged write.
func (t *Txn) stageEnvPointer(profileDir string) error {
	final := t.store.envCurrentPath()
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return err
	}
	t.nonce++
	staged := stagingPath(final, t.nonce)
	if err := os.Symlink(profileDir, staged); err != nil {
		return err
	}
	t.pending = append(t.pending, pendingRename{staged: staged, final: final})
	return nil
}
