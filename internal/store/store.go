// Package store is the Artifact Store (spec.md §4.3): the only
// component that touches the filesystem for Manifest, Lock,
// Env-metadata, and StateRecord. All writes route through a Txn so a
// failed command leaves committed state byte-identical to before.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/manifest"
	"github.com/pxtool/px/internal/pxerr"
	"github.com/pxtool/px/internal/pxlog"
)

// DotDir is the per-project/workspace metadata directory.
const DotDir = ".px"

// StagingGracePeriod is how old an orphaned *.tmp.* staging file must
// be before Reclaim removes it.
const StagingGracePeriod = 10 * time.Minute

// Store is a handle onto one project's or workspace's root directory.
// Per spec.md §9 there is no process-global store; every command
// entry point constructs its own handle.
type Store struct {
	Root string
	Log  *pxlog.Logger
}

// Open returns a Store rooted at root, opening its diagnostic logger.
func Open(root string) (*Store, error) {
	l, err := pxlog.Open(root)
	if err != nil {
		return nil, err
	}
	return &Store{Root: root, Log: l}, nil
}

func (s *Store) pxDir() string {
	return filepath.Join(s.Root, DotDir)
}

func (s *Store) statePath() string {
	return filepath.Join(s.pxDir(), "state.json")
}

func (s *Store) envCurrentPath() string {
	return filepath.Join(s.pxDir(), "envs", "current")
}

// LoadManifest loads pyproject.toml from the store's root.
func (s *Store) LoadManifest() (*manifest.Manifest, error) {
	return manifest.Load(s.Root)
}

// LoadLock loads px.lock from the store's root.
func (s *Store) LoadLock() (*lock.Lock, error) {
	return lock.Load(s.Root)
}

// LoadWorkspaceManifest loads [tool.px.workspace] from the store's root.
func (s *Store) LoadWorkspaceManifest() (*manifest.WorkspaceManifest, error) {
	return manifest.LoadWorkspace(s.Root)
}

// LoadWorkspaceLock loads px.workspace.lock from the store's root.
func (s *Store) LoadWorkspaceLock() (*lock.WorkspaceLock, error) {
	return lock.LoadWorkspace(s.Root)
}

// LoadState loads .px/state.json. A malformed file is treated as
// absent — a recovery path, not a hard error — per spec.md §4.3.
func (s *Store) LoadState() (*StateRecord, error) {
	data, err := os.ReadFile(s.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.statePath(), err)
	}
	var rec StateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.Log.Command("load_state").WithError(err).Warn("state.json malformed, treating as absent")
		return nil, nil
	}
	if rec.SchemaVersion != CurrentStateSchemaVersion {
		s.Log.Command("load_state").Warn("state.json schema version mismatch, treating as absent")
		return nil, nil
	}
	return &rec, nil
}

// LoadEnvMetadata loads the metadata for the env currently pointed at
// by .px/envs/current, or (nil, nil) if there is no current env.
func (s *Store) LoadEnvMetadata() (*EnvMetadata, error) {
	target, err := os.Readlink(s.envCurrentPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.envCurrentPath(), err)
	}
	metaPath := filepath.Join(target, "env.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", metaPath, err)
	}
	var meta EnvMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		s.Log.Command("load_env").WithError(err).Warn("env.json malformed, treating as absent")
		return nil, nil
	}
	return &meta, nil
}

// stagingPath builds a "<name>.tmp.<pid>.<nonce>" staging path in the
// same directory as final, so the eventual rename is same-filesystem
// and therefore atomic.
func stagingPath(final string, nonce int) string {
	dir := filepath.Dir(final)
	base := filepath.Base(final)
	return filepath.Join(dir, base+".tmp."+strconv.Itoa(os.Getpid())+"."+strconv.Itoa(nonce))
}

// Txn stages a set of writes and either commits them all via atomic
// rename or aborts, cleaning up every staged file. It models the
// scoped-acquisition pattern spec.md §9 calls for: guaranteed release
// on any exit path that does not explicitly commit.
type Txn struct {
	store     *Store
	nonce     int
	pending   []pendingRename
	committed bool
	aborted   bool
}

type pendingRename struct {
	staged string
	final  string
}

// Begin opens a transaction against s. Callers should `defer txn.Abort()`
// immediately; Abort after a successful Commit is a no-op.
func (s *Store) Begin() *Txn {
	return &Txn{store: s}
}

func (t *Txn) stageFile(final string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return err
	}
	t.nonce++
	staged := stagingPath(final, t.nonce)
	if err := os.WriteFile(staged, data, 0o644); err != nil {
		return err
	}
	t.pending = append(t.pending, pendingRename{staged: staged, final: final})
	return nil
}

// WriteManifest stages m for commit to pyproject.toml.
func (t *Txn) WriteManifest(m *manifest.Manifest) error {
	dir, err := renderManifestToDir(m)
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	data, err := os.ReadFile(manifest.Path(dir))
	if err != nil {
		return err
	}
	return t.stageFile(manifest.Path(t.store.Root), data)
}

// renderManifestToDir saves m into a throwaway scratch directory so its
// bytes can be staged into the transaction the same way every other
// artifact is, reusing manifest.Save's own TOML encoding.
func renderManifestToDir(m *manifest.Manifest) (string, error) {
	dir, err := os.MkdirTemp("", "px-manifest-*")
	if err != nil {
		return "", err
	}
	if err := manifest.Save(dir, m); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

// WriteLock stages l for commit to px.lock.
func (t *Txn) WriteLock(l *lock.Lock) error {
	lock.Canonicalize(l)
	dir, err := os.MkdirTemp("", "px-lock-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	if err := lock.Save(dir, l); err != nil {
		return err
	}
	data, err := os.ReadFile(lock.Path(dir))
	if err != nil {
		return err
	}
	return t.stageFile(lock.Path(t.store.Root), data)
}

// WriteWorkspaceLock stages wl for commit to px.workspace.lock.
func (t *Txn) WriteWorkspaceLock(wl *lock.WorkspaceLock) error {
	lock.CanonicalizeWorkspace(wl)
	dir, err := os.MkdirTemp("", "px-wlock-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	if err := lock.SaveWorkspace(dir, wl); err != nil {
		return err
	}
	data, err := os.ReadFile(lock.WorkspacePath(dir))
	if err != nil {
		return err
	}
	return t.stageFile(lock.WorkspacePath(t.store.Root), data)
}

// WriteState stages rec for commit to .px/state.json.
func (t *Txn) WriteState(rec *StateRecord) error {
	rec.SchemaVersion = CurrentStateSchemaVersion
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return t.stageFile(t.store.statePath(), data)
}

// Commit renames every staged file into place. It stages all renames'
// sources first, then performs the renames; if any rename fails partway,
// Abort is still responsible for cleaning up files not yet renamed, but
// already-renamed files are left (the caller must treat a failed Commit
// as fatal to the process, per spec.md §5's single fixed-order rule —
// Commit is the final step of a transaction, nothing follows it).
func (t *Txn) Commit() error {
	if t.committed || t.aborted {
		return pxerr.New(pxerr.CodeInvalidState, "transaction already finalized", nil, nil)
	}
	for _, p := range t.pending {
		if err := os.Rename(p.staged, p.final); err != nil {
			return fmt.Errorf("committing %s: %w", p.final, err)
		}
	}
	t.committed = true
	return nil
}

// Abort removes every staged file that has not yet been renamed into
// place. Safe to call after a successful Commit (no-op) or multiple
// times.
func (t *Txn) Abort() {
	if t.committed || t.aborted {
		return
	}
	for _, p := range t.pending {
		os.Remove(p.staged)
	}
	t.aborted = true
}

// Reclaim scans the whole tree under root (pyproject.toml and px.lock
// are staged beside themselves at root, state and the env pointer under
// .px/) for orphan staging files older than StagingGracePeriod and
// removes them — the crash-recovery sweep spec.md §4.3 requires on next
// startup.
func Reclaim(root string) error {
	cutoff := time.Now().Add(-StagingGracePeriod)
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !isStagingName(info.Name()) {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		return os.Remove(path)
	})
}

func isStagingName(name string) bool {
	return filepath.Ext(name) != "" && containsTmpMarker(name)
}

func containsTmpMarker(name string) bool {
	const marker = ".tmp."
	for i := 0; i+len(marker) <= len(name); i++ {
		if name[i:i+len(marker)] == marker {
			return true
		}
	}
	return false
}
