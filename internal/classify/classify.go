// Package classify implements the pure state classifier (spec.md §4.2):
// given parsed (or absent) artifacts, it returns one of the canonical
// states, with no filesystem access of its own.
package classify

import "fmt"

// State is one of the canonical classifications for a project or
// workspace.
type State int

const (
	Uninitialized State = iota
	InitializedEmpty
	NeedsLock
	NeedsEnv
	Consistent

	WUninitialized
	WInitializedEmpty
	WNeedsLock
	WNeedsEnv
	WConsistent
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case InitializedEmpty:
		return "initialized_empty"
	case NeedsLock:
		return "needs_lock"
	case NeedsEnv:
		return "needs_env"
	case Consistent:
		return "consistent"
	case WUninitialized:
		return "w_uninitialized"
	case WInitializedEmpty:
		return "w_initialized_empty"
	case WNeedsLock:
		return "w_needs_lock"
	case WNeedsEnv:
		return "w_needs_env"
	case WConsistent:
		return "w_consistent"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DriftReason names why detect_lock_drift rejected a lock as clean,
// per spec.md §4.2's four structured reasons.
type DriftReason string

const (
	DriftVersionMismatch  DriftReason = "version_mismatch"
	DriftRuntimeMismatch  DriftReason = "runtime_mismatch"
	DriftPlatformMismatch DriftReason = "platform_mismatch"
	DriftGroupsMismatch   DriftReason = "groups_mismatch"
)

// LockIssue is the detail record attached to a NeedsLock classification.
type LockIssue struct {
	Reasons []DriftReason
}

func (i *LockIssue) add(r DriftReason) {
	i.Reasons = append(i.Reasons, r)
}

func (i *LockIssue) isEmpty() bool {
	return i == nil || len(i.Reasons) == 0
}

// Facts is every boolean/identity fact the classifier needs, already
// computed by the caller (the Identity Layer and Artifact Store) —
// classify.Classify never touches a filesystem or recomputes a hash.
type Facts struct {
	ManifestExists bool

	LockExists          bool
	LockMFingerprint    string
	CurrentMFingerprint string

	// Drift inputs, only meaningful when LockExists.
	LockSchemaSupported  bool
	RuntimeSatisfies     bool
	PlatformMatches      bool
	GroupsMatch          bool

	EnvExists   bool
	EnvLID      string
	LockLID     string
	EnvRuntime  string
	LockRuntime string
	EnvPlatform string

	DependenciesEmpty bool
}

// detectLockDrift evaluates spec.md §4.2's four structured drift checks.
// Fingerprint match alone is insufficient: each of these is checked
// independently so the error-hint subsystem can cite a specific reason.
func detectLockDrift(f Facts) *LockIssue {
	issue := &LockIssue{}
	if f.LockMFingerprint != f.CurrentMFingerprint {
		// fingerprint mismatch alone doesn't get its own reason code;
		// it's folded into NeedsLock by the caller regardless. Only the
		// four named structured reasons are reported here.
		_ = f
	}
	if !f.LockSchemaSupported {
		issue.add(DriftVersionMismatch)
	}
	if !f.RuntimeSatisfies {
		issue.add(DriftRuntimeMismatch)
	}
	if !f.PlatformMatches {
		issue.add(DriftPlatformMismatch)
	}
	if !f.GroupsMatch {
		issue.add(DriftGroupsMismatch)
	}
	if issue.isEmpty() {
		return nil
	}
	return issue
}

// Classify returns a project's canonical state plus a LockIssue detail
// record when the state is NeedsLock.
func Classify(f Facts) (State, *LockIssue) {
	if !f.ManifestExists {
		return Uninitialized, nil
	}

	fingerprintMismatch := !f.LockExists || f.LockMFingerprint != f.CurrentMFingerprint
	drift := detectLockDrift(f)
	if !f.LockExists || fingerprintMismatch || !drift.isEmpty() {
		if drift.isEmpty() {
			drift = &LockIssue{}
		}
		return NeedsLock, drift
	}

	manifestClean := true // fingerprint matched and no drift, reaching here
	envClean := f.EnvExists && f.EnvLID == f.LockLID && f.EnvRuntime == f.LockRuntime && f.EnvPlatform != "" && f.PlatformMatches

	if manifestClean && (!f.EnvExists || f.EnvLID != f.LockLID) {
		return NeedsEnv, nil
	}

	if manifestClean && envClean && f.DependenciesEmpty {
		return InitializedEmpty, nil
	}

	if manifestClean && envClean {
		return Consistent, nil
	}

	return NeedsEnv, nil
}

// ToWorkspaceState maps a project-scoped state to its W-prefixed
// workspace-scoped equivalent, used when a workspace root governs the
// classification (spec.md §3 invariant 7).
func ToWorkspaceState(s State) State {
	switch s {
	case Uninitialized:
		return WUninitialized
	case InitializedEmpty:
		return WInitializedEmpty
	case NeedsLock:
		return WNeedsLock
	case NeedsEnv:
		return WNeedsEnv
	case Consistent:
		return WConsistent
	default:
		return s
	}
}
