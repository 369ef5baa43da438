package engine

import (
	"github.com/pxtool/px/internal/classify"
	"github.com/pxtool/px/internal/identity"
	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/manifest"
	"github.com/pxtool/px/internal/runtimereg"
	"github.com/pxtool/px/internal/store"
)

// snapshot is every artifact the engine loaded for one command
// invocation, plus the classifier's verdict on them.
type snapshot struct {
	Manifest    *manifest.Manifest
	Lock        *lock.Lock
	EnvMeta     *store.EnvMetadata
	StateRecord *store.StateRecord

	MFingerprint string
	State        classify.State
	LockIssue    *classify.LockIssue
}

// loadSnapshot reads every artifact the classifier needs from s and
// runs the pure classifier over them. It never mutates anything.
func loadSnapshot(s *store.Store) (*snapshot, error) {
	m, err := s.LoadManifest()
	if err != nil {
		return nil, err
	}
	if m == nil {
		st, _ := classify.Classify(classify.Facts{ManifestExists: false})
		return &snapshot{State: st}, nil
	}

	l, err := s.LoadLock()
	if err != nil {
		return nil, err
	}
	envMeta, err := s.LoadEnvMetadata()
	if err != nil {
		return nil, err
	}
	stateRec, err := s.LoadState()
	if err != nil {
		return nil, err
	}

	mfp := identity.MFingerprint(m).String()
	facts := classify.Facts{
		ManifestExists:      true,
		CurrentMFingerprint: mfp,
		DependenciesEmpty:   len(m.Dependencies) == 0,
	}

	if l != nil {
		runtimeSatisfies := runtimereg.Satisfies(runtimeVersionFromKey(currentRuntimeKeyOrEmpty(stateRec)), m.PythonConstraint)
		facts.LockExists = true
		facts.LockMFingerprint = l.MFingerprint
		facts.LockSchemaSupported = l.SchemaVersion == lock.SchemaVersion
		facts.RuntimeSatisfies = runtimeSatisfies || m.PythonConstraint == ""
		facts.PlatformMatches = envMeta == nil || envMeta.Platform == currentPlatform()
		facts.GroupsMatch = groupsMatch(l.Groups, m.GroupNames())

		lID := identity.LID(l, runtimeKeyOf(stateRec), currentPlatform())
		facts.LockLID = lID.String()
	}

	if envMeta != nil {
		facts.EnvExists = true
		facts.EnvLID = envMeta.LID
		facts.EnvRuntime = envMeta.RuntimeKey
		facts.EnvPlatform = envMeta.Platform
		if l != nil {
			facts.LockRuntime = envMeta.RuntimeKey // lock doesn't pin a runtime key of its own pre-materialization
		}
	}

	st, issue := classify.Classify(facts)
	return &snapshot{
		Manifest:     m,
		Lock:         l,
		EnvMeta:      envMeta,
		StateRecord:  stateRec,
		MFingerprint: mfp,
		State:        st,
		LockIssue:    issue,
	}, nil
}

// groupsMatch reports whether the groups a lock was resolved for still
// match the manifest's declared groups, one of spec.md §4.2's four
// structured drift reasons. Both slices arrive sorted (lockGroups via
// lock.Canonicalize on load, manifestGroups via GroupNames itself), so
// a positional comparison after a length check is sufficient.
func groupsMatch(lockGroups, manifestGroups []string) bool {
	if len(lockGroups) != len(manifestGroups) {
		return false
	}
	for i, g := range lockGroups {
		if g != manifestGroups[i] {
			return false
		}
	}
	return true
}

func runtimeKeyOf(rec *store.StateRecord) string {
	if rec == nil {
		return ""
	}
	return rec.RuntimeKey
}

func currentRuntimeKeyOrEmpty(rec *store.StateRecord) string {
	return runtimeKeyOf(rec)
}

// runtimeVersionFromKey extracts a dotted version from a runtime key
// like "cpython-3.11" for constraint checking; unrecognized keys
// satisfy nothing and a constraint check against them reports false,
// which is intentional: an unknown runtime can't be proven to satisfy
// anything.
func runtimeVersionFromKey(key string) string {
	const prefix = "cpython-"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return ""
}
