package classify

import "testing"

func cleanFacts() Facts {
	return Facts{
		ManifestExists:       true,
		LockExists:           true,
		LockMFingerprint:     "fp1",
		CurrentMFingerprint:  "fp1",
		LockSchemaSupported:  true,
		RuntimeSatisfies:     true,
		PlatformMatches:      true,
		GroupsMatch:          true,
		EnvExists:            true,
		EnvLID:               "lid1",
		LockLID:              "lid1",
		EnvRuntime:           "cpython-3.11",
		LockRuntime:          "cpython-3.11",
		EnvPlatform:          "linux-x86_64",
		DependenciesEmpty:    false,
	}
}

func TestClassifyUninitialized(t *testing.T) {
	f := Facts{ManifestExists: false}
	state, issue := Classify(f)
	if state != Uninitialized {
		t.Errorf("state = %v, want Uninitialized", state)
	}
	if issue != nil {
		t.Errorf("issue = %v, want nil", issue)
	}
}

func TestClassifyNeedsLockWhenAbsent(t *testing.T) {
	f := cleanFacts()
	f.LockExists = false
	state, issue := Classify(f)
	if state != NeedsLock {
		t.Errorf("state = %v, want NeedsLock", state)
	}
	if issue == nil {
		t.Error("issue = nil, want a LockIssue")
	}
}

func TestClassifyNeedsLockOnFingerprintMismatch(t *testing.T) {
	f := cleanFacts()
	f.CurrentMFingerprint = "fp2"
	state, _ := Classify(f)
	if state != NeedsLock {
		t.Errorf("state = %v, want NeedsLock", state)
	}
}

func TestClassifyNeedsLockOnDrift(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Facts)
		reason DriftReason
	}{
		{"schema", func(f *Facts) { f.LockSchemaSupported = false }, DriftVersionMismatch},
		{"runtime", func(f *Facts) { f.RuntimeSatisfies = false }, DriftRuntimeMismatch},
		{"platform", func(f *Facts) { f.PlatformMatches = false }, DriftPlatformMismatch},
		{"groups", func(f *Facts) { f.GroupsMatch = false }, DriftGroupsMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := cleanFacts()
			tt.mutate(&f)
			state, issue := Classify(f)
			if state != NeedsLock {
				t.Fatalf("state = %v, want NeedsLock", state)
			}
			found := false
			for _, r := range issue.Reasons {
				if r == tt.reason {
					found = true
				}
			}
			if !found {
				t.Errorf("issue.Reasons = %v, want to contain %v", issue.Reasons, tt.reason)
			}
		})
	}
}

func TestClassifyNeedsEnvWhenMissing(t *testing.T) {
	f := cleanFacts()
	f.EnvExists = false
	state, _ := Classify(f)
	if state != NeedsEnv {
		t.Errorf("state = %v, want NeedsEnv", state)
	}
}

func TestClassifyNeedsEnvOnLIDMismatch(t *testing.T) {
	f := cleanFacts()
	f.EnvLID = "stale-lid"
	state, _ := Classify(f)
	if state != NeedsEnv {
		t.Errorf("state = %v, want NeedsEnv", state)
	}
}

func TestClassifyInitializedEmpty(t *testing.T) {
	f := cleanFacts()
	f.DependenciesEmpty = true
	state, _ := Classify(f)
	if state != InitializedEmpty {
		t.Errorf("state = %v, want InitializedEmpty", state)
	}
}

func TestClassifyConsistent(t *testing.T) {
	f := cleanFacts()
	state, issue := Classify(f)
	if state != Consistent {
		t.Errorf("state = %v, want Consistent", state)
	}
	if issue != nil {
		t.Errorf("issue = %v, want nil", issue)
	}
}

func TestToWorkspaceState(t *testing.T) {
	if ToWorkspaceState(Consistent) != WConsistent {
		t.Error("ToWorkspaceState(Consistent) != WConsistent")
	}
	if ToWorkspaceState(NeedsLock) != WNeedsLock {
		t.Error("ToWorkspaceState(NeedsLock) != WNeedsLock")
	}
}
