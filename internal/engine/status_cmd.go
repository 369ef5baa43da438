package engine

import (
	"github.com/pxtool/px/internal/classify"
)

// StatusReport is the pure-reader result of `px status`: the derived
// state plus enough detail to explain it without re-deriving anything.
type StatusReport struct {
	State         classify.State
	DriftReasons  []classify.DriftReason
	ManifestExists bool
	LockExists     bool
	EnvExists      bool
	MFingerprint   string
}

// Status is a pure reader: it never writes, never acquires the
// advisory lock, and never invokes a resolver, installer, or runtime
// probe beyond what loadSnapshot already does.
func (d *Deps) Status() (*StatusReport, error) {
	if d.WorkspaceStore != nil {
		return d.workspaceStatus()
	}

	snap, err := loadSnapshot(d.Store)
	if err != nil {
		return nil, err
	}
	report := &StatusReport{
		State:          snap.State,
		ManifestExists: snap.Manifest != nil,
		LockExists:     snap.Lock != nil,
		EnvExists:      snap.EnvMeta != nil,
		MFingerprint:   snap.MFingerprint,
	}
	if snap.LockIssue != nil {
		report.DriftReasons = snap.LockIssue.Reasons
	}
	return report, nil
}

// workspaceStatus is Status's workspace-governed counterpart, reporting
// over WM/WL/WE rather than any single member's M/L/E.
func (d *Deps) workspaceStatus() (*StatusReport, error) {
	snap, err := loadWorkspaceSnapshot(d)
	if err != nil {
		return nil, err
	}
	report := &StatusReport{
		State:          snap.State,
		ManifestExists: snap.WM != nil,
		LockExists:     snap.WL != nil,
		EnvExists:      snap.WEnvMeta != nil,
		MFingerprint:   snap.WMFingerprint,
	}
	if snap.LockIssue != nil {
		report.DriftReasons = snap.LockIssue.Reasons
	}
	return report, nil
}
