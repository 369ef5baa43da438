package engine

import (
	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/manifest"
	"github.com/pxtool/px/internal/pxerr"
)

// WhyReport explains how a package reached the lock, for `px why <pkg>`.
type WhyReport struct {
	Name        string
	Normalized  string
	Direct      bool
	InLock      bool
	LockedNode  lock.LockedNode
	RequiredBy  []string // direct requirements in the manifest that name it, raw form
}

// Why is a pure reader. It never writes and never invokes a resolver;
// it only reports what the manifest and lock already record about pkg.
func (d *Deps) Why(pkg string) (*WhyReport, error) {
	snap, err := loadSnapshot(d.Store)
	if err != nil {
		return nil, err
	}
	if snap.Manifest == nil {
		return nil, pxerr.New(pxerr.CodeNoProjectFound,
			"no project found",
			[]string{"no pyproject.toml in this directory or any ancestor"},
			[]string{"run `px init` to create one"})
	}

	norm := manifest.Normalize(pkg)
	report := &WhyReport{Name: pkg, Normalized: norm}

	for _, r := range snap.Manifest.Dependencies {
		if manifest.Normalize(r.Name) == norm {
			report.Direct = true
			report.RequiredBy = append(report.RequiredBy, r.Raw)
		}
	}

	if snap.Lock != nil {
		if node, ok := snap.Lock.NodeByName(norm); ok {
			report.InLock = true
			report.LockedNode = node
		}
	}

	if !report.Direct && !report.InLock {
		return nil, pxerr.New(pxerr.CodeInvalidState,
			"package not found",
			[]string{pkg + " is not a direct dependency and does not appear in the lock"},
			pxerr.HintForMissingModule(pkg, report.Direct, report.InLock))
	}

	return report, nil
}
