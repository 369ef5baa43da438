package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pxtool/px/internal/advisory"
	"github.com/pxtool/px/internal/classify"
	"github.com/pxtool/px/internal/manifest"
	"github.com/pxtool/px/internal/pxerr"
	"github.com/pxtool/px/internal/resolverapi"
	"github.com/pxtool/px/internal/runtimereg"
)

// legacyMarkers names the foreign-tool manifest files migrate can adopt
// from. When more than one is present, the caller must disambiguate
// with --from since adopting the wrong one silently would be worse
// than refusing.
var legacyMarkers = map[string]string{
	"requirements.txt": "requirements.txt",
	"Pipfile":          "pipfile",
	"poetry.lock":      "poetry",
}

// MigrateOptions configures `px migrate` / `px migrate --apply`.
type MigrateOptions struct {
	Apply bool
	From  string // disambiguates when more than one legacy source is present
}

// MigratePlan is the read-only proposal `px migrate` without --apply
// produces: what would be written, without writing it.
type MigratePlan struct {
	Source       string
	Dependencies []string
}

// Migrate implements the migrate contract: without --apply it is a
// pure reader producing a proposal; with --apply it performs the
// atomic three-artifact write (manifest, lock, env) from Uninitialized
// or a detected legacy project directory.
func (d *Deps) Migrate(ctx context.Context, opts MigrateOptions) (*MigratePlan, error) {
	found, err := detectLegacySources(d.Store.Root)
	if err != nil {
		return nil, err
	}
	source := opts.From
	if source == "" {
		if len(found) == 0 {
			return nil, pxerr.New(pxerr.CodeInvalidState,
				"no legacy project found",
				[]string{"no requirements.txt, Pipfile, or poetry.lock in this directory"},
				nil)
		}
		if len(found) > 1 {
			return nil, pxerr.New(pxerr.CodeInvalidState,
				"ambiguous migration source",
				[]string{"more than one legacy manifest is present: " + joinKeys(found)},
				[]string{"re-run with --from to pick one"})
		}
		source = found[0]
	}

	deps, err := readLegacyDependencies(d.Store.Root, source)
	if err != nil {
		return nil, err
	}
	plan := &MigratePlan{Source: source, Dependencies: deps}
	if !opts.Apply {
		return plan, nil
	}

	snap, err := loadSnapshot(d.Store)
	if err != nil {
		return nil, err
	}
	if snap.State != classify.Uninitialized {
		return nil, pxerr.New(pxerr.CodeInvalidState,
			"migrate --apply requires an uninitialized directory",
			[]string{"current state is " + snap.State.String()},
			nil)
	}

	m := manifest.New(filepath.Base(d.Store.Root), ">=3.9")
	for _, raw := range deps {
		m.AddDependency(manifest.ParseRequirement(raw))
	}

	interp, err := runtimereg.Find(ctx, m.PythonConstraint)
	if err != nil {
		return nil, err
	}

	err = d.withLock(advisory.Exclusive, func() error {
		l, err := d.resolveFn(ctx, m, interp.Key(), resolverapi.ModeLock, nil)
		if err != nil {
			return err
		}
		stampLockMetadata(l, m)
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
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func detectLegacySources(root string) ([]string, error) {
	var found []string
	for file, key := range legacyMarkers {
		if _, err := os.Stat(filepath.Join(root, file)); err == nil {
			found = append(found, key)
		}
	}
	return found, nil
}

func joinKeys(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += k
	}
	return out
}

// readLegacyDependencies extracts a flat requirement list from the
// named legacy source. Only requirements.txt's simple one-per-line
// format is parsed directly; Pipfile/poetry.lock's TOML dependency
// tables are read via the same best-effort line split since px's
// concern here is adoption, not reproducing the foreign tool's parser.
func readLegacyDependencies(root, source string) ([]string, error) {
	var file string
	switch source {
	case "requirements.txt":
		file = "requirements.txt"
	case "pipfile":
		file = "Pipfile"
	case "poetry":
		file = "poetry.lock"
	default:
		return nil, pxerr.New(pxerr.CodeInvalidState, "unknown migration source", []string{source}, nil)
	}

	data, err := os.ReadFile(filepath.Join(root, file))
	if err != nil {
		return nil, err
	}
	return splitLegacyLines(string(data)), nil
}

func splitLegacyLines(content string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(content); i++ {
		if i == len(content) || content[i] == '\n' {
			line := trimSpaceAndComment(content[start:i])
			if line != "" {
				out = append(out, line)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpaceAndComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] == '#' {
			line = line[:i]
			break
		}
	}
	start, end := 0, len(line)
	for start < end && (line[start] == ' ' || line[start] == '\t' || line[start] == '\r') {
		start++
	}
	for end > start && (line[end-1] == ' ' || line[end-1] == '\t' || line[end-1] == '\r') {
		end--
	}
	return line[start:end]
}
