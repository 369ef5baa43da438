// Package runtimereg is the pure-function boundary onto the
// out-of-scope Python interpreter registry/installer (spec.md §1): it
// only discovers interpreters already present on PATH or under
// ~/.px/runtimes, it never downloads or installs one.
package runtimereg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/pxtool/px/internal/pxerr"
	"github.com/pxtool/px/internal/pxhome"
)

// Interpreter is one discovered Python runtime.
type Interpreter struct {
	Path    string // absolute path to the interpreter binary
	Version string // e.g. "3.11.9"
}

// Key returns the stable runtime identifier used in fingerprints and
// profile_oid derivation (spec.md §4.1, §4.3): "cpython-<major.minor>".
func (i Interpreter) Key() string {
	parts := strings.SplitN(i.Version, ".", 3)
	if len(parts) < 2 {
		return "cpython-" + i.Version
	}
	return fmt.Sprintf("cpython-%s.%s", parts[0], parts[1])
}

// Platform returns the current platform tag, e.g. "linux-amd64".
func Platform() string {
	return runtime.GOOS + "-" + runtime.GOARCH
}

var binNamePattern = regexp.MustCompile(`^python3(\.\d+)?$`)

// Discover probes PATH and ~/.px/runtimes for candidate interpreters,
// querying each with `--version`. Errors from individual candidates
// are skipped, not fatal — a broken python3 symlink on PATH shouldn't
// block discovery of a working one.
func Discover(ctx context.Context) ([]Interpreter, error) {
	seen := make(map[string]struct{})
	var out []Interpreter

	for _, dir := range pathDirs() {
		entries, err := filepathGlob(dir)
		if err != nil {
			continue
		}
		for _, p := range entries {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			if interp, ok := probe(ctx, p); ok {
				out = append(out, interp)
			}
		}
	}

	if runtimesDir, err := pxhome.RuntimesDir(); err == nil {
		entries, err := filepathGlob(filepath.Join(runtimesDir, "*", "bin", "python3"))
		if err == nil {
			for _, p := range entries {
				if _, ok := seen[p]; ok {
					continue
				}
				seen[p] = struct{}{}
				if interp, ok := probe(ctx, p); ok {
					out = append(out, interp)
				}
			}
		}
	}

	sort.Slice(out, func(a, b int) bool { return compareVersions(out[a].Version, out[b].Version) > 0 })
	return out, nil
}

func probe(ctx context.Context, path string) (Interpreter, bool) {
	cmd := exec.CommandContext(ctx, path, "--version")
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return Interpreter{}, false
	}
	v := parseVersionOutput(buf.String())
	if v == "" {
		return Interpreter{}, false
	}
	return Interpreter{Path: path, Version: v}, true
}

var versionPattern = regexp.MustCompile(`(\d+\.\d+\.\d+)`)

func parseVersionOutput(s string) string {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// Find selects the best discovered interpreter satisfying constraint
// (a PEP 440-ish version specifier such as ">=3.9"); the newest
// satisfying version wins.
func Find(ctx context.Context, constraint string) (Interpreter, error) {
	candidates, err := Discover(ctx)
	if err != nil {
		return Interpreter{}, err
	}
	for _, c := range candidates {
		if Satisfies(c.Version, constraint) {
			return c, nil
		}
	}
	return Interpreter{}, pxerr.New(pxerr.CodeRuntimeMismatch,
		fmt.Sprintf("no discovered interpreter satisfies %q", constraint),
		[]string{"searched PATH and ~/.px/runtimes"},
		[]string{"install a matching Python interpreter and retry"})
}

// Satisfies does a minimal PEP 440 comparator-style check sufficient
// for the single-clause constraints init/add write (">=3.9", "==3.11.*",
// "~=3.10"); full marker/specifier grammar is the resolver's job
// (out of scope, spec.md §1).
func Satisfies(version, constraint string) bool {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return true
	}
	for _, clause := range strings.Split(constraint, ",") {
		if !satisfiesClause(version, strings.TrimSpace(clause)) {
			return false
		}
	}
	return true
}

func satisfiesClause(version, clause string) bool {
	for _, op := range []string{">=", "<=", "==", "~=", ">", "<"} {
		if strings.HasPrefix(clause, op) {
			want := strings.TrimSpace(strings.TrimPrefix(clause, op))
			want = strings.TrimSuffix(want, ".*")
			cmp := compareVersions(version, want)
			switch op {
			case ">=":
				return cmp >= 0
			case "<=":
				return cmp <= 0
			case "==":
				return strings.HasPrefix(version, want)
			case "~=":
				return cmp >= 0 && sameMinor(version, want)
			case ">":
				return cmp > 0
			case "<":
				return cmp < 0
			}
		}
	}
	return true
}

func sameMinor(a, b string) bool {
	ap := strings.SplitN(a, ".", 3)
	bp := strings.SplitN(b, ".", 3)
	return len(ap) >= 2 && len(bp) >= 2 && ap[0] == bp[0] && ap[1] == bp[1]
}

func compareVersions(a, b string) int {
	ap := strings.Split(a, ".")
	bp := strings.Split(b, ".")
	for i := 0; i < len(ap) || i < len(bp); i++ {
		var av, bv int
		if i < len(ap) {
			fmt.Sscanf(ap[i], "%d", &av)
		}
		if i < len(bp) {
			fmt.Sscanf(bp[i], "%d", &bv)
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
