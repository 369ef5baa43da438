// Package identity computes deterministic fingerprints over parsed
// artifacts (spec.md §4.1). Every function here is pure: no I/O, no
// wall-clock reads, no random numbers — only bytes in, digest out.
package identity

import (
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/manifest"
)

// ProjectionVersion pins the exact canonical projection used by
// MFingerprint/WMFingerprint/LID/WLID. Any change to field order,
// normalization rules, or included fields is a breaking change and
// must bump this constant (spec.md §4.1, §9 Open Question).
const ProjectionVersion = 1

// mfingerprintInputs renders the canonical, hashable projection of a
// manifest: normalized+sorted+deduped dependency specifiers, the
// resolved include-groups set, python_constraint, and tool_px.dependencies
// extensions. Version strings, descriptions, script aliases, and
// comments are deliberately excluded.
func mfingerprintInputs(m *manifest.Manifest) string {
	var b strings.Builder
	fmtVersion(&b)

	specs := canonicalRequirements(m.Dependencies)
	for _, s := range specs {
		b.WriteString("dep\x00")
		b.WriteString(s)
		b.WriteString("\x01")
	}

	for _, g := range resolvedGroups(m) {
		b.WriteString("group\x00")
		b.WriteString(g)
		b.WriteString("\x01")
	}

	b.WriteString("python\x00")
	b.WriteString(strings.TrimSpace(m.PythonConstraint))
	b.WriteString("\x01")

	if len(m.ToolPx.Dependency.Include) > 0 {
		inc := append([]string(nil), m.ToolPx.Dependency.Include...)
		sort.Strings(inc)
		for _, g := range inc {
			b.WriteString("include-group\x00")
			b.WriteString(g)
			b.WriteString("\x01")
		}
	}

	return b.String()
}

func fmtVersion(b *strings.Builder) {
	b.WriteString("projection-version\x00")
	b.WriteString(itoa(ProjectionVersion))
	b.WriteString("\x01")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// canonicalRequirements normalizes names (PEP 503), canonicalizes
// extras/marker/specifier, sorts, and dedupes by the fully-canonical
// string (not just by name — two requirements on the same package with
// different extras are distinct projection entries).
func canonicalRequirements(reqs []manifest.Requirement) []string {
	seen := make(map[string]struct{}, len(reqs))
	var out []string
	for _, r := range reqs {
		s := canonicalRequirementString(r)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func canonicalRequirementString(r manifest.Requirement) string {
	var b strings.Builder
	b.WriteString(manifest.Normalize(r.Name))
	extras := r.CanonicalExtras()
	if len(extras) > 0 {
		b.WriteByte('[')
		b.WriteString(strings.Join(extras, ","))
		b.WriteByte(']')
	}
	if spec := r.CanonicalSpecifier(); spec != "" {
		b.WriteString(spec)
	}
	if marker := r.CanonicalMarker(); marker != "" {
		b.WriteString(";")
		b.WriteString(marker)
	}
	return b.String()
}

// resolvedGroups implements spec.md §3.6's include-groups resolution:
// an explicit [tool.px.dependencies] include-groups list wins;
// otherwise every declared group unioned with WellKnownDevGroups.
func resolvedGroups(m *manifest.Manifest) []string {
	if len(m.ToolPx.Dependency.Include) > 0 {
		out := append([]string(nil), m.ToolPx.Dependency.Include...)
		sort.Strings(out)
		return out
	}
	set := make(map[string]struct{})
	for _, g := range m.GroupNames() {
		set[g] = struct{}{}
	}
	for _, g := range manifest.WellKnownDevGroups {
		set[g] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// MFingerprint computes the stable hash of m's canonical projection.
func MFingerprint(m *manifest.Manifest) digest.Digest {
	return digest.FromString(mfingerprintInputs(m))
}

// WMFingerprint hashes the ordered member path list followed by each
// member's flattened mfingerprint inputs (not its mfingerprint itself),
// so rearranging packages across members changes the hash (spec.md §4.1).
func WMFingerprint(wm *manifest.WorkspaceManifest, memberManifests []*manifest.Manifest) digest.Digest {
	var b strings.Builder
	fmtVersion(&b)
	for _, p := range wm.Members {
		b.WriteString("member\x00")
		b.WriteString(p)
		b.WriteString("\x01")
	}
	for _, mm := range memberManifests {
		b.WriteString(mfingerprintInputs(mm))
		b.WriteString("\x02")
	}
	return digest.FromString(b.String())
}

// LID hashes l's canonical resolved graph plus its mfingerprint field
// plus runtime+platform tags.
func LID(l *lock.Lock, runtimeKey, platform string) digest.Digest {
	lock.Canonicalize(l)
	var b strings.Builder
	fmtVersion(&b)
	b.WriteString("mfingerprint\x00")
	b.WriteString(l.MFingerprint)
	b.WriteString("\x01")
	b.WriteString("runtime\x00")
	b.WriteString(runtimeKey)
	b.WriteString("\x01")
	b.WriteString("platform\x00")
	b.WriteString(platform)
	b.WriteString("\x01")
	for _, n := range l.Nodes {
		b.WriteString("node\x00")
		b.WriteString(n.Name)
		b.WriteByte('@')
		b.WriteString(n.Version)
		b.WriteByte('@')
		b.WriteString(n.Source)
		b.WriteByte('@')
		b.WriteString(strings.Join(n.Hashes, ","))
		b.WriteByte('@')
		b.WriteString(strings.Join(n.Dependencies, ","))
		b.WriteString("\x01")
	}
	return digest.FromString(b.String())
}

// WLID hashes wl's canonical union graph plus its wmfingerprint field
// plus runtime+platform tags.
func WLID(wl *lock.WorkspaceLock, runtimeKey, platform string) digest.Digest {
	lock.CanonicalizeWorkspace(wl)
	var b strings.Builder
	fmtVersion(&b)
	b.WriteString("wmfingerprint\x00")
	b.WriteString(wl.WMFingerprint)
	b.WriteString("\x01")
	b.WriteString("runtime\x00")
	b.WriteString(runtimeKey)
	b.WriteString("\x01")
	b.WriteString("platform\x00")
	b.WriteString(platform)
	b.WriteString("\x01")
	for _, n := range wl.Nodes {
		b.WriteString("node\x00")
		b.WriteString(n.Name)
		b.WriteByte('@')
		b.WriteString(n.Version)
		b.WriteByte('@')
		b.WriteString(n.OwningMember)
		b.WriteString("\x01")
	}
	return digest.FromString(b.String())
}

// ProfileOID derives the content-addressable env directory name from
// l_id, the runtime key, and the platform tag (spec.md §4.3).
func ProfileOID(lID digest.Digest, runtimeKey, platform string) digest.Digest {
	return digest.FromString(lID.String() + "\x00" + runtimeKey + "\x00" + platform)
}
