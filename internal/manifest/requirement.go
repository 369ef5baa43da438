package manifest

import (
	"regexp"
	"sort"
	"strings"
)

// Normalize applies PEP 503 package-name normalization: lowercase, and
// any run of "-", "_", or "." collapsed to a single "-".
func Normalize(name string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	runStart := true
	for _, r := range lower {
		if r == '-' || r == '_' || r == '.' {
			if !runStart {
				b.WriteByte('-')
				runStart = true
			}
			continue
		}
		b.WriteRune(r)
		runStart = false
	}
	return strings.Trim(b.String(), "-")
}

var reqPattern = regexp.MustCompile(`^\s*([A-Za-z0-9][A-Za-z0-9._-]*)\s*(\[[^\]]*\])?\s*([^;]*)\s*(?:;\s*(.*))?\s*$`)

// ParseRequirement exposes parseRequirement for callers (the add
// command) that accept a raw PEP 508-ish requirement string from the
// command line.
func ParseRequirement(raw string) Requirement {
	return parseRequirement(raw)
}

// parseRequirement does a best-effort split of a PEP 508 requirement
// string into name/extras/specifier/marker. It is intentionally
// forgiving: resolution semantics of the specifier/marker are the
// resolver's concern (out of scope, spec.md §1); the identity layer
// only hashes their whitespace-normalized text.
func parseRequirement(raw string) Requirement {
	trimmed := strings.TrimSpace(raw)
	m := reqPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return Requirement{Name: trimmed, Raw: raw}
	}
	req := Requirement{
		Name:      strings.TrimSpace(m[1]),
		Specifier: strings.TrimSpace(m[3]),
		Marker:    strings.TrimSpace(m[4]),
		Raw:       raw,
	}
	if m[2] != "" {
		extrasRaw := strings.Trim(m[2], "[]")
		for _, e := range strings.Split(extrasRaw, ",") {
			e = strings.TrimSpace(e)
			if e != "" {
				req.Extras = append(req.Extras, e)
			}
		}
	}
	return req
}

// CanonicalExtras returns extras lowercased and sorted, pinned as part
// of identity.ProjectionVersion (see DESIGN.md Open Question decision).
func (r Requirement) CanonicalExtras() []string {
	if len(r.Extras) == 0 {
		return nil
	}
	out := make([]string, len(r.Extras))
	for i, e := range r.Extras {
		out[i] = strings.ToLower(strings.TrimSpace(e))
	}
	sort.Strings(out)
	return out
}

// CanonicalMarker normalizes whitespace around a marker expression.
// Full marker-grammar canonicalization (operator precedence, quoting
// style) is out of scope here since the resolver, not the core, is
// responsible for marker evaluation (spec.md §1); the identity layer
// only needs a stable string for hashing.
func (r Requirement) CanonicalMarker() string {
	fields := strings.Fields(r.Marker)
	return strings.Join(fields, " ")
}

// CanonicalSpecifier normalizes whitespace in the version specifier.
func (r Requirement) CanonicalSpecifier() string {
	parts := strings.Split(r.Specifier, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}
