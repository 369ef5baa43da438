package pxerr

// HintForMissingModule implements spec.md §7's state-driven hint logic
// for "ModuleNotFoundError: <pkg>" surfaced while running a target:
// if pkg is a direct manifest dependency, the env has drifted (suggest
// sync); if it's only in the lock, point at why; otherwise it was
// simply never declared (suggest add).
func HintForMissingModule(pkg string, inManifest, inLock bool) []string {
	switch {
	case inManifest:
		return []string{fmtSuggest("px sync")}
	case inLock:
		return []string{fmtSuggest("px why " + pkg)}
	default:
		return []string{fmtSuggest("px add " + pkg)}
	}
}

func fmtSuggest(cmd string) string {
	return "run `" + cmd + "`"
}
