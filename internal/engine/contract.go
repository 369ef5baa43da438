package engine

import "github.com/pxtool/px/internal/classify"

// Writes enumerates which artifacts a command contract is permitted to
// touch, so the dispatch table can be audited without reading every
// command's body (spec.md §9: "commands as data, not inheritance").
type Writes int

const (
	WriteNone     Writes = 0
	WriteManifest Writes = 1 << 0
	WriteLock     Writes = 1 << 1
	WriteEnv      Writes = 1 << 2
	WriteState    Writes = 1 << 3
)

// Contract is one command's declared shape: its name, the states it's
// allowed to start from (nil means any state with a manifest present),
// and which artifacts it's permitted to write. It exists primarily as
// documentation and as a single place the CLI layer can consult before
// dispatch, rather than scattering state checks across command files.
type Contract struct {
	Name          string
	AllowedStates []classify.State // empty means "any, manifest required"
	Writes        Writes
}

// Contracts is the declarative command table spec.md §4.4 describes.
// Each command file's exported method (Init, Add, Remove, Sync,
// Update, Run, Status, Why, Migrate, PythonUse) is the actual
// transition function; this table is the contract those functions are
// expected to uphold, checked explicitly at the top of each one.
var Contracts = []Contract{
	{Name: "init", AllowedStates: []classify.State{classify.Uninitialized}, Writes: WriteManifest | WriteLock | WriteEnv | WriteState},
	{Name: "add", Writes: WriteManifest | WriteLock | WriteEnv | WriteState},
	{Name: "remove", Writes: WriteManifest | WriteLock | WriteEnv | WriteState},
	{Name: "sync", Writes: WriteLock | WriteEnv | WriteState},
	{Name: "update", AllowedStates: nil, Writes: WriteLock | WriteEnv | WriteState},
	{Name: "run", Writes: WriteEnv | WriteState},
	{Name: "test", Writes: WriteEnv | WriteState},
	{Name: "status", Writes: WriteNone},
	{Name: "why", Writes: WriteNone},
	{Name: "migrate", AllowedStates: []classify.State{classify.Uninitialized}, Writes: WriteManifest | WriteLock | WriteEnv | WriteState},
	{Name: "python use", Writes: WriteManifest | WriteLock | WriteEnv | WriteState},
}

// ContractFor looks up a command's declared contract by name.
func ContractFor(name string) (Contract, bool) {
	for _, c := range Contracts {
		if c.Name == name {
			return c, true
		}
	}
	return Contract{}, false
}
