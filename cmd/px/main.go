// Command px is the front-door dependency/environment manager for
// Python projects: a thin kong CLI over internal/engine's command
// contracts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	"github.com/pxtool/px/internal/engine"
	"github.com/pxtool/px/internal/pxconfig"
	"github.com/pxtool/px/internal/pxhome"
	"github.com/pxtool/px/internal/resolverapi"
	"github.com/pxtool/px/internal/router"
	"github.com/pxtool/px/internal/store"
)

// CLI defines the command-line interface structure.
type CLI struct {
	Frozen bool `help:"Refuse to repair drift; fail instead of resolving or materializing."`

	Init      InitCmd      `cmd:"" help:"Create a new px-managed project in the current directory"`
	Add       AddCmd       `cmd:"" help:"Add one or more dependencies"`
	Remove    RemoveCmd    `cmd:"" help:"Remove a direct dependency"`
	Sync      SyncCmd      `cmd:"" help:"Bring the lock and environment in line with the manifest"`
	Update    UpdateCmd    `cmd:"" help:"Re-resolve dependencies, preferring newer versions"`
	Run       RunCmd       `cmd:"" help:"Run a script, file, or executable in the project environment"`
	Test      TestCmd      `cmd:"" help:"Run the project's configured test target"`
	Status    StatusCmd    `cmd:"" help:"Show the project's current consistency state"`
	Why       WhyCmd       `cmd:"" help:"Explain why a package is present"`
	Migrate   MigrateCmd   `cmd:"" help:"Propose or apply adoption of a legacy project"`
	Python    PythonCmd    `cmd:"" help:"Manage the project's interpreter"`
	Serve     ServeCmd     `cmd:"" help:"Run the read-only MCP status server"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("px"),
		kong.Description("px - dependency and environment management for Python projects"),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cliContext{frozen: cli.Frozen})
	ctx.FatalIfErrorf(err)
}

// cliContext is kong's bind target, carrying the --frozen flag down to
// every Run method without each command re-declaring it.
type cliContext struct {
	frozen bool
}

// buildDeps wires one engine.Deps per invocation (spec.md §9: no
// process-wide singleton), rooted at the governing project/workspace
// directory the context router locates from the current directory.
func buildDeps(cctx *cliContext) (*engine.Deps, *router.Target, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	target, err := router.Locate(cwd, cctx.frozen)
	if err != nil {
		return nil, nil, err
	}

	resolved, err := pxconfig.Resolve()
	if err != nil {
		return nil, nil, err
	}

	s, err := store.Open(target.ProjectRoot)
	if err != nil {
		return nil, nil, err
	}

	cacheDir, err := pxhome.CacheDir()
	if err != nil {
		return nil, nil, err
	}

	client, err := resolverapi.NewIndexClient(resolved.DefaultIndex, nil)
	if err != nil {
		return nil, nil, err
	}

	deps, err := engine.NewDeps(s, newIndexSource(client), cacheDir, target.Frozen)
	if err != nil {
		return nil, nil, err
	}
	if resolved.LockTimeoutMs > 0 {
		deps.LockTimeout = time.Duration(resolved.LockTimeoutMs) * time.Millisecond
	}

	// A workspace-governed invocation keeps Store rooted at the member
	// that was actually invoked (it alone owns that member's M) and
	// adds a second store rooted at the workspace for WM/WL/WE.
	if target.Governance == router.GovernanceWorkspace && target.WorkspaceRoot != "" {
		if target.WorkspaceRoot == target.ProjectRoot {
			deps.WorkspaceStore = s
		} else {
			ws, err := store.Open(target.WorkspaceRoot)
			if err != nil {
				return nil, nil, err
			}
			deps.WorkspaceStore = ws
		}
	}

	return deps, target, nil
}

// isInteractive reports whether progress output should be shown;
// redirected stdout (CI logs, pipes) gets plain sequential output
// instead.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type InitCmd struct {
	Name           string `arg:"" optional:"" help:"Project name (default: current directory name)"`
	RequiresPython string `long:"requires-python" help:"Minimum Python constraint, e.g. >=3.11"`
}

func (c *InitCmd) Run(cctx *cliContext) error {
	deps, target, err := buildDeps(cctx)
	if err != nil {
		return err
	}
	name := c.Name
	if name == "" {
		name = filepath.Base(target.ProjectRoot)
	}
	return deps.Init(context.Background(), engine.InitOptions{Name: name, RequiresPython: c.RequiresPython})
}

type AddCmd struct {
	Packages []string `arg:"" help:"Requirement strings, e.g. httpx>=0.27"`
}

func (c *AddCmd) Run(cctx *cliContext) error {
	deps, _, err := buildDeps(cctx)
	if err != nil {
		return err
	}
	return deps.Add(context.Background(), c.Packages)
}

type RemoveCmd struct {
	Packages []string `arg:"" help:"Package names to remove"`
}

func (c *RemoveCmd) Run(cctx *cliContext) error {
	deps, _, err := buildDeps(cctx)
	if err != nil {
		return err
	}
	return deps.Remove(context.Background(), c.Packages)
}

type SyncCmd struct{}

func (c *SyncCmd) Run(cctx *cliContext) error {
	deps, _, err := buildDeps(cctx)
	if err != nil {
		return err
	}
	if isInteractive() {
		fmt.Fprintln(os.Stderr, "syncing...")
	}
	return deps.Sync(context.Background())
}

type UpdateCmd struct {
	Packages []string `arg:"" optional:"" help:"Scope the upgrade to these packages (default: all)"`
}

func (c *UpdateCmd) Run(cctx *cliContext) error {
	deps, _, err := buildDeps(cctx)
	if err != nil {
		return err
	}
	return deps.Update(context.Background(), c.Packages)
}

type RunCmd struct {
	Target string   `arg:"" help:"Script name, file path, or executable"`
	Args   []string `arg:"" optional:"" help:"Arguments passed through to the target"`
}

func (c *RunCmd) Run(cctx *cliContext) error {
	deps, _, err := buildDeps(cctx)
	if err != nil {
		return err
	}
	return deps.Run(context.Background(), engine.RunOptions{
		Target: c.Target,
		Args:   c.Args,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
}

type TestCmd struct {
	Args []string `arg:"" optional:"" help:"Arguments passed through to the test target"`
}

func (c *TestCmd) Run(cctx *cliContext) error {
	deps, _, err := buildDeps(cctx)
	if err != nil {
		return err
	}
	return deps.Run(context.Background(), engine.RunOptions{
		Target: "test",
		Args:   c.Args,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
}

type StatusCmd struct {
	JSON bool `long:"json" help:"Emit machine-readable JSON"`
}

func (c *StatusCmd) Run(cctx *cliContext) error {
	deps, _, err := buildDeps(cctx)
	if err != nil {
		return err
	}
	report, err := deps.Status()
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(report)
	}
	fmt.Println(report.State.String())
	for _, reason := range report.DriftReasons {
		fmt.Println("  drift:", reason)
	}
	return nil
}

type WhyCmd struct {
	Package string `arg:"" help:"Package name"`
}

func (c *WhyCmd) Run(cctx *cliContext) error {
	deps, _, err := buildDeps(cctx)
	if err != nil {
		return err
	}
	report, err := deps.Why(c.Package)
	if err != nil {
		return err
	}
	return printJSON(report)
}

type MigrateCmd struct {
	Apply bool   `long:"apply" help:"Write the migration instead of only proposing it"`
	From  string `long:"from" help:"Disambiguate the legacy source: requirements.txt, pipfile, or poetry"`
}

func (c *MigrateCmd) Run(cctx *cliContext) error {
	deps, _, err := buildDeps(cctx)
	if err != nil {
		return err
	}
	plan, err := deps.Migrate(context.Background(), engine.MigrateOptions{Apply: c.Apply, From: c.From})
	if err != nil {
		return err
	}
	return printJSON(plan)
}

type PythonCmd struct {
	Use PythonUseCmd `cmd:"" help:"Pin the project to an interpreter satisfying a constraint"`
}

type PythonUseCmd struct {
	Constraint string `arg:"" help:"Version constraint, e.g. >=3.12"`
}

func (c *PythonUseCmd) Run(cctx *cliContext) error {
	deps, _, err := buildDeps(cctx)
	if err != nil {
		return err
	}
	return deps.PythonUse(context.Background(), c.Constraint)
}

type ServeCmd struct {
	Addr string `long:"addr" default:"stdio" help:"stdio, or host:port for a streamable HTTP listener"`
}

func (c *ServeCmd) Run(cctx *cliContext) error {
	deps, _, err := buildDeps(cctx)
	if err != nil {
		return err
	}
	return runMCPServer(context.Background(), deps, c.Addr)
}
