// Package pxhome resolves px's per-user state directory (~/.px).
package pxhome

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

// EnvOverride, when set, takes priority over the OS home directory —
// used by integration tests and containerized CI runs that don't want
// to touch the invoking user's real home.
const EnvOverride = "PX_HOME"

// Dir returns the root of px's per-user state directory, creating it
// if necessary.
func Dir() (string, error) {
	dir := os.Getenv(EnvOverride)
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".px")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Sub returns a named subdirectory of Dir (e.g. "envs", "cache", "tools",
// "runtimes", "logs", "credentials"), creating the directory tree.
func Sub(parts ...string) (string, error) {
	root, err := Dir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(append([]string{root}, parts...)...)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", err
	}
	return p, nil
}

// EnvsDir is ~/.px/envs, the content-addressed materialized-environment store.
func EnvsDir() (string, error) { return Sub("envs") }

// CacheDir is ~/.px/cache, the content-addressed blob cache.
func CacheDir() (string, error) { return Sub("cache") }

// RuntimesDir is ~/.px/runtimes, discovered/installed Python interpreters.
func RuntimesDir() (string, error) { return Sub("runtimes") }

// ToolsDir is ~/.px/tools, envs for standalone CLI tools (separate
// subsystem from the project state machine, spec.md §3 Ownership).
func ToolsDir() (string, error) { return Sub("tools") }

// CredentialsDir is ~/.px/credentials, the headless/CI vault fallback location.
func CredentialsDir() (string, error) { return Sub("credentials") }
