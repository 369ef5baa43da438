// Package pxconfig is px's global, per-user configuration: ~/.px/config.yml
// plus env-var overrides, following the same env > file > default
// precedence chain as the teacher's own runtime config resolution.
package pxconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pxtool/px/internal/pxhome"
)

// FileConfig is the on-disk shape of ~/.px/config.yml.
type FileConfig struct {
	DefaultIndex  string `yaml:"default_index,omitempty"`
	LockTimeoutMs int    `yaml:"lock_timeout_ms,omitempty"`
	Frozen        *bool  `yaml:"frozen,omitempty"`
}

// Resolved is the fully resolved configuration a command runs with.
type Resolved struct {
	DefaultIndex  string
	LockTimeoutMs int
	Frozen        bool
}

const (
	envDefaultIndex  = "PX_INDEX_URL"
	envLockTimeoutMs = "PX_LOCK_TIMEOUT_MS"
	envFrozen        = "PX_FROZEN"

	defaultIndex        = "https://pypi.org/simple"
	defaultLockTimeout  = 10000
)

// Path returns ~/.px/config.yml.
func Path() (string, error) {
	dir, err := pxhome.Dir()
	if err != nil {
		return "", err
	}
	return dir + "/config.yml", nil
}

// Load reads ~/.px/config.yml, returning a zero-value config if missing.
func Load() (*FileConfig, error) {
	path, err := Path()
	if err != nil {
		return &FileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to ~/.px/config.yml.
func Save(cfg *FileConfig) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if _, err := pxhome.Dir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Resolve applies env > file > default precedence, mirroring the
// teacher's own ResolveRuntime.
func Resolve() (*Resolved, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	r := &Resolved{
		DefaultIndex:  resolveString(os.Getenv(envDefaultIndex), cfg.DefaultIndex, defaultIndex),
		LockTimeoutMs: resolveInt(os.Getenv(envLockTimeoutMs), cfg.LockTimeoutMs, defaultLockTimeout),
		Frozen:        resolveBool(os.Getenv(envFrozen), cfg.Frozen, false),
	}
	return r, nil
}

func resolveString(envVal, cfgVal, defaultVal string) string {
	if envVal != "" {
		return envVal
	}
	if cfgVal != "" {
		return cfgVal
	}
	return defaultVal
}

func resolveInt(envVal string, cfgVal, defaultVal int) int {
	if envVal != "" {
		var n int
		if _, err := fmt.Sscanf(envVal, "%d", &n); err == nil {
			return n
		}
	}
	if cfgVal != 0 {
		return cfgVal
	}
	return defaultVal
}

func resolveBool(envVal string, cfgVal *bool, defaultVal bool) bool {
	if envVal != "" {
		return envVal == "true" || envVal == "1"
	}
	if cfgVal != nil {
		return *cfgVal
	}
	return defaultVal
}
