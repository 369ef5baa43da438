// Package artifactstore is the pure-function boundary onto the
// out-of-scope wheel/sdist download-and-install subsystem (spec.md
// §1). It implements store.Installer against a content-addressed
// cache so the engine can materialize an env without the core needing
// to know anything about PyPI, wheels, or HTTP.
package artifactstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	v1 "github.com/google/go-containerregistry/pkg/v1"

	"github.com/pxtool/px/internal/lock"
)

// Source fetches the raw artifact bytes for one locked node. A real
// implementation talks to a package index over HTTP; px's core only
// depends on this interface, never on an index client directly.
type Source interface {
	Open(ctx context.Context, node lock.LockedNode) (io.ReadCloser, error)
}

// Store fetches artifacts through Source, caching them content-addressed
// under cacheDir, and installs them into materialized env directories.
type Store struct {
	cache  *blobCacheHandle
	source Source
}

// Open opens (initializing if necessary) the artifact store's blob
// cache at cacheDir, backed by source for cache misses.
func Open(cacheDir string, source Source) (*Store, error) {
	c, err := openBlobCacheHandle(cacheDir)
	if err != nil {
		return nil, err
	}
	return &Store{cache: c, source: source}, nil
}

// Fetch returns node's artifact bytes, populating the cache on miss.
func (s *Store) Fetch(ctx context.Context, node lock.LockedNode) ([]byte, error) {
	if h, ok := nodeHash(node); ok {
		if data, err := s.cache.get(h); err == nil {
			return data, nil
		}
	}
	rc, err := s.source.Open(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s: %w", node.Name, node.Version, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s %s: %w", node.Name, node.Version, err)
	}
	if _, err := s.cache.put(data); err != nil {
		return nil, fmt.Errorf("caching %s %s: %w", node.Name, node.Version, err)
	}
	return data, nil
}

// Materialize implements store.Installer: it fetches every node in l
// and writes its raw artifact bytes under destDir/pkgs/. Unpacking a
// wheel into an importable site-packages layout is the downloader
// subsystem's job (out of scope here); px's core only needs the
// artifact set to be present and content-addressed.
func (s *Store) Materialize(destDir string, l *lock.Lock) error {
	pkgsDir := filepath.Join(destDir, "pkgs")
	if err := os.MkdirAll(pkgsDir, 0o755); err != nil {
		return err
	}
	ctx := context.Background()
	for _, node := range l.Nodes {
		data, err := s.Fetch(ctx, node)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%s-%s.artifact", node.Name, node.Version)
		if err := os.WriteFile(filepath.Join(pkgsDir, name), data, 0o644); err != nil {
			return fmt.Errorf("installing %s: %w", name, err)
		}
	}
	return nil
}

func nodeHash(node lock.LockedNode) (v1.Hash, bool) {
	for _, h := range node.Hashes {
		if hash, err := v1.NewHash(h); err == nil {
			return hash, true
		}
	}
	return v1.Hash{}, false
}
