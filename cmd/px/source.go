package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pxtool/px/internal/lock"
	"github.com/pxtool/px/internal/resolverapi"
)

// indexSource implements artifactstore.Source against a real PEP 691
// index: it looks up the named project's file listing and downloads
// whichever file's filename contains the locked version string. This
// is a best-effort match, not a PEP 440 filename parser — picking the
// exact wheel for the current platform/ABI is the out-of-scope
// resolver's job (spec.md §1), not the artifact store's.
type indexSource struct {
	client *resolverapi.IndexClient
}

func newIndexSource(client *resolverapi.IndexClient) *indexSource {
	return &indexSource{client: client}
}

func (s *indexSource) Open(ctx context.Context, node lock.LockedNode) (io.ReadCloser, error) {
	versions, err := s.client.Versions(ctx, node.Name)
	if err != nil {
		return nil, err
	}

	var fileURL string
	for _, f := range versions.Files {
		if containsString(f.Filename, node.Version) {
			fileURL = f.URL
			break
		}
	}
	if fileURL == "" {
		return nil, fmt.Errorf("no distributable file for %s==%s on index", node.Name, node.Version)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", fileURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("downloading %s: server returned %s", fileURL, resp.Status)
	}
	return resp.Body, nil
}

func containsString(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
