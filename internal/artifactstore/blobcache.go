package artifactstore

import (
	"bytes"
	"fmt"
	"io"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/layout"
)

// blobCacheHandle is px's content-addressed artifact cache, shared
// across every project (spec.md §5 "shared resources"). It reuses
// go-containerregistry's OCI layout shape (oci-layout, index.json,
// blobs/sha256/<hex>) purely for its blob-addressing discipline —
// nothing here is ever pushed to or pulled from a registry.
type blobCacheHandle struct {
	path layout.Path
}

func openBlobCacheHandle(dir string) (*blobCacheHandle, error) {
	if p, err := layout.FromPath(dir); err == nil {
		return &blobCacheHandle{path: p}, nil
	}
	p, err := layout.Write(dir, empty.Index)
	if err != nil {
		return nil, fmt.Errorf("initializing blob cache at %s: %w", dir, err)
	}
	return &blobCacheHandle{path: p}, nil
}

func (c *blobCacheHandle) put(data []byte) (v1.Hash, error) {
	h, _, err := v1.SHA256(bytes.NewReader(data))
	if err != nil {
		return v1.Hash{}, err
	}
	if err := c.path.WriteBlob(h, io.NopCloser(bytes.NewReader(data))); err != nil {
		return v1.Hash{}, fmt.Errorf("writing blob %s: %w", h, err)
	}
	return h, nil
}

func (c *blobCacheHandle) get(h v1.Hash) ([]byte, error) {
	return c.path.Bytes(h)
}
