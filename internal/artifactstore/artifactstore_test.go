package artifactstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/pxtool/px/internal/lock"
)

type fakeSource struct {
	opens int
}

func (f *fakeSource) Open(ctx context.Context, node lock.LockedNode) (io.ReadCloser, error) {
	f.opens++
	return io.NopCloser(strings.NewReader(fmt.Sprintf("content-of-%s-%s", node.Name, node.Version))), nil
}

func TestMaterializeInstallsEveryNode(t *testing.T) {
	cacheDir := t.TempDir()
	destDir := t.TempDir()
	src := &fakeSource{}

	s, err := Open(cacheDir, src)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	l := lock.New("fp")
	l.Nodes = []lock.LockedNode{
		{Name: "anyio", Version: "4.0", Source: "pypi"},
		{Name: "requests", Version: "2.31", Source: "pypi"},
	}

	if err := s.Materialize(destDir, l); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if src.opens != 2 {
		t.Errorf("source opened %d times, want 2", src.opens)
	}
}

func TestFetchWithoutHashMissesCacheOnEveryCall(t *testing.T) {
	cacheDir := t.TempDir()
	src := &fakeSource{}
	s, err := Open(cacheDir, src)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	node := lock.LockedNode{Name: "rich", Version: "13.7.1", Source: "pypi", Hashes: []string{}}

	if _, err := s.Fetch(context.Background(), node); err != nil {
		t.Fatalf("first Fetch() error = %v", err)
	}
	if _, err := s.Fetch(context.Background(), node); err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	// Without a content hash recorded on the node, every fetch currently
	// misses the cache by design (there is nothing yet to address it
	// by); this exercises that path rather than asserting a single call.
	if src.opens != 2 {
		t.Errorf("source opened %d times, want 2 (no hash to cache by)", src.opens)
	}
}
