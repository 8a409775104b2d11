package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tcm-go/internal/catalog"
)

// KindDirectory identifies a source read from a local directory tree.
const KindDirectory = "directory"

// DirectorySource reads a content tree rooted at a local directory.
type DirectorySource struct {
	root   string
	walker *Walker
}

// NewDirectorySource creates a source for the directory at root.
func NewDirectorySource(root string, layout Layout, ignore *IgnoreMatcher) (*DirectorySource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving source path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("opening source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path is not a directory: %s", abs)
	}

	return &DirectorySource{
		root:   abs,
		walker: NewWalker(os.DirFS(abs), layout, ignore),
	}, nil
}

func (s *DirectorySource) Kind() string    { return KindDirectory }
func (s *DirectorySource) Locator() string { return s.root }

func (s *DirectorySource) Walk(ctx context.Context, visit func(catalog.Candidate) error, warn func(catalog.EntryWarning)) error {
	return s.walker.Walk(ctx, visit, warn)
}

func (s *DirectorySource) Close() error { return nil }

var _ catalog.Source = (*DirectorySource)(nil)
