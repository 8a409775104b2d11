package source

import (
	"archive/zip"
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"tcm-go/internal/catalog"
)

// KindArchive identifies a source read from a .zip export of a content tree.
const KindArchive = "archive"

// ArchiveSource reads a content tree packed in a zip file. Exports commonly
// wrap everything in a single top-level folder; that folder is stripped.
type ArchiveSource struct {
	path   string
	reader *zip.ReadCloser
	walker *Walker
}

// NewArchiveSource opens the zip file at p.
func NewArchiveSource(p string, layout Layout, ignore *IgnoreMatcher) (*ArchiveSource, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("resolving archive path: %w", err)
	}

	rc, err := zip.OpenReader(abs)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	if ignore == nil {
		ignore = NewIgnoreMatcher(nil)
	}

	root, err := contentRoot(rc, ignore)
	if err != nil {
		rc.Close()
		return nil, err
	}

	return &ArchiveSource{
		path:   abs,
		reader: rc,
		walker: NewWalker(root, layout, ignore),
	}, nil
}

// contentRoot returns the sub-tree holding department folders.
func contentRoot(fsys fs.FS, ignore *IgnoreMatcher) (fs.FS, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading archive root: %w", err)
	}

	var kept []fs.DirEntry
	for _, e := range entries {
		if !ignore.Match(e.Name()) {
			kept = append(kept, e)
		}
	}
	if len(kept) != 1 || !kept[0].IsDir() {
		return fsys, nil
	}

	sub, err := fs.Sub(fsys, kept[0].Name())
	if err != nil {
		return nil, fmt.Errorf("opening archive folder %s: %w", kept[0].Name(), err)
	}
	return sub, nil
}

// isArchive reports whether locator names a zip file.
func isArchive(locator string) bool {
	return strings.EqualFold(filepath.Ext(locator), ".zip")
}

func (s *ArchiveSource) Kind() string    { return KindArchive }
func (s *ArchiveSource) Locator() string { return s.path }

func (s *ArchiveSource) Walk(ctx context.Context, visit func(catalog.Candidate) error, warn func(catalog.EntryWarning)) error {
	return s.walker.Walk(ctx, visit, warn)
}

func (s *ArchiveSource) Close() error {
	return s.reader.Close()
}

var _ catalog.Source = (*ArchiveSource)(nil)
