package source

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"tcm-go/internal/catalog"
	"tcm-go/internal/config"
)

// Layout controls which entries of a content tree become candidates.
type Layout struct {
	TypeDepth           int
	LinkFile            string
	OpaqueUnits         bool
	Placeholders        bool
	CountArchiveEntries bool
}

// LayoutFromConfig converts the config section, filling in defaults.
func LayoutFromConfig(cfg config.LayoutConfig) Layout {
	l := Layout{
		TypeDepth:           cfg.TypeDepth,
		LinkFile:            cfg.LinkFile,
		OpaqueUnits:         cfg.OpaqueUnits,
		Placeholders:        cfg.Placeholders,
		CountArchiveEntries: cfg.CountArchiveEntries,
	}
	if l.TypeDepth <= 0 {
		l.TypeDepth = config.DefaultLayout().TypeDepth
	}
	if l.LinkFile == "" {
		l.LinkFile = config.DefaultLayout().LinkFile
	}
	return l
}

// Walker produces candidates from any fs.FS. Directories shallower than or
// at TypeDepth are categorization; content lives below them.
type Walker struct {
	fsys   fs.FS
	layout Layout
	ignore *IgnoreMatcher
}

// NewWalker creates a Walker over fsys.
func NewWalker(fsys fs.FS, layout Layout, ignore *IgnoreMatcher) *Walker {
	if ignore == nil {
		ignore = NewIgnoreMatcher(nil)
	}
	return &Walker{fsys: fsys, layout: layout, ignore: ignore}
}

// Walk visits the tree in lexical order. Only a failure to read the root, a
// cancelled context or an error from visit stops the walk.
func (w *Walker) Walk(ctx context.Context, visit func(catalog.Candidate) error, warn func(catalog.EntryWarning)) error {
	entries, err := fs.ReadDir(w.fsys, ".")
	if err != nil {
		return fmt.Errorf("reading source root: %w", err)
	}
	return w.walkEntries(ctx, ".", 0, entries, visit, warn)
}

// walkEntries handles the entries of dir, which sits at depth segments below the root.
func (w *Walker) walkEntries(ctx context.Context, dir string, depth int, entries []fs.DirEntry, visit func(catalog.Candidate) error, warn func(catalog.EntryWarning)) error {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel := path.Join(dir, e.Name())
		if w.ignore.Match(rel) {
			continue
		}

		var err error
		switch {
		case e.IsDir():
			err = w.visitDir(ctx, rel, depth+1, visit, warn)
		case e.Type().IsRegular():
			err = w.visitFile(rel, depth, visit, warn)
		default:
			warn(catalog.EntryWarning{Path: rel, Err: fmt.Errorf("not a regular file (%s)", e.Type())})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) visitDir(ctx context.Context, rel string, depth int, visit func(catalog.Candidate) error, warn func(catalog.EntryWarning)) error {
	if depth <= w.layout.TypeDepth {
		if w.layout.Placeholders {
			if err := visit(catalog.Candidate{Type: catalog.TypeFolder, Path: rel, IsPlaceholder: true}); err != nil {
				return err
			}
		}
		return w.descend(ctx, rel, depth, visit, warn)
	}

	if depth == w.layout.TypeDepth+1 && w.layout.OpaqueUnits {
		n, err := w.countFiles(rel)
		if err != nil {
			warn(catalog.EntryWarning{Path: rel, Err: err})
			return nil
		}
		return visit(catalog.Candidate{Type: catalog.TypeFolder, Path: rel, ContentsCount: n})
	}

	return w.descend(ctx, rel, depth, visit, warn)
}

func (w *Walker) descend(ctx context.Context, rel string, depth int, visit func(catalog.Candidate) error, warn func(catalog.EntryWarning)) error {
	entries, err := fs.ReadDir(w.fsys, rel)
	if err != nil {
		warn(catalog.EntryWarning{Path: rel, Err: err})
		return nil
	}
	return w.walkEntries(ctx, rel, depth, entries, visit, warn)
}

// visitFile handles a file whose parent directory sits at parentDepth.
func (w *Walker) visitFile(rel string, parentDepth int, visit func(catalog.Candidate) error, warn func(catalog.EntryWarning)) error {
	if parentDepth < w.layout.TypeDepth {
		return nil
	}

	if strings.EqualFold(path.Base(rel), w.layout.LinkFile) {
		return w.visitLinkFile(rel, parentDepth, visit, warn)
	}

	c := catalog.Candidate{Type: catalog.TypeFile, Path: rel}
	if w.layout.CountArchiveEntries && strings.EqualFold(path.Ext(rel), ".zip") {
		n, err := w.countArchiveEntries(rel)
		if err != nil {
			warn(catalog.EntryWarning{Path: rel, Err: fmt.Errorf("counting archive entries: %w", err)})
		}
		c.ContentsCount = n
	}
	return visit(c)
}

// visitLinkFile turns each URL of a link file into a link candidate. Only
// link files directly inside a training-type folder are read when units are
// opaque.
func (w *Walker) visitLinkFile(rel string, parentDepth int, visit func(catalog.Candidate) error, warn func(catalog.EntryWarning)) error {
	if w.layout.OpaqueUnits && parentDepth != w.layout.TypeDepth {
		return nil
	}

	content, err := fs.ReadFile(w.fsys, rel)
	if err != nil {
		warn(catalog.EntryWarning{Path: rel, Err: err})
		return nil
	}

	for _, url := range catalog.ExtractLinks(content) {
		if err := visit(catalog.Candidate{Type: catalog.TypeLink, Path: rel, URL: url}); err != nil {
			return err
		}
	}
	return nil
}

// countFiles counts the non-ignored regular files below dir.
func (w *Walker) countFiles(dir string) (int, error) {
	n := 0
	err := fs.WalkDir(w.fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != dir && w.ignore.Match(p) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// countArchiveEntries returns the number of file entries in the zip at rel.
func (w *Walker) countArchiveEntries(rel string) (int, error) {
	zr, err := w.openZip(rel)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			n++
		}
	}
	return n, nil
}

func (w *Walker) openZip(rel string) (*zip.Reader, error) {
	f, err := w.fsys.Open(rel)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if ra, ok := f.(io.ReaderAt); ok {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		return zip.NewReader(ra, info.Size())
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}
