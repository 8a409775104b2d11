package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"testing/fstest"

	"tcm-go/internal/catalog"
	"tcm-go/internal/source"
)

// TypeDir is a training-type folder under the default four-level layout.
const TypeDir = "Sales/Enablement/01 Onboarding/Self Directed"

// Tree builds an in-memory content tree from path -> content pairs.
func Tree(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for p, content := range files {
		fsys[p] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

// StubOpener serves in-memory trees by locator and walks them with the
// production walker under the default layout.
type StubOpener struct {
	mu      sync.Mutex
	trees   map[string]fs.FS
	failing map[string]error
	layout  source.Layout

	// BeforeWalk, if set, runs at the start of every walk.
	BeforeWalk func()

	// BeforeVisit, if set, runs before each candidate is handed to the
	// service.
	BeforeVisit func(catalog.Candidate)
}

func NewStubOpener() *StubOpener {
	return &StubOpener{
		trees:   make(map[string]fs.FS),
		failing: make(map[string]error),
		layout: source.Layout{
			TypeDepth:           4,
			LinkFile:            "links.txt",
			OpaqueUnits:         true,
			CountArchiveEntries: true,
		},
	}
}

// Set registers (or replaces) the tree served at locator.
func (o *StubOpener) Set(locator string, fsys fs.FS) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trees[locator] = fsys
	delete(o.failing, locator)
}

// FailWalk makes walks of locator fail with err after visiting the tree.
func (o *StubOpener) FailWalk(locator string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failing[locator] = err
}

func (o *StubOpener) Open(ctx context.Context, locator string) (catalog.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	fsys, ok := o.trees[locator]
	if !ok {
		return nil, fmt.Errorf("no such source: %s", locator)
	}
	return &stubSource{
		locator:     locator,
		walker:      source.NewWalker(fsys, o.layout, nil),
		failWith:    o.failing[locator],
		beforeWalk:  o.BeforeWalk,
		beforeVisit: o.BeforeVisit,
	}, nil
}

type stubSource struct {
	locator     string
	walker      *source.Walker
	failWith    error
	beforeWalk  func()
	beforeVisit func(catalog.Candidate)
}

func (s *stubSource) Kind() string    { return "memory" }
func (s *stubSource) Locator() string { return s.locator }
func (s *stubSource) Close() error    { return nil }

func (s *stubSource) Walk(ctx context.Context, visit func(catalog.Candidate) error, warn func(catalog.EntryWarning)) error {
	if s.beforeWalk != nil {
		s.beforeWalk()
	}
	if s.beforeVisit != nil {
		next := visit
		visit = func(c catalog.Candidate) error {
			s.beforeVisit(c)
			return next(c)
		}
	}
	if err := s.walker.Walk(ctx, visit, warn); err != nil {
		return err
	}
	return s.failWith
}

var _ catalog.SourceOpener = (*StubOpener)(nil)
