package source

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"tcm-go/internal/catalog"
	"tcm-go/internal/config"
)

const typeDir = "Sales/Enablement/01 Onboarding/Self Directed"

func defaultLayout() Layout {
	return Layout{TypeDepth: 4, LinkFile: "links.txt", OpaqueUnits: true, CountArchiveEntries: true}
}

func zipBytes(t *testing.T, names ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip Create(%q) error = %v", name, err)
		}
		if strings.HasSuffix(name, "/") {
			continue
		}
		if _, err := w.Write([]byte("x")); err != nil {
			t.Fatalf("zip Write error = %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	return buf.Bytes()
}

func catalogTree(t *testing.T) fstest.MapFS {
	return fstest.MapFS{
		"Sales/readme.pdf":                  {Data: []byte("above the type level")},
		typeDir + "/Guide.pdf":              {Data: []byte("pdf")},
		typeDir + "/desktop.ini":            {Data: []byte("junk")},
		typeDir + "/links.txt":              {Data: []byte("https://a.example/x\n\nnot a link\nhttps://b.example/y\n")},
		typeDir + "/Course A/a.pdf":         {Data: []byte("a")},
		typeDir + "/Course A/b.pdf":         {Data: []byte("b")},
		typeDir + "/Course A/.DS_Store":     {Data: []byte("junk")},
		typeDir + "/Course A/sub/links.txt": {Data: []byte("https://nested.example/\n")},
		typeDir + "/Kit.zip":                {Data: zipBytes(t, "docs/", "docs/one.pdf", "two.pdf")},
	}
}

type collected struct {
	candidates []catalog.Candidate
	warnings   []catalog.EntryWarning
}

func walk(t *testing.T, w *Walker) (*collected, error) {
	t.Helper()
	c := &collected{}
	err := w.Walk(context.Background(),
		func(cand catalog.Candidate) error {
			c.candidates = append(c.candidates, cand)
			return nil
		},
		func(w catalog.EntryWarning) {
			c.warnings = append(c.warnings, w)
		},
	)
	return c, err
}

func TestWalker_Walk_DefaultLayout(t *testing.T) {
	got, err := walk(t, NewWalker(catalogTree(t), defaultLayout(), nil))
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := []catalog.Candidate{
		{Type: catalog.TypeFolder, Path: typeDir + "/Course A", ContentsCount: 3},
		{Type: catalog.TypeFile, Path: typeDir + "/Guide.pdf"},
		{Type: catalog.TypeFile, Path: typeDir + "/Kit.zip", ContentsCount: 2},
		{Type: catalog.TypeLink, Path: typeDir + "/links.txt", URL: "https://a.example/x"},
		{Type: catalog.TypeLink, Path: typeDir + "/links.txt", URL: "https://b.example/y"},
	}
	if diff := cmp.Diff(want, got.candidates); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}
	if len(got.warnings) != 0 {
		t.Errorf("warnings = %v, want none", got.warnings)
	}
}

func TestWalker_Walk_Placeholders(t *testing.T) {
	layout := defaultLayout()
	layout.Placeholders = true

	got, err := walk(t, NewWalker(catalogTree(t), layout, nil))
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	var placeholders []string
	for _, c := range got.candidates {
		if c.IsPlaceholder {
			placeholders = append(placeholders, c.Path)
		}
	}
	want := []string{
		"Sales",
		"Sales/Enablement",
		"Sales/Enablement/01 Onboarding",
		typeDir,
	}
	if diff := cmp.Diff(want, placeholders); diff != "" {
		t.Errorf("placeholders mismatch (-want +got):\n%s", diff)
	}
}

func TestWalker_Walk_NonOpaque(t *testing.T) {
	layout := defaultLayout()
	layout.OpaqueUnits = false
	layout.CountArchiveEntries = false

	got, err := walk(t, NewWalker(catalogTree(t), layout, nil))
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := []catalog.Candidate{
		{Type: catalog.TypeFile, Path: typeDir + "/Course A/a.pdf"},
		{Type: catalog.TypeFile, Path: typeDir + "/Course A/b.pdf"},
		{Type: catalog.TypeLink, Path: typeDir + "/Course A/sub/links.txt", URL: "https://nested.example/"},
		{Type: catalog.TypeFile, Path: typeDir + "/Guide.pdf"},
		{Type: catalog.TypeFile, Path: typeDir + "/Kit.zip"},
		{Type: catalog.TypeLink, Path: typeDir + "/links.txt", URL: "https://a.example/x"},
		{Type: catalog.TypeLink, Path: typeDir + "/links.txt", URL: "https://b.example/y"},
	}
	if diff := cmp.Diff(want, got.candidates); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestWalker_Walk_LinkFileNameIsCaseInsensitive(t *testing.T) {
	fsys := fstest.MapFS{
		typeDir + "/LINKS.TXT": {Data: []byte("https://a.example/\n")},
	}

	got, err := walk(t, NewWalker(fsys, defaultLayout(), nil))
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	if len(got.candidates) != 1 || got.candidates[0].Type != catalog.TypeLink {
		t.Errorf("candidates = %+v, want one link", got.candidates)
	}
}

func TestWalker_Walk_BrokenArchiveWarns(t *testing.T) {
	fsys := fstest.MapFS{
		typeDir + "/Broken.zip": {Data: []byte("not a zip")},
	}

	got, err := walk(t, NewWalker(fsys, defaultLayout(), nil))
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := []catalog.Candidate{{Type: catalog.TypeFile, Path: typeDir + "/Broken.zip"}}
	if diff := cmp.Diff(want, got.candidates); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}
	if len(got.warnings) != 1 || got.warnings[0].Path != typeDir+"/Broken.zip" {
		t.Errorf("warnings = %v, want one for Broken.zip", got.warnings)
	}
}

func TestWalker_Walk_ExtraIgnorePatterns(t *testing.T) {
	w := NewWalker(catalogTree(t), defaultLayout(), NewIgnoreMatcher([]string{"*.zip", "Course A"}))

	got, err := walk(t, w)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	for _, c := range got.candidates {
		if c.Path == typeDir+"/Kit.zip" || c.Path == typeDir+"/Course A" {
			t.Errorf("ignored entry %q was emitted", c.Path)
		}
	}
	if len(got.candidates) != 3 {
		t.Errorf("len(candidates) = %d, want 3", len(got.candidates))
	}
}

// failingFS fails ReadDir for one directory.
type failingFS struct {
	fstest.MapFS
	failDir string
}

func (f failingFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if name == f.failDir {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrPermission}
	}
	return f.MapFS.ReadDir(name)
}

func TestWalker_Walk_UnreadableDirectory(t *testing.T) {
	t.Run("subdirectory is a warning", func(t *testing.T) {
		fsys := failingFS{
			MapFS: fstest.MapFS{
				typeDir + "/Guide.pdf":                       {Data: []byte("pdf")},
				"Sales/Locked/01 Onboarding/Video/Intro.mp4": {Data: []byte("mp4")},
			},
			failDir: "Sales/Locked",
		}

		got, err := walk(t, NewWalker(fsys, defaultLayout(), nil))
		if err != nil {
			t.Fatalf("Walk() error = %v", err)
		}
		if len(got.candidates) != 1 {
			t.Errorf("len(candidates) = %d, want 1", len(got.candidates))
		}
		if len(got.warnings) != 1 || got.warnings[0].Path != "Sales/Locked" {
			t.Errorf("warnings = %v, want one for Sales/Locked", got.warnings)
		}
	})

	t.Run("root is fatal", func(t *testing.T) {
		fsys := failingFS{MapFS: fstest.MapFS{}, failDir: "."}
		if _, err := walk(t, NewWalker(fsys, defaultLayout(), nil)); !errors.Is(err, fs.ErrPermission) {
			t.Fatalf("Walk() error = %v, want ErrPermission", err)
		}
	})
}

func TestWalker_Walk_StopsOnVisitError(t *testing.T) {
	boom := errors.New("store unavailable")
	calls := 0

	err := NewWalker(catalogTree(t), defaultLayout(), nil).Walk(context.Background(),
		func(catalog.Candidate) error {
			calls++
			return boom
		},
		func(catalog.EntryWarning) {},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("Walk() error = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("visit called %d times, want 1", calls)
	}
}

func TestWalker_Walk_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWalker(catalogTree(t), defaultLayout(), nil).Walk(ctx,
		func(catalog.Candidate) error { return nil },
		func(catalog.EntryWarning) {},
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Walk() error = %v, want context.Canceled", err)
	}
}

func TestLayoutFromConfig_FillsDefaults(t *testing.T) {
	l := LayoutFromConfig(config.LayoutConfig{})
	if l.TypeDepth != 4 {
		t.Errorf("TypeDepth = %d, want 4", l.TypeDepth)
	}
	if l.LinkFile != "links.txt" {
		t.Errorf("LinkFile = %q, want links.txt", l.LinkFile)
	}
}
