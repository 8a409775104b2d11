package source

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tcm-go/internal/catalog"
	"tcm-go/internal/config"
)

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("creating zip: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip Create(%q) error = %v", name, err)
		}
		if strings.HasSuffix(name, "/") {
			continue
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip Write error = %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	return p
}

func TestArchiveSource_Walk(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{
			name: "single wrapping folder is stripped",
			files: map[string]string{
				"Training Export/" + typeDir + "/Guide.pdf":      "pdf",
				"Training Export/" + typeDir + "/links.txt":      "https://a.example/x\n",
				"__MACOSX/Training Export/._Guide.pdf":           "junk",
				"Training Export/" + typeDir + "/Course A/a.pdf": "a",
			},
		},
		{
			name: "content at the archive root",
			files: map[string]string{
				typeDir + "/Guide.pdf":      "pdf",
				typeDir + "/links.txt":      "https://a.example/x\n",
				typeDir + "/Course A/a.pdf": "a",
				"HR/placeholder.txt":        "",
			},
		},
	}

	want := []catalog.Candidate{
		{Type: catalog.TypeFolder, Path: typeDir + "/Course A", ContentsCount: 1},
		{Type: catalog.TypeFile, Path: typeDir + "/Guide.pdf"},
		{Type: catalog.TypeLink, Path: typeDir + "/links.txt", URL: "https://a.example/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewArchiveSource(writeZip(t, tt.files), defaultLayout(), nil)
			if err != nil {
				t.Fatalf("NewArchiveSource() error = %v", err)
			}
			defer src.Close()

			if src.Kind() != KindArchive {
				t.Errorf("Kind() = %q, want %q", src.Kind(), KindArchive)
			}

			got, err := collect(t, src)
			if err != nil {
				t.Fatalf("Walk() error = %v", err)
			}
			if diff := cmp.Diff(want, got.candidates); diff != "" {
				t.Errorf("candidates mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewArchiveSource_NotAZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "export.zip")
	if err := os.WriteFile(p, []byte("plain text"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if _, err := NewArchiveSource(p, defaultLayout(), nil); err == nil {
		t.Fatal("NewArchiveSource() expected error for invalid zip")
	}
}

func TestDirectorySource(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, filepath.FromSlash(typeDir))
	if err := os.MkdirAll(filepath.Join(dir, "Course A"), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	for name, content := range map[string]string{
		"Guide.pdf":        "pdf",
		"Thumbs.db":        "junk",
		"Course A/one.pdf": "1",
		"Course A/two.pdf": "2",
	} {
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	src, err := NewDirectorySource(root, defaultLayout(), nil)
	if err != nil {
		t.Fatalf("NewDirectorySource() error = %v", err)
	}
	if src.Locator() != root {
		t.Errorf("Locator() = %q, want %q", src.Locator(), root)
	}

	got, err := collect(t, src)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	want := []catalog.Candidate{
		{Type: catalog.TypeFolder, Path: typeDir + "/Course A", ContentsCount: 2},
		{Type: catalog.TypeFile, Path: typeDir + "/Guide.pdf"},
	}
	if diff := cmp.Diff(want, got.candidates); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}

	t.Run("rejects a file", func(t *testing.T) {
		if _, err := NewDirectorySource(filepath.Join(dir, "Guide.pdf"), defaultLayout(), nil); err == nil {
			t.Fatal("NewDirectorySource() expected error for a file")
		}
	})

	t.Run("rejects a missing path", func(t *testing.T) {
		if _, err := NewDirectorySource(filepath.Join(root, "missing"), defaultLayout(), nil); err == nil {
			t.Fatal("NewDirectorySource() expected error for a missing path")
		}
	})
}

func TestOpener_Open(t *testing.T) {
	ctx := context.Background()
	api := newFakeBucket(t)
	opener := NewOpener(config.DefaultLayout(), config.S3Config{}).WithObjectAPI(api)

	tests := []struct {
		name     string
		locator  string
		wantKind string
		wantErr  bool
	}{
		{name: "s3 prefix", locator: "s3://training/catalog", wantKind: KindS3},
		{name: "archive", locator: writeZip(t, map[string]string{typeDir + "/a.pdf": "a"}), wantKind: KindArchive},
		{name: "directory", locator: t.TempDir(), wantKind: KindDirectory},
		{name: "empty", locator: "", wantErr: true},
		{name: "missing directory", locator: filepath.Join(t.TempDir(), "nope"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := opener.Open(ctx, tt.locator)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if src != nil {
					t.Errorf("Open() source = %v, want nil on error", src)
				}
				return
			}
			defer src.Close()
			if src.Kind() != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", src.Kind(), tt.wantKind)
			}
		})
	}
}
