package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemStore keeps snapshots as files in one directory. When keep is
// positive, only the newest keep snapshots survive a Put.
type FileSystemStore struct {
	dir  string
	keep int
}

// NewFileSystemStore creates a store rooted at dir, creating it if needed.
func NewFileSystemStore(dir string, keep int) (*FileSystemStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSystemStore{dir: dir, keep: keep}, nil
}

// Put writes the snapshot atomically (temp file + rename) and then prunes
// old snapshots.
func (s *FileSystemStore) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if err := s.writeFile(filepath.Join(s.dir, filepath.Base(name)), r, size); err != nil {
		return err
	}
	return s.prune(ctx)
}

func (s *FileSystemStore) Get(_ context.Context, name string, w io.Writer) error {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

func (s *FileSystemStore) List(_ context.Context) ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}

	var out []Snapshot
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		snap, ok := parseSnapshotName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		snap.Size = info.Size()
		out = append(out, snap)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *FileSystemStore) ValidateSetup(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("snapshot directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot path is not a directory: %s", s.dir)
	}
	return nil
}

// prune removes the oldest snapshots beyond keep.
func (s *FileSystemStore) prune(ctx context.Context) error {
	if s.keep <= 0 {
		return nil
	}
	snaps, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, old := range snaps[min(s.keep, len(snaps)):] {
		if err := os.Remove(filepath.Join(s.dir, old.Name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing old snapshot %s: %w", old.Name, err)
		}
	}
	return nil
}

// writeFile writes data from r to destPath using a temp file in the same
// directory and a rename.
func (s *FileSystemStore) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// Compile-time check that FileSystemStore implements Store.
var _ Store = (*FileSystemStore)(nil)
