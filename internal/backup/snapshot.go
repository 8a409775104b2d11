package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"tcm-go/internal/catalog"
	"tcm-go/internal/database"
)

// Database is the part of the catalog database a snapshot needs.
type Database interface {
	// BackupTo writes a consistent copy of the database to destPath.
	BackupTo(destPath string) error
}

// Snapshotter copies the catalog database into a Store, optionally sealing
// the copy with an age key pair, and restores copies from it.
type Snapshotter struct {
	db     Database
	store  Store
	keys   *KeyPair
	clock  catalog.Clock
	logger catalog.Logger
}

// NewSnapshotter creates a Snapshotter. keys may be nil to store snapshots
// unencrypted.
func NewSnapshotter(db Database, store Store, keys *KeyPair, clock catalog.Clock, logger catalog.Logger) *Snapshotter {
	return &Snapshotter{db: db, store: store, keys: keys, clock: clock, logger: logger}
}

// Snapshot writes the current database to the store and returns the stored
// snapshot.
func (s *Snapshotter) Snapshot(ctx context.Context) (*Snapshot, error) {
	tmpDir, err := os.MkdirTemp("", "tcm-snapshot-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	plainPath := filepath.Join(tmpDir, "catalog.db")
	if err := s.db.BackupTo(plainPath); err != nil {
		return nil, err
	}

	uploadPath := plainPath
	if s.keys != nil {
		uploadPath = plainPath + encryptedExt
		if err := s.sealFile(plainPath, uploadPath); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(uploadPath)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	now := s.clock.Now()
	snap := &Snapshot{
		Name:      snapshotName(now, s.keys != nil),
		Size:      info.Size(),
		CreatedAt: now.UTC(),
		Encrypted: s.keys != nil,
	}
	if err := s.store.Put(ctx, snap.Name, f, snap.Size); err != nil {
		return nil, fmt.Errorf("storing snapshot: %w", err)
	}

	s.logger.Info("snapshot stored", "name", snap.Name, "size", snap.Size, "encrypted", snap.Encrypted)
	return snap, nil
}

func (s *Snapshotter) sealFile(src, dst string) error {
	recipient, err := s.keys.Recipient()
	if err != nil {
		return fmt.Errorf("loading public key: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating sealed snapshot: %w", err)
	}
	if err := seal(out, in, recipient); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// List returns the stored snapshots, newest first.
func (s *Snapshotter) List(ctx context.Context) ([]Snapshot, error) {
	return s.store.List(ctx)
}

// Restore writes snapshot name to destPath, which must not exist, and
// verifies that the result is a catalog database with an up-to-date schema.
// passphrase unlocks the private key for sealed snapshots and is ignored
// otherwise.
func (s *Snapshotter) Restore(ctx context.Context, name, destPath, passphrase string) error {
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("restore target already exists: %s", destPath)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating restore directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(destPath), ".tcm-restore-*")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	fetched := filepath.Join(tmpDir, filepath.Base(name))
	if err := s.fetch(ctx, name, fetched); err != nil {
		return err
	}

	plainPath := fetched
	if strings.HasSuffix(name, encryptedExt) {
		if s.keys == nil {
			return fmt.Errorf("snapshot %s is encrypted but no key pair is configured", name)
		}
		identity, err := s.keys.Unlock(passphrase)
		if err != nil {
			return fmt.Errorf("unlocking private key: %w", err)
		}
		plainPath = filepath.Join(tmpDir, "catalog.db")
		if err := s.unsealFile(fetched, plainPath, identity); err != nil {
			return err
		}
	}

	if err := verify(plainPath); err != nil {
		return fmt.Errorf("snapshot %s is not a usable catalog: %w", name, err)
	}

	if err := os.Rename(plainPath, destPath); err != nil {
		return fmt.Errorf("moving restored database into place: %w", err)
	}
	s.logger.Info("snapshot restored", "name", name, "path", destPath)
	return nil
}

func (s *Snapshotter) fetch(ctx context.Context, name, dst string) error {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating restore file: %w", err)
	}
	if err := s.store.Get(ctx, name, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Snapshotter) unsealFile(src, dst string, identity age.Identity) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening sealed snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating restore file: %w", err)
	}
	if err := unseal(out, in, identity); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// verify opens path and checks its migration state.
func verify(path string) error {
	db, err := database.NewSQLiteDatabase(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.CheckMigrations()
}
