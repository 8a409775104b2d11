package backup

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when a named snapshot does not exist in a store.
var ErrNotFound = errors.New("snapshot not found")

// Store holds database snapshots by name. Names are flat; a store never
// interprets them beyond the listing prefix.
type Store interface {
	// Put stores size bytes read from r under name, replacing any existing
	// snapshot with that name.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Get writes the snapshot called name to w.
	Get(ctx context.Context, name string, w io.Writer) error

	// List returns every stored snapshot, newest first.
	List(ctx context.Context) ([]Snapshot, error)

	// ValidateSetup verifies that the store is reachable and usable.
	ValidateSetup(ctx context.Context) error
}

// Snapshot describes one stored database copy.
type Snapshot struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Encrypted bool      `json:"encrypted"`
}

const (
	namePrefix   = "catalog-"
	nameExt      = ".db"
	encryptedExt = ".age"
	timeLayout   = "20060102T150405.000000000Z"
)

// snapshotName returns the name of a snapshot taken at t. Names sort in
// chronological order.
func snapshotName(t time.Time, encrypted bool) string {
	name := namePrefix + t.UTC().Format(timeLayout) + nameExt
	if encrypted {
		name += encryptedExt
	}
	return name
}

// parseSnapshotName recovers the snapshot fields encoded in name. ok is false
// for names this package did not produce.
func parseSnapshotName(name string) (s Snapshot, ok bool) {
	rest, found := strings.CutPrefix(name, namePrefix)
	if !found {
		return Snapshot{}, false
	}
	rest, s.Encrypted = strings.CutSuffix(rest, encryptedExt)
	rest, found = strings.CutSuffix(rest, nameExt)
	if !found {
		return Snapshot{}, false
	}
	t, err := time.Parse(timeLayout, rest)
	if err != nil {
		return Snapshot{}, false
	}
	s.Name = name
	s.CreatedAt = t
	return s, true
}

// sortNewestFirst orders snapshots by creation time, newest first.
func sortNewestFirst(snaps []Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
}

// IsEncrypted reports whether name is an age-sealed snapshot.
func IsEncrypted(name string) bool {
	s, ok := parseSnapshotName(name)
	return ok && s.Encrypted
}
