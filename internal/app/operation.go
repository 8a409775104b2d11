package app

import (
	"sync/atomic"
	"time"
)

// Operation tracks one CLI command. Commands that change the catalog mark
// it dirty; a dirty operation is snapshotted before the app closes.
type Operation struct {
	ID        string
	Name      string
	StartedAt time.Time
	dirty     atomic.Bool
}

// NewOperation creates an operation whose ID combines name and start time,
// e.g. "Sync-20240115T103000Z".
func NewOperation(name string, startedAt time.Time) *Operation {
	return &Operation{
		ID:        name + "-" + startedAt.UTC().Format("20060102T150405Z"),
		Name:      name,
		StartedAt: startedAt,
	}
}

// MarkDirty records that the catalog changed. Safe for concurrent use.
func (op *Operation) MarkDirty() { op.dirty.Store(true) }

// Dirty returns true if the catalog changed since the last snapshot.
func (op *Operation) Dirty() bool { return op.dirty.Load() }

// takeDirty clears the flag and reports whether it was set. A change marked
// after takeDirty returns leaves the operation dirty again.
func (op *Operation) takeDirty() bool { return op.dirty.Swap(false) }
