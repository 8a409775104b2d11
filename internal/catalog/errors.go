package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a write path names a key that does not exist.
var ErrNotFound = errors.New("resource not found")

// EntryWarning records one source entry that could not be read or parsed.
// Warnings are collected into the sync run and never abort a sync.
type EntryWarning struct {
	Path string
	Err  error
}

func (w EntryWarning) String() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

// Phase names a sync orchestrator state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseWalking  Phase = "walking"
	PhaseSweeping Phase = "sweeping"
	PhaseDone     Phase = "done"
	PhaseFailed   Phase = "failed"
)

// FatalSyncError aborts a sync before the archival sweep has run, or reports
// that the sweep itself failed.
type FatalSyncError struct {
	Phase Phase
	Err   error
}

func (e *FatalSyncError) Error() string {
	return fmt.Sprintf("sync failed while %s: %v", e.Phase, e.Err)
}

func (e *FatalSyncError) Unwrap() error { return e.Err }

// ConcurrencyError rejects a sync attempted while another is in progress.
type ConcurrencyError struct {
	Holder string
}

func (e *ConcurrencyError) Error() string {
	if e.Holder == "" {
		return "sync already in progress"
	}
	return fmt.Sprintf("sync already in progress (held by %s)", e.Holder)
}

// ErrSyncInProgress matches any *ConcurrencyError with errors.Is.
var ErrSyncInProgress = &ConcurrencyError{}

func (e *ConcurrencyError) Is(target error) bool {
	_, ok := target.(*ConcurrencyError)
	return ok
}

// ValidationError rejects a write-path call on one field.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors collects every field-level rejection of one call.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// As lets errors.As extract the first field error from the collection.
func (es ValidationErrors) As(target any) bool {
	if len(es) == 0 {
		return false
	}
	if t, ok := target.(**ValidationError); ok {
		*t = es[0]
		return true
	}
	return false
}

// err returns nil for an empty collection.
func (es ValidationErrors) err() error {
	if len(es) == 0 {
		return nil
	}
	return es
}
