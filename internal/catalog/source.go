package catalog

import "context"

// Source is a read-only content tree that can be walked once per sync.
type Source interface {
	// Kind names the source type ("directory", "archive", "s3").
	Kind() string

	// Locator returns the user-facing address of the source.
	Locator() string

	// Walk calls visit for every candidate in a deterministic order and warn
	// for every entry that had to be skipped. An error returned by visit
	// stops the walk and is returned. Any other returned error means the
	// source itself could not be read.
	Walk(ctx context.Context, visit func(Candidate) error, warn func(EntryWarning)) error

	// Close releases any resources held by the source.
	Close() error
}

// SourceOpener resolves a locator into a Source.
type SourceOpener interface {
	Open(ctx context.Context, locator string) (Source, error)
}
