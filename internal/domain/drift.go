package domain

// ChangeType classifies one matrix cell between two runs.
type ChangeType string

const (
	ChangeAdded     ChangeType = "ADDED"
	ChangeRemoved   ChangeType = "REMOVED"
	ChangeModified  ChangeType = "MODIFIED"
	ChangeUnchanged ChangeType = "UNCHANGED"
)

// ChangeRecord is one drift finding between two runs' snapshots.
type ChangeRecord struct {
	Key       MatrixKey
	Change    ChangeType
	OldAccess string // empty for ADDED
	NewAccess string // empty for REMOVED
}

// DiffOptions controls drift computation.
type DiffOptions struct {
	// IncludeUnchanged emits UNCHANGED records as well. Off by default.
	IncludeUnchanged bool
}
