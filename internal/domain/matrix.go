package domain

import "time"

// MatrixEntry is one recorded fact: as of the given run, the principal held
// the given access level on the service. Entries are append-only; every run
// materializes a complete snapshot and no entry is ever updated or deleted.
//
// The denormalized principal fields are provenance only; the Principal
// Registry's canonical row is authoritative when the two disagree.
type MatrixEntry struct {
	ID            int64
	RunID         string
	PrincipalRef  *string // registry Principal.ID; nil on degraded entries
	PrincipalID   string
	PrincipalType string
	SourceSystem  string
	Environment   string
	Service       string
	AccessLevel   string
	Degraded      bool // emitted from partial adapter output, principal not fully resolved
	UpdatedAt     time.Time
}

// MatrixKey identifies one cell of the access matrix across runs.
type MatrixKey struct {
	PrincipalID  string
	SourceSystem string
	Environment  string
	Service      string
}

// Key returns the cross-run comparison key for the entry.
func (e *MatrixEntry) Key() MatrixKey {
	return MatrixKey{
		PrincipalID:  e.PrincipalID,
		SourceSystem: e.SourceSystem,
		Environment:  e.Environment,
		Service:      e.Service,
	}
}

// RawFact is one unresolved access observation yielded by a source adapter.
type RawFact struct {
	PrincipalID   string
	PrincipalType string
	Service       string
	AccessLevel   string
}

// ObservedFact is a RawFact annotated with its origin and a per-source
// sequence number. Adapters yield facts in a stable enumeration order; the
// sequence number is what "last observed" means in the conflict tie-break.
type ObservedFact struct {
	RawFact
	SourceSystemID string
	Seq            int
	ObservedAt     time.Time
}

// ConflictDiscarded is a non-fatal diagnostic recorded when conflict
// resolution drops a contradictory fact within a single run.
type ConflictDiscarded struct {
	Key       MatrixKey
	Kept      string // surviving access level
	Discarded string
	Reason    string
}
