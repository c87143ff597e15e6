package domain

import "time"

// PrincipalStatus is the lifecycle state of a registry principal. The core
// only ever sees these named states; any numeric status encoding is a
// persistence-mapping concern.
type PrincipalStatus string

const (
	// StatusActive is the normal state of an observed principal.
	StatusActive PrincipalStatus = "active"
	// StatusReactivated marks a principal that returned after being
	// pending-removal or disabled. Functionally active, kept distinct so
	// the reactivation is visible in reports.
	StatusReactivated PrincipalStatus = "reactivated"
	// StatusPendingRemoval marks a principal unobserved for the configured
	// grace period of consecutive successful runs.
	StatusPendingRemoval PrincipalStatus = "pending_removal"
	// StatusDisabled is the terminal soft-retirement state. The row is
	// never deleted; audit history stays intact.
	StatusDisabled PrincipalStatus = "disabled"
)

// Valid reports whether s is one of the known lifecycle states.
func (s PrincipalStatus) Valid() bool {
	switch s {
	case StatusActive, StatusReactivated, StatusPendingRemoval, StatusDisabled:
		return true
	}
	return false
}

// IsRetired reports whether the principal is in a retirement state.
func (s PrincipalStatus) IsRetired() bool {
	return s == StatusPendingRemoval || s == StatusDisabled
}

// PrincipalKey is the globally unique identity of a registry entry. The
// same human or service appearing in two environments or two source
// systems is two distinct entries; there is no cross-environment merge.
type PrincipalKey struct {
	PrincipalID    string
	SourceSystemID string
	Environment    string
}

// Validate rejects keys with any empty component.
func (k PrincipalKey) Validate() error {
	if k.PrincipalID == "" {
		return ErrInvalidKey("principal id is required")
	}
	if k.SourceSystemID == "" {
		return ErrInvalidKey("source system id is required")
	}
	if k.Environment == "" {
		return ErrInvalidKey("environment code is required")
	}
	return nil
}

// Principal is a canonical registry entry: one actor within one source
// system and one environment.
type Principal struct {
	ID            string // stable internal reference (UUID)
	PrincipalID   string
	SourceSystem  string
	Environment   string
	Type          string // "user", "service_account", or "group"
	DisplayName   string
	InternalAlias string
	Email         string
	JiraTicket    *string // populated by an external process, never computed here
	Status        PrincipalStatus
	MissedRuns    int
	CreatedAt     time.Time
	LastAccessAt  *time.Time
}

// Key returns the unique identity key of the principal.
func (p *Principal) Key() PrincipalKey {
	return PrincipalKey{
		PrincipalID:    p.PrincipalID,
		SourceSystemID: p.SourceSystem,
		Environment:    p.Environment,
	}
}

// Environment is immutable reference data for a deployment context.
type Environment struct {
	Code        string
	Description string
}

// SourceSystem is immutable reference data for an external system of record.
type SourceSystem struct {
	ID          string
	Description string
}

// PrincipalType is reference data for a category of principal.
type PrincipalType struct {
	Name        string
	Description string
}
