package domain

import "time"

// Run status constants. A run is Open while adapters are being invoked,
// Reconciling while the merged fact batch is being reduced, and ends in
// exactly one of the two closed states. Closed runs are immutable.
const (
	RunStatusOpen          = "OPEN"
	RunStatusReconciling   = "RECONCILING"
	RunStatusClosed        = "CLOSED"
	RunStatusClosedPartial = "CLOSED_PARTIAL"

	TriggerTypeManual     = "MANUAL"
	TriggerTypeScheduled  = "SCHEDULED"
	TriggerTypeAutomation = "AUTOMATION"
)

// Run is one execution of the reconciliation pipeline. Every run owns its
// matrix snapshot exclusively and is retained forever.
type Run struct {
	ID            string
	Status        string
	TriggerType   string
	TriggeredBy   string
	Description   string
	Environment   string
	FailedSources []string // source systems whose adapter failed or was aborted
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// IsClosed reports whether the run reached a terminal state.
func (r *Run) IsClosed() bool {
	return r.Status == RunStatusClosed || r.Status == RunStatusClosedPartial
}

// IsPartial reports whether the run's snapshot is incomplete. Consumers of
// drift reports can exclude partial runs from trend analysis.
func (r *Run) IsPartial() bool {
	return r.Status == RunStatusClosedPartial
}

// SourceFailed reports whether the given source system failed during the run.
// A principal tracked only under a failed source must not be counted as
// missing for that run.
func (r *Run) SourceFailed(sourceSystemID string) bool {
	for _, s := range r.FailedSources {
		if s == sourceSystemID {
			return true
		}
	}
	return false
}
