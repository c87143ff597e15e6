package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"accessledger/internal/domain"
)

// runResponse is the API shape of a run.
type runResponse struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Partial       bool       `json:"partial"`
	TriggerType   string     `json:"trigger_type"`
	TriggeredBy   string     `json:"triggered_by"`
	Description   string     `json:"description"`
	Environment   string     `json:"environment"`
	FailedSources []string   `json:"failed_sources,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

func runToAPI(r domain.Run) runResponse {
	return runResponse{
		ID:            r.ID,
		Status:        r.Status,
		Partial:       r.IsPartial(),
		TriggerType:   r.TriggerType,
		TriggeredBy:   r.TriggeredBy,
		Description:   r.Description,
		Environment:   r.Environment,
		FailedSources: r.FailedSources,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
}

// TriggerRun starts a reconciliation run for the requested environment and
// returns the closed run.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Environment string `json:"environment"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if req.Environment == "" {
		h.writeError(w, domain.ErrValidation("environment is required"))
		return
	}

	identity, _ := domain.IdentityFromContext(r.Context())
	run, err := h.controller.Execute(r.Context(), req.Environment, domain.TriggerTypeManual, identity.Name, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, runToAPI(*run))
}

// ListRuns returns a paginated run listing, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	runs, total, err := h.runs.List(r.Context(), page)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]runResponse, len(runs))
	for i, run := range runs {
		out[i] = runToAPI(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":            out,
		"next_page_token": domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

// GetRun returns one run by ID.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runToAPI(*run))
}

// CancelRun aborts an in-flight run.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Cancel(chi.URLParam(r, "runID")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// matrixEntryResponse is the API shape of a matrix entry.
type matrixEntryResponse struct {
	PrincipalID   string    `json:"principal_id"`
	PrincipalRef  *string   `json:"principal_ref,omitempty"`
	PrincipalType string    `json:"principal_type"`
	SourceSystem  string    `json:"source_system"`
	Environment   string    `json:"environment"`
	Service       string    `json:"service"`
	AccessLevel   string    `json:"access_level"`
	Degraded      bool      `json:"degraded,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListRunEntries returns a paginated slice of the run's matrix snapshot.
func (h *Handler) ListRunEntries(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := h.runs.Get(r.Context(), runID); err != nil {
		h.writeError(w, err)
		return
	}

	page := pageFromQuery(r)
	entries, total, err := h.matrix.ListByRun(r.Context(), runID, page)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]matrixEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = matrixEntryResponse{
			PrincipalID:   e.PrincipalID,
			PrincipalRef:  e.PrincipalRef,
			PrincipalType: e.PrincipalType,
			SourceSystem:  e.SourceSystem,
			Environment:   e.Environment,
			Service:       e.Service,
			AccessLevel:   e.AccessLevel,
			Degraded:      e.Degraded,
			UpdatedAt:     e.UpdatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":            out,
		"next_page_token": domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}
