package api

import (
	"net/http"

	"accessledger/internal/domain"
)

// changeRecordResponse is the API shape of one drift finding.
type changeRecordResponse struct {
	PrincipalID  string `json:"principal_id"`
	SourceSystem string `json:"source_system"`
	Environment  string `json:"environment"`
	Service      string `json:"service"`
	Change       string `json:"change"`
	OldAccess    string `json:"old_access,omitempty"`
	NewAccess    string `json:"new_access,omitempty"`
}

// Drift diffs two closed runs. `from` and `to` are run IDs; when `from` is
// omitted the most recent closed run before `to` is used.
func (h *Handler) Drift(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := q.Get("from")
	to := q.Get("to")
	if to == "" {
		h.writeError(w, domain.ErrValidation("to run id is required"))
		return
	}
	opts := domain.DiffOptions{IncludeUnchanged: q.Get("include_unchanged") == "true"}

	var records []domain.ChangeRecord
	var err error
	if from == "" {
		records, err = h.drift.DiffAgainstPrior(r.Context(), to, opts)
	} else {
		records, err = h.drift.Diff(r.Context(), from, to, opts)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]changeRecordResponse, len(records))
	for i, rec := range records {
		out[i] = changeRecordResponse{
			PrincipalID:  rec.Key.PrincipalID,
			SourceSystem: rec.Key.SourceSystem,
			Environment:  rec.Key.Environment,
			Service:      rec.Key.Service,
			Change:       string(rec.Change),
			OldAccess:    rec.OldAccess,
			NewAccess:    rec.NewAccess,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}
