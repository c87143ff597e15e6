package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"accessledger/internal/domain"
)

// principalResponse is the API shape of a registry principal.
type principalResponse struct {
	ID            string     `json:"id"`
	PrincipalID   string     `json:"principal_id"`
	SourceSystem  string     `json:"source_system"`
	Environment   string     `json:"environment"`
	Type          string     `json:"type"`
	DisplayName   string     `json:"display_name,omitempty"`
	InternalAlias string     `json:"internal_alias,omitempty"`
	Email         string     `json:"email,omitempty"`
	JiraTicket    *string    `json:"jira_ticket,omitempty"`
	Status        string     `json:"status"`
	MissedRuns    int        `json:"missed_runs"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAccessAt  *time.Time `json:"last_access_at,omitempty"`
}

func principalToAPI(p domain.Principal) principalResponse {
	return principalResponse{
		ID:            p.ID,
		PrincipalID:   p.PrincipalID,
		SourceSystem:  p.SourceSystem,
		Environment:   p.Environment,
		Type:          p.Type,
		DisplayName:   p.DisplayName,
		InternalAlias: p.InternalAlias,
		Email:         p.Email,
		JiraTicket:    p.JiraTicket,
		Status:        string(p.Status),
		MissedRuns:    p.MissedRuns,
		CreatedAt:     p.CreatedAt,
		LastAccessAt:  p.LastAccessAt,
	}
}

// ListPrincipals returns a paginated registry listing.
func (h *Handler) ListPrincipals(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	principals, total, err := h.principals.List(r.Context(), page)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]principalResponse, len(principals))
	for i, p := range principals {
		out[i] = principalToAPI(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":            out,
		"next_page_token": domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

// GetPrincipal returns one registry entry by its stable reference.
func (h *Handler) GetPrincipal(w http.ResponseWriter, r *http.Request) {
	p, err := h.principals.GetByID(r.Context(), chi.URLParam(r, "principalID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, principalToAPI(*p))
}

// SetPrincipalTicket stores an externally-assigned ticket reference on the
// principal. The ticket is provenance from a workflow system, not computed
// here.
func (h *Handler) SetPrincipalTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if req.Ticket == "" {
		h.writeError(w, domain.ErrValidation("ticket is required"))
		return
	}

	id := chi.URLParam(r, "principalID")
	if err := h.principals.SetJiraTicket(r.Context(), id, req.Ticket); err != nil {
		h.writeError(w, err)
		return
	}
	p, err := h.principals.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, principalToAPI(*p))
}
