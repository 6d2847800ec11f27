package apihttp

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	incidentapp "guardduty-billing/internal/incident/application"
	incident "guardduty-billing/internal/incident/domain"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/fault"
)

const resourceIncident = "incident"

type createIncidentRequest struct {
	GuardID      string    `json:"guard_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Description  string    `json:"description"`
	Observations *string   `json:"observations"`
	Codes        []string  `json:"codes"`
	Modality     string    `json:"modality"`
}

type updateIncidentRequest struct {
	Start        incident.Optional[time.Time] `json:"start"`
	End          incident.Optional[time.Time] `json:"end"`
	Description  incident.Optional[string]    `json:"description"`
	Observations incident.Optional[string]    `json:"observations"`
	Modality     incident.Optional[string]    `json:"modality"`
}

type changeStateRequest struct {
	State string `json:"state"`
	Notes string `json:"notes"`
}

// CreateIncident handles POST /api/v1/incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req createIncidentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	inc, err := h.incidents.Create(r.Context(), incidentapp.CreateInput{
		GuardID:      req.GuardID,
		Start:        req.Start,
		End:          req.End,
		Description:  req.Description,
		Observations: req.Observations,
		Codes:        req.Codes,
		Modality:     req.Modality,
		ActorID:      actor(r),
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
	h.logAudit(r, resourceIncident, inc.ID, "incident.create", map[string]any{
		"guard_id": inc.GuardID,
		"codes":    len(inc.Assignments),
	})
}

// ListIncidents handles GET /api/v1/incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseIncidentFilter(r)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	list, err := h.incidents.List(r.Context(), filter)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if list == nil {
		list = []incident.Incident{}
	}
	writeJSON(w, http.StatusOK, list)
}

func parseIncidentFilter(r *http.Request) (incident.Filter, error) {
	q := r.URL.Query()
	var filter incident.Filter
	if raw := q.Get("from"); raw != "" {
		from, err := civil.ParseDate(raw)
		if err != nil {
			return filter, fault.Validation("from must be YYYY-MM-DD")
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := civil.ParseDate(raw)
		if err != nil {
			return filter, fault.Validation("to must be YYYY-MM-DD")
		}
		filter.To = &to
	}
	if raw := strings.TrimSpace(q.Get("state")); raw != "" {
		filter.State = incident.State(strings.ToLower(raw))
	}
	filter.GuardID = strings.TrimSpace(q.Get("guard_id"))
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, fault.Validation("limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

// GetIncident handles GET /api/v1/incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// UpdateIncident handles PATCH /api/v1/incidents/{id}.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	var req updateIncidentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	inc, err := h.incidents.Update(r.Context(), id, incidentapp.UpdateInput{
		Start:        req.Start,
		End:          req.End,
		Description:  req.Description,
		Observations: req.Observations,
		Modality:     req.Modality,
		ActorID:      actor(r),
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
	h.logAudit(r, resourceIncident, id, "incident.update", map[string]any{
		"start_changed": req.Start.Set,
		"end_changed":   req.End.Set,
	})
}

// ChangeIncidentState handles POST /api/v1/incidents/{id}/state.
func (h *Handler) ChangeIncidentState(w http.ResponseWriter, r *http.Request) {
	var req changeStateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	to, err := incident.ParseState(req.State)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	inc, err := h.incidents.ChangeState(r.Context(), id, to, actor(r), req.Notes)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
	h.logAudit(r, resourceIncident, id, "incident.state", map[string]any{"to": string(to)})
}

// DeleteIncident handles DELETE /api/v1/incidents/{id}.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.incidents.Delete(r.Context(), id); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, resourceIncident, id, "incident.delete", nil)
}

// IncidentHistory handles GET /api/v1/incidents/{id}/history.
func (h *Handler) IncidentHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.incidents.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
