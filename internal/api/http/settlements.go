package apihttp

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	settlement "guardduty-billing/internal/settlement/domain"
	"guardduty-billing/internal/settlement/interfaces"
)

const resourceSettlement = "settlement"

type generateRequest struct {
	Period string `json:"period"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// GenerateSettlement handles POST /api/v1/settlements.
func (h *Handler) GenerateSettlement(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	s, err := h.generator.Generate(r.Context(), req.Period, actor(r))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
	h.logAudit(r, resourceSettlement, s.ID, "settlement.generate", map[string]any{
		"period":  string(s.Period),
		"details": len(s.Details),
		"total":   s.TotalAmount.StringFixed(2),
	})
}

// ListSettlements handles GET /api/v1/settlements.
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	list, err := h.settlements.List(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if list == nil {
		list = []settlement.Settlement{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetSettlement handles GET /api/v1/settlements/{id}.
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	s, err := h.settlements.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ChangeSettlementStatus handles POST /api/v1/settlements/{id}/status.
func (h *Handler) ChangeSettlementStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	s, err := h.settlements.ChangeStatus(r.Context(), id, settlement.Status(req.Status), actor(r))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
	h.logAudit(r, resourceSettlement, id, "settlement.status", map[string]any{"status": string(s.Status)})
}

// ExportSettlement handles GET /api/v1/settlements/{id}/export.{format}.
func (h *Handler) ExportSettlement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := chi.URLParam(r, "format")
	s, err := h.settlements.Get(r.Context(), id)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	data, err := interfaces.Export(s, format)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", interfaces.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=settlement-%s.%s", s.Period, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, resourceSettlement, id, "settlement.export", map[string]any{"format": format})
}
