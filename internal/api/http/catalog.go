package apihttp

import (
	"net/http"
	"strings"

	billing "guardduty-billing/internal/billing/domain"
	billingapp "guardduty-billing/internal/billing/application"
	catalog "guardduty-billing/internal/catalog/domain"
	"guardduty-billing/internal/observability/metrics"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/fault"
)

// ApplicableCodes handles GET /api/v1/billing-codes/applicable.
func (h *Handler) ApplicableCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.applicable(r)
	metrics.IncApplicableLookup(metrics.Result(err))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

func (h *Handler) applicable(r *http.Request) ([]catalog.BillingCode, error) {
	q := r.URL.Query()
	date, err := civil.ParseDate(q.Get("date"))
	if err != nil {
		return nil, fault.Validation("date must be YYYY-MM-DD")
	}
	start, err := civil.ParseTimeOfDay(q.Get("start"))
	if err != nil {
		return nil, fault.Validation("start must be HH:MM")
	}
	end, err := civil.ParseTimeOfDay(q.Get("end"))
	if err != nil {
		return nil, fault.Validation("end must be HH:MM")
	}
	modality := h.modality
	if raw := strings.TrimSpace(q.Get("modality")); raw != "" {
		modality = catalog.Modality(raw)
	}
	return h.matcher.FindApplicable(r.Context(), date, start, end, modality)
}

type simulateRequest struct {
	RateID    string          `json:"rate_id"`
	Date      string          `json:"date"`
	Start     civil.TimeOfDay `json:"start"`
	End       civil.TimeOfDay `json:"end"`
	GuardKind string          `json:"guard_kind"`
}

// SimulateRate handles POST /api/v1/rates/simulate.
func (h *Handler) SimulateRate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	date, err := civil.ParseDate(req.Date)
	if err != nil {
		h.writeFailure(w, r, fault.Validation("date must be YYYY-MM-DD"))
		return
	}
	quote, err := h.billing.Simulate(r.Context(), billingapp.SimulateRequest{
		RateID:    req.RateID,
		Date:      date,
		Start:     req.Start,
		End:       req.End,
		GuardKind: billing.GuardKind(req.GuardKind),
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}
