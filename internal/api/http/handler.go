package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"guardduty-billing/internal/audit"
	"guardduty-billing/internal/auth"
	billingapp "guardduty-billing/internal/billing/application"
	catalogapp "guardduty-billing/internal/catalog/application"
	catalog "guardduty-billing/internal/catalog/domain"
	incidentapp "guardduty-billing/internal/incident/application"
	settlementapp "guardduty-billing/internal/settlement/application"
)

// Deps are the services behind the HTTP API.
type Deps struct {
	Matcher     *catalogapp.Matcher
	Billing     *billingapp.Service
	Incidents   *incidentapp.Service
	Generator   *settlementapp.Generator
	Settlements *settlementapp.Service
	// Audit records mutations. Nil disables auditing.
	Audit           audit.Logger
	Location        *time.Location
	DefaultModality catalog.Modality
	Log             *zap.Logger
}

// Handler serves the /api/v1 routes.
type Handler struct {
	matcher     *catalogapp.Matcher
	billing     *billingapp.Service
	incidents   *incidentapp.Service
	generator   *settlementapp.Generator
	settlements *settlementapp.Service
	audit       audit.Logger
	loc         *time.Location
	modality    catalog.Modality
	log         *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(deps Deps) (*Handler, error) {
	switch {
	case deps.Matcher == nil:
		return nil, errors.New("api handler: nil matcher")
	case deps.Billing == nil:
		return nil, errors.New("api handler: nil billing service")
	case deps.Incidents == nil:
		return nil, errors.New("api handler: nil incident service")
	case deps.Generator == nil:
		return nil, errors.New("api handler: nil settlement generator")
	case deps.Settlements == nil:
		return nil, errors.New("api handler: nil settlement service")
	}
	h := &Handler{
		matcher:     deps.Matcher,
		billing:     deps.Billing,
		incidents:   deps.Incidents,
		generator:   deps.Generator,
		settlements: deps.Settlements,
		audit:       deps.Audit,
		loc:         deps.Location,
		modality:    deps.DefaultModality,
		log:         deps.Log,
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.modality == "" {
		h.modality = catalog.DefaultModality
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	h.log = h.log.Named("http")
	return h, nil
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func actor(r *http.Request) string {
	return auth.SubjectFromContext(r.Context())
}

func (h *Handler) logAudit(r *http.Request, resourceType, resourceID, action string, meta map[string]any) {
	if h.audit == nil {
		return
	}
	var payload json.RawMessage
	if len(meta) > 0 {
		payload, _ = json.Marshal(meta)
	}
	err := h.audit.Log(r.Context(), audit.Entry{
		Actor:        actor(r),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
