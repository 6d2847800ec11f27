package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	billing "guardduty-billing/internal/billing/domain"
	catalogapp "guardduty-billing/internal/catalog/application"
	catalog "guardduty-billing/internal/catalog/domain"
	guard "guardduty-billing/internal/guard/domain"
	incident "guardduty-billing/internal/incident/domain"
	"guardduty-billing/internal/observability/logger"
	"guardduty-billing/internal/observability/metrics"
	"guardduty-billing/internal/observability/tracing"
	"guardduty-billing/internal/platform/civil"
	"guardduty-billing/internal/platform/database"
	"guardduty-billing/internal/platform/fault"
)

// Event topics.
const (
	TopicCreated      = "incident.created"
	TopicStateChanged = "incident.state_changed"
)

// Event describes an incident lifecycle change.
type Event struct {
	Topic      string          `json:"topic"`
	IncidentID string          `json:"incident_id"`
	GuardID    string          `json:"guard_id"`
	From       *incident.State `json:"from,omitempty"`
	To         incident.State  `json:"to"`
	ActorID    string          `json:"actor_id"`
	Notes      string          `json:"notes,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Notifier receives lifecycle events after their transaction commits.
// Implementations must not block.
type Notifier interface {
	IncidentChanged(ctx context.Context, event Event)
}

// CreateInput is the payload of Create.
type CreateInput struct {
	GuardID      string
	Start        time.Time
	End          time.Time
	Description  string
	Observations *string
	// Codes lists explicit billing codes. Empty triggers auto-assignment.
	Codes    []string
	Modality string
	ActorID  string
}

// UpdateInput is a partial update. Absent fields are left unchanged.
type UpdateInput struct {
	Start        incident.Optional[time.Time]
	End          incident.Optional[time.Time]
	Description  incident.Optional[string]
	Observations incident.Optional[string]
	Modality     incident.Optional[string]
	ActorID      string
}

// Service owns the incident lifecycle.
type Service struct {
	tx       database.Transactor
	repo     incident.Repository
	guards   guard.Directory
	codes    catalog.CodeSource
	matcher  *catalogapp.Matcher
	notifier Notifier
	clock    civil.Clock
	newID    func() string
	loc      *time.Location
	modality catalog.Modality
	log      *zap.Logger
}

// ServiceOption customizes the incident service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock civil.Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithLocation sets the business time zone incident dates are taken in.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithDefaultModality sets the modality used when a request carries none.
func WithDefaultModality(modality catalog.Modality) ServiceOption {
	return func(s *Service) {
		if modality != "" {
			s.modality = modality
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(log *zap.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService constructs an incident service.
func NewService(tx database.Transactor, repo incident.Repository, guards guard.Directory, codes catalog.CodeSource, matcher *catalogapp.Matcher, opts ...ServiceOption) (*Service, error) {
	if tx == nil {
		return nil, errors.New("incident: nil transactor")
	}
	if repo == nil {
		return nil, errors.New("incident: nil repository")
	}
	if guards == nil {
		return nil, errors.New("incident: nil guard directory")
	}
	if codes == nil || matcher == nil {
		return nil, errors.New("incident: nil catalog")
	}
	service := &Service{
		tx:       tx,
		repo:     repo,
		guards:   guards,
		codes:    codes,
		matcher:  matcher,
		clock:    civil.SystemClock{},
		newID:    uuid.NewString,
		loc:      time.UTC,
		modality: catalog.DefaultModality,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	service.log = service.log.Named("incident")
	return service, nil
}

// Create registers a new incident against a guard.
func (s *Service) Create(ctx context.Context, in CreateInput) (result *incident.Incident, err error) {
	began := time.Now()
	defer func() { metrics.ObserveIncidentOperation("create", metrics.Result(err), time.Since(began)) }()

	if strings.TrimSpace(in.GuardID) == "" {
		return nil, fmt.Errorf("%w: guard id required", incident.ErrValidation)
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return nil, fmt.Errorf("%w: start and end required", incident.ErrValidation)
	}
	if !in.End.After(in.Start) {
		return nil, fmt.Errorf("%w: end must be after start", billing.ErrInvalidInterval)
	}
	modality, err := s.parseModality(in.Modality)
	if err != nil {
		return nil, err
	}

	g, err := s.guards.GetGuard(ctx, in.GuardID)
	if err != nil {
		return nil, fault.Storage("get guard", err)
	}
	if g == nil {
		return nil, fmt.Errorf("%w: %s", guard.ErrNotFound, in.GuardID)
	}
	if date := civil.Date(in.Start, s.loc); !date.Equal(civil.Date(g.Date, nil)) {
		return nil, fmt.Errorf("%w: incident %s, guard %s", incident.ErrGuardDateMismatch,
			date.Format(civil.DateLayout), g.Date.Format(civil.DateLayout))
	}

	now := s.clock.Now().UTC()
	inc := &incident.Incident{
		ID:           s.newID(),
		GuardID:      g.ID,
		Date:         civil.Date(g.Date, nil),
		Start:        in.Start.UTC(),
		End:          in.End.UTC(),
		Description:  strings.TrimSpace(in.Description),
		Observations: in.Observations,
		Modality:     string(modality),
		State:        incident.StateRegistered,
		CreatedBy:    in.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	inc.Assignments, err = s.assign(ctx, inc, in.Codes, modality)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, inc); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, inc.ID, nil, incident.StateRegistered, in.ActorID, "", now); err != nil {
			return err
		}
		s.notifyAfterCommit(ctx, Event{
			Topic:      TopicCreated,
			IncidentID: inc.ID,
			GuardID:    inc.GuardID,
			To:         incident.StateRegistered,
			ActorID:    in.ActorID,
			OccurredAt: now,
		})
		return nil
	})
	if err != nil {
		return nil, fault.Storage("create incident", err)
	}
	logger.With(ctx, s.log).Info("incident created",
		zap.String("incident_id", inc.ID),
		zap.String("guard_id", inc.GuardID),
		zap.Int("assignments", len(inc.Assignments)),
	)
	return inc, nil
}

// Update applies a partial update to an unsettled incident. A new interval or
// modality re-derives the code assignments and clears their amounts: matched
// codes are matched again and explicit codes are resolved again under the
// resulting modality.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (result *incident.Incident, err error) {
	began := time.Now()
	defer func() { metrics.ObserveIncidentOperation("update", metrics.Result(err), time.Since(began)) }()

	for name, null := range map[string]bool{
		"start":       in.Start.Set && in.Start.Null,
		"end":         in.End.Set && in.End.Null,
		"description": in.Description.Set && in.Description.Null,
		"modality":    in.Modality.Set && in.Modality.Null,
	} {
		if null {
			return nil, fmt.Errorf("%w: %s cannot be null", incident.ErrValidation, name)
		}
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if current.State == incident.StateSettled {
			return incident.ErrIncidentAlreadySettled
		}

		next := *current
		if in.Start.Present() {
			next.Start = in.Start.Value.UTC()
		}
		if in.End.Present() {
			next.End = in.End.Value.UTC()
		}
		if in.Description.Present() {
			next.Description = strings.TrimSpace(in.Description.Value)
		}
		if in.Observations.Set {
			next.Observations = nil
			if !in.Observations.Null {
				value := in.Observations.Value
				next.Observations = &value
			}
		}
		if !next.End.After(next.Start) {
			return fmt.Errorf("%w: end must be after start", billing.ErrInvalidInterval)
		}
		if !next.Start.Equal(current.Start) {
			if date := civil.Date(next.Start, s.loc); !date.Equal(current.Date) {
				return fmt.Errorf("%w: incident %s, guard %s", incident.ErrGuardDateMismatch,
					date.Format(civil.DateLayout), current.Date.Format(civil.DateLayout))
			}
		}

		intervalChanged := !next.Start.Equal(current.Start) || !next.End.Equal(current.End)
		modalityChanged := false
		if in.Modality.Present() {
			modality, err := s.parseModality(in.Modality.Value)
			if err != nil {
				return err
			}
			modalityChanged = string(modality) != current.Modality
			next.Modality = string(modality)
		}

		if modalityChanged || intervalChanged {
			assignments, err := s.assign(ctx, &next, current.ExplicitCodes(), catalog.Modality(next.Modality))
			if err != nil {
				return err
			}
			next.Assignments = assignments
		}

		next.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Update(ctx, &next); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, fault.Storage("update incident", err)
	}
	return result, nil
}

// ChangeState moves an incident through the state machine. The settled
// state is reserved for settlement generation.
func (s *Service) ChangeState(ctx context.Context, id string, to incident.State, actorID, notes string) (result *incident.Incident, err error) {
	began := time.Now()
	ctx, span := tracing.Start(ctx, "incident.change_state",
		attribute.String("incident.id", id),
		attribute.String("incident.to_state", string(to)),
	)
	defer func() {
		tracing.End(span, err)
		metrics.ObserveIncidentOperation("change_state", metrics.Result(err), time.Since(began))
	}()

	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", incident.ErrValidation, to)
	}
	if to == incident.StateSettled {
		return nil, fmt.Errorf("%w: settled is set by settlement generation", incident.ErrInvalidTransition)
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := s.transition(ctx, current, to, actorID, notes); err != nil {
			return err
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, fault.Storage("change incident state", err)
	}
	return result, nil
}

// Delete removes an unsettled incident. Its history is retained.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	began := time.Now()
	defer func() { metrics.ObserveIncidentOperation("delete", metrics.Result(err), time.Since(began)) }()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if current.State == incident.StateSettled {
			return incident.ErrIncidentAlreadySettled
		}
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return fault.Storage("delete incident", err)
	}
	logger.With(ctx, s.log).Info("incident deleted", zap.String("incident_id", id))
	return nil
}

// Get returns one incident.
func (s *Service) Get(ctx context.Context, id string) (*incident.Incident, error) {
	inc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fault.Storage("get incident", err)
	}
	if inc == nil {
		return nil, fmt.Errorf("%w: %s", incident.ErrNotFound, id)
	}
	return inc, nil
}

// List returns incidents matching filter, ordered by guard date and start.
func (s *Service) List(ctx context.Context, filter incident.Filter) ([]incident.Incident, error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", incident.ErrValidation, filter.State)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, fmt.Errorf("%w: to is before from", incident.ErrValidation)
	}
	incidents, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fault.Storage("list incidents", err)
	}
	return incidents, nil
}

// History returns the state history of an incident, oldest first. History
// outlives deleted incidents.
func (s *Service) History(ctx context.Context, id string) ([]incident.HistoryEntry, error) {
	entries, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, fault.Storage("incident history", err)
	}
	if len(entries) == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *Service) load(ctx context.Context, id string) (*incident.Incident, error) {
	inc, err := s.repo.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, fmt.Errorf("%w: %s", incident.ErrNotFound, id)
	}
	return inc, nil
}

// transition is the single place incident state changes are applied.
func (s *Service) transition(ctx context.Context, inc *incident.Incident, to incident.State, actorID, notes string) error {
	from := inc.State
	if err := incident.CheckTransition(from, to); err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	if err := s.repo.UpdateState(ctx, inc.ID, to, now); err != nil {
		return err
	}
	if err := s.appendHistory(ctx, inc.ID, &from, to, actorID, notes, now); err != nil {
		return err
	}
	inc.State = to
	inc.UpdatedAt = now

	database.AfterCommit(ctx, func() { metrics.IncIncidentTransition(string(from), string(to)) })
	s.notifyAfterCommit(ctx, Event{
		Topic:      TopicStateChanged,
		IncidentID: inc.ID,
		GuardID:    inc.GuardID,
		From:       &from,
		To:         to,
		ActorID:    actorID,
		Notes:      notes,
		OccurredAt: now,
	})
	return nil
}

func (s *Service) appendHistory(ctx context.Context, incidentID string, from *incident.State, to incident.State, actorID, notes string, at time.Time) error {
	return s.repo.AppendHistory(ctx, incident.HistoryEntry{
		ID:         s.newID(),
		IncidentID: incidentID,
		FromState:  from,
		ToState:    to,
		ActorID:    actorID,
		Notes:      strings.TrimSpace(notes),
		CreatedAt:  at,
	})
}

func (s *Service) notifyAfterCommit(ctx context.Context, event Event) {
	if s.notifier == nil {
		return
	}
	notifyCtx := context.WithoutCancel(ctx)
	database.AfterCommit(ctx, func() {
		s.notifier.IncidentChanged(notifyCtx, event)
	})
}

func (s *Service) parseModality(value string) (catalog.Modality, error) {
	if strings.TrimSpace(value) == "" {
		return s.modality, nil
	}
	return catalog.ParseModality(value)
}

// assign resolves explicit codes, or matches codes against the incident's
// time-of-day interval. Code windows select codes but never clip minutes:
// every assignment carries the full incident duration.
func (s *Service) assign(ctx context.Context, inc *incident.Incident, explicit []string, modality catalog.Modality) ([]incident.CodeAssignment, error) {
	var codes []catalog.BillingCode
	if len(explicit) > 0 {
		seen := make(map[string]bool, len(explicit))
		for _, raw := range explicit {
			code := strings.TrimSpace(raw)
			if code == "" || seen[code] {
				continue
			}
			seen[code] = true
			found, err := s.codes.FindActiveCode(ctx, code, modality)
			if err != nil {
				return nil, fault.Storage("find billing code", err)
			}
			if found == nil {
				return nil, fmt.Errorf("%w: %s (%s)", incident.ErrUnknownCode, code, modality)
			}
			codes = append(codes, *found)
		}
	} else {
		start := civil.TimeOfDayOf(inc.Start.In(s.loc))
		end := civil.TimeOfDayOf(inc.End.In(s.loc))
		if inc.Minutes() >= 24*60 {
			end = start
		}
		matched, err := s.matcher.FindApplicable(ctx, inc.Date, start, end, modality)
		if err != nil {
			return nil, err
		}
		codes = matched
	}

	assignments := make([]incident.CodeAssignment, 0, len(codes))
	for _, code := range codes {
		assignments = append(assignments, incident.CodeAssignment{
			ID:            s.newID(),
			IncidentID:    inc.ID,
			BillingCodeID: code.ID,
			Code:          code.Code,
			Minutes:       inc.Minutes(),
			Explicit:      len(explicit) > 0,
		})
	}
	return assignments, nil
}
