package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	incidentapp "guardduty-billing/internal/incident/application"
)

// IncidentNotifier renders incident lifecycle events for every supervisor
// and queues them on a dispatcher.
type IncidentNotifier struct {
	dispatcher  *Dispatcher
	template    *Template
	supervisors []string
	log         *zap.Logger
}

// NewIncidentNotifier constructs an incident notifier.
func NewIncidentNotifier(dispatcher *Dispatcher, template *Template, supervisors []string, log *zap.Logger) (*IncidentNotifier, error) {
	if dispatcher == nil {
		return nil, errors.New("incident notifier: nil dispatcher")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	if log == nil {
		log = zap.NewNop()
	}
	recipients := make([]string, 0, len(supervisors))
	for _, s := range supervisors {
		if s = strings.TrimSpace(s); s != "" {
			recipients = append(recipients, s)
		}
	}
	return &IncidentNotifier{dispatcher: dispatcher, template: template, supervisors: recipients, log: log.Named("notify")}, nil
}

// IncidentChanged implements incidentapp.Notifier. It never blocks.
func (n *IncidentNotifier) IncidentChanged(_ context.Context, event incidentapp.Event) {
	if n == nil || len(n.supervisors) == 0 {
		return
	}
	content, err := n.template.Render(buildTemplateData(event))
	if err != nil {
		n.log.Warn("render notification", zap.String("incident_id", event.IncidentID), zap.Error(err))
		return
	}
	for _, supervisor := range n.supervisors {
		n.dispatcher.Enqueue(Message{Recipient: supervisor, Topic: event.Topic, Content: content})
	}
}

func buildTemplateData(event incidentapp.Event) TemplateData {
	data := TemplateData{
		Topic:      event.Topic,
		EventLabel: eventLabel(event.Topic),
		IncidentID: event.IncidentID,
		GuardID:    event.GuardID,
		To:         string(event.To),
		Actor:      event.ActorID,
		Notes:      event.Notes,
		OccurredAt: event.OccurredAt.UTC().Format(time.RFC3339),
	}
	if event.From != nil {
		data.From = string(*event.From)
	}
	return data
}

func eventLabel(topic string) string {
	switch topic {
	case incidentapp.TopicCreated:
		return "Reported"
	case incidentapp.TopicStateChanged:
		return "State Changed"
	default:
		return topic
	}
}
