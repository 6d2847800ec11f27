package notify

import (
	"context"
	"errors"
)

// MultiChannel delivers every message to several channels.
type MultiChannel struct {
	channels []Channel
}

// NewMultiChannel constructs a MultiChannel. Nil channels are skipped.
func NewMultiChannel(channels ...Channel) *MultiChannel {
	kept := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			kept = append(kept, ch)
		}
	}
	return &MultiChannel{channels: kept}
}

// Send implements Channel. Every channel is attempted; failures are joined.
func (m *MultiChannel) Send(ctx context.Context, recipient, content string) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Send(ctx, recipient, content); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
