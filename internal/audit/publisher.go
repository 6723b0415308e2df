// Package audit records what happened to identities: enrollments,
// authentications, blocks, biometric changes and deletions.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher captures structured audit events. It is append-only and writes
// through a Store so tests can swap sinks easily.
type Publisher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger mirrors every event to logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps and stores event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	event = p.stamp(event)
	if p.logger != nil {
		p.logger.InfoContext(ctx, "audit",
			"event_id", event.ID.String(),
			"category", string(event.Category),
			"action", string(event.Action),
			"identity_id", event.IdentityID,
			"identity_provider", event.IdentityProvider,
			"reason", event.Reason,
		)
	}
	if p.store == nil {
		return nil
	}
	return p.store.Append(ctx, event)
}

func (p *Publisher) stamp(event Event) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = categoryOf(event.Action)
	}
	return event
}

func (p *Publisher) List(ctx context.Context, identityID int64) ([]Event, error) {
	return p.store.ListByIdentity(ctx, identityID)
}
