package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the tournament engine.
const (
	TypeRoundCreated       = "round.created"
	TypeRoundStatusChanged = "round.status_changed"
	TypePairingsConfirmed  = "pairings.confirmed"
	TypeResultsApplied     = "results.applied"
	TypeResultApproved     = "result.approved"
	TypeRatingsApplied     = "ratings.applied"
)

// Event is a tournament-scoped notification.
type Event struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	TournamentID string      `json:"tournamentId"`
	OccurredAt   time.Time   `json:"occurredAt"`
	Payload      interface{} `json:"payload,omitempty"`
}

// New stamps an event with an id and the given time.
func New(eventType, tournamentID string, at time.Time, payload interface{}) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		TournamentID: tournamentID,
		OccurredAt:   at.UTC(),
		Payload:      payload,
	}
}

// Publisher delivers events to one channel.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Fanout delivers to every publisher and joins their failures.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
