package persistence

import (
	"context"

	"github.com/flowstate-dev/flowstate/pkg/api"
)

// EventStore is an append-only history store for run execution events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.ExecutionEvent) error
	// ListEvents returns the events of a run in the order they were appended.
	ListEvents(ctx context.Context, runID string) ([]api.ExecutionEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.ExecutionEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, runID string) ([]api.ExecutionEvent, error) {
	return nil, nil
}
