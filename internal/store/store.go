// Package store holds the persistence backends for events.
package store

import (
	"context"
	"errors"

	"github.com/idot-digital/events-api/internal/models"
)

// ErrEventNotFound is returned by mutations that target an unknown id.
var ErrEventNotFound = errors.New("event not found")

// EventStore is the persistence collaborator used by the transports.
// Mutations return the full list of events after the change.
type EventStore interface {
	// GetByID returns nil and no error when the id is unknown.
	GetByID(ctx context.Context, id string) (*models.Event, error)
	Add(ctx context.Context, fields models.Fields) ([]models.Event, error)
	Update(ctx context.Context, id string, patch models.Fields) ([]models.Event, error)
	// Delete of an unknown id is not an error.
	Delete(ctx context.Context, id string) ([]models.Event, error)
	// ChangeReaction increments the named counter and returns its new value.
	ChangeReaction(ctx context.Context, id, reactionType string) (int64, error)
}

// Pinger is implemented by stores that can report their connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
