package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/idot-digital/events-api/internal/models"
	"github.com/oklog/ulid/v2"
)

// Memory keeps events in process memory, in insertion order.
type Memory struct {
	mu     sync.RWMutex
	events map[string]*models.Event
	order  []string
}

func NewMemory() *Memory {
	return &Memory{events: make(map[string]*models.Event)}
}

func (m *Memory) GetByID(ctx context.Context, id string) (*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	c := e.Clone()
	return &c, nil
}

func (m *Memory) Add(ctx context.Context, fields models.Fields) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := ulid.Make().String()
	m.events[id] = &models.Event{ID: id, Fields: fields.WithoutID(), Reactions: map[string]int64{}}
	m.order = append(m.order, id)
	return m.listLocked(), nil
}

func (m *Memory) Update(ctx context.Context, id string, patch models.Fields) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("update %q: %w", id, ErrEventNotFound)
	}
	e.Fields = e.Fields.Merge(patch)
	return m.listLocked(), nil
}

func (m *Memory) Delete(ctx context.Context, id string) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[id]; ok {
		delete(m.events, id)
		m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	}
	return m.listLocked(), nil
}

func (m *Memory) ChangeReaction(ctx context.Context, id, reactionType string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[id]
	if !ok {
		return 0, fmt.Errorf("change reaction %q on %q: %w", reactionType, id, ErrEventNotFound)
	}
	e.Reactions[reactionType]++
	return e.Reactions[reactionType], nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) listLocked() []models.Event {
	out := make([]models.Event, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.events[id].Clone())
	}
	return out
}
