package store

import (
	"context"
	"errors"
	"time"

	"github.com/idot-digital/events-api/internal/metrics"
	"github.com/idot-digital/events-api/internal/models"
)

// Instrumented records the latency and outcome of every call to the
// wrapped store.
type Instrumented struct {
	next EventStore
}

func WithMetrics(next EventStore) *Instrumented {
	return &Instrumented{next: next}
}

func (s *Instrumented) GetByID(ctx context.Context, id string) (event *models.Event, err error) {
	defer observe("get_by_id", time.Now(), &err)
	return s.next.GetByID(ctx, id)
}

func (s *Instrumented) Add(ctx context.Context, fields models.Fields) (events []models.Event, err error) {
	defer observe("add", time.Now(), &err)
	return s.next.Add(ctx, fields)
}

func (s *Instrumented) Update(ctx context.Context, id string, patch models.Fields) (events []models.Event, err error) {
	defer observe("update", time.Now(), &err)
	return s.next.Update(ctx, id, patch)
}

func (s *Instrumented) Delete(ctx context.Context, id string) (events []models.Event, err error) {
	defer observe("delete", time.Now(), &err)
	return s.next.Delete(ctx, id)
}

func (s *Instrumented) ChangeReaction(ctx context.Context, id, reactionType string) (total int64, err error) {
	defer observe("change_reaction", time.Now(), &err)
	return s.next.ChangeReaction(ctx, id, reactionType)
}

func (s *Instrumented) Ping(ctx context.Context) error {
	if p, ok := s.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func observe(operation string, start time.Time, errp *error) {
	metrics.StoreOperationDuration.WithLabelValues(operation, outcome(*errp)).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEventNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
