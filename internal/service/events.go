package service

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"

	"github.com/tallyhq/tally/internal/model"
)

// Paging and time-series bounds for event queries.
const (
	DefaultEventLimit = 50
	MaxEventLimit     = 100
	DefaultCountDays  = 7
	MaxCountDays      = 90
)

const dayLayout = "2006-01-02"

// EventStore is the persistence surface used for event queries and writes.
type EventStore interface {
	CreateEvent(ctx context.Context, ev *model.Event) error
	ListEvents(ctx context.Context, projectID, cursor string, limit int) ([]model.Event, error)
	CountEventsByDay(ctx context.Context, projectID string, since time.Time) ([]model.DailyCount, error)
}

// EventService answers event listings and daily counts for a project.
type EventService struct {
	store EventStore
	clock quartz.Clock
}

func NewEventService(store EventStore, clock quartz.Clock) *EventService {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &EventService{store: store, clock: clock}
}

// List returns one page of events, newest first. limit is clamped to
// [1, MaxEventLimit]; zero or negative selects DefaultEventLimit.
func (s *EventService) List(ctx context.Context, projectID, cursor string, limit int) (*model.EventPage, error) {
	limit = clampDefault(limit, DefaultEventLimit, MaxEventLimit)

	// Fetch one extra row to learn whether another page exists.
	events, err := s.store.ListEvents(ctx, projectID, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	page := &model.EventPage{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		next := page.Events[limit-1].ID
		page.NextCursor = &next
	}
	if page.Events == nil {
		page.Events = []model.Event{}
	}
	return page, nil
}

// DailyCounts returns one entry per UTC day for the last days days, oldest
// first and ending today. Days without events have a zero count.
func (s *EventService) DailyCounts(ctx context.Context, projectID string, days int) ([]model.DailyCount, error) {
	days = clampDefault(days, DefaultCountDays, MaxCountDays)

	now := s.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -(days - 1))

	rows, err := s.store.CountEventsByDay(ctx, projectID, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	buckets := make(map[string]int, len(rows))
	for _, r := range rows {
		buckets[r.Date] = r.Count
	}

	counts := make([]model.DailyCount, days)
	for i := range counts {
		day := start.AddDate(0, 0, i).Format(dayLayout)
		counts[i] = model.DailyCount{Date: day, Count: buckets[day]}
	}
	return counts, nil
}

func clampDefault(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
