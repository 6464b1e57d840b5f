package config

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tallyhq/tally/internal/model"
)

type eventRow struct {
	ID        string    `db:"id"`
	ProjectID string    `db:"project_id"`
	Name      string    `db:"name"`
	Metadata  string    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

func (r eventRow) toModel() model.Event {
	return model.Event{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		Name:      r.Name,
		Metadata:  json.RawMessage(r.Metadata),
		CreatedAt: r.CreatedAt,
	}
}

// CreateEvent persists a tracked event. ID and CreatedAt are populated on ev
// when unset.
func (s *Store) CreateEvent(ctx context.Context, ev *model.Event) error {
	if ev.ID == "" {
		ev.ID = newID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now()
	}
	ev.CreatedAt = ev.CreatedAt.UTC()

	metadata := string(ev.Metadata)
	if metadata == "" {
		metadata = "{}"
	}
	row := eventRow{
		ID:        ev.ID,
		ProjectID: ev.ProjectID,
		Name:      ev.Name,
		Metadata:  metadata,
		CreatedAt: ev.CreatedAt,
	}

	const q = `INSERT INTO events (id, project_id, name, metadata, created_at)
		VALUES (:id, :project_id, :name, :metadata, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events of a project, newest first, starting
// strictly after cursor (an event ID) when one is given.
func (s *Store) ListEvents(ctx context.Context, projectID, cursor string, limit int) ([]model.Event, error) {
	var rows []eventRow
	var err error
	if cursor == "" {
		q := s.db.Rebind("SELECT * FROM events WHERE project_id = ? ORDER BY id DESC LIMIT ?")
		err = s.db.SelectContext(ctx, &rows, q, projectID, limit)
	} else {
		q := s.db.Rebind("SELECT * FROM events WHERE project_id = ? AND id < ? ORDER BY id DESC LIMIT ?")
		err = s.db.SelectContext(ctx, &rows, q, projectID, cursor, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]model.Event, len(rows))
	for i, r := range rows {
		events[i] = r.toModel()
	}
	return events, nil
}

// CountEventsByDay returns the number of project events per UTC day at or
// after since, oldest first. Days without events are absent.
func (s *Store) CountEventsByDay(ctx context.Context, projectID string, since time.Time) ([]model.DailyCount, error) {
	day, ok := dialectDay[s.driver]
	if !ok {
		return nil, fmt.Errorf("count events by day: unsupported driver %q", s.driver)
	}
	var rows []struct {
		Day   string `db:"day"`
		Count int    `db:"n"`
	}
	q := s.db.Rebind(fmt.Sprintf(
		"SELECT %[1]s AS day, COUNT(*) AS n FROM events WHERE project_id = ? AND created_at >= ? GROUP BY %[1]s ORDER BY %[1]s",
		day))
	if err := s.db.SelectContext(ctx, &rows, q, projectID, since.UTC()); err != nil {
		return nil, fmt.Errorf("count events by day: %w", err)
	}

	counts := make([]model.DailyCount, len(rows))
	for i, r := range rows {
		counts[i] = model.DailyCount{Date: r.Day, Count: r.Count}
	}
	return counts, nil
}
