package history

import (
	"fmt"
	"time"
)

// EventKind names a lifecycle event.
type EventKind string

// Lifecycle events.
const (
	EventCreated    EventKind = "project_created"
	EventUpdated    EventKind = "project_updated"
	EventDeleted    EventKind = "project_deleted"
	EventStepToggle EventKind = "step_toggled"
	EventCompleted  EventKind = "project_completed"
	EventArchived   EventKind = "project_archived"
	EventUnarchived EventKind = "project_unarchived"
	EventReset      EventKind = "project_reset"
	EventImported   EventKind = "projects_imported"
)

// Event is one activity log entry.
type Event struct {
	ID        int64     `json:"id"`
	ProjectID string    `json:"projectId"`
	Kind      EventKind `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// LogEvent appends an event. A zero CreatedAt is stamped with the current time.
func (db *DB) LogEvent(e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`INSERT INTO events (project_id, kind, message, created_at) VALUES (?, ?, ?, ?)`,
		e.ProjectID, string(e.Kind), e.Message, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("history: log event: %w", err)
	}
	return nil
}

// Events returns the newest events first. An empty projectID returns events
// for every project.
func (db *DB) Events(projectID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, project_id, kind, message, created_at FROM events`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var kind string
		if err := rows.Scan(&e.ID, &e.ProjectID, &kind, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = EventKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}
