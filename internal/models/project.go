// Package models defines the domain types for statusboard.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for start and due dates.
const DateLayout = "2006-01-02"

// Status is the lifecycle state of a project.
type Status string

// Project statuses.
const (
	StatusNotStarted Status = "not-started"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusOnHold     Status = "on-hold"
)

// Statuses lists every known status in display order.
var Statuses = []Status{StatusInProgress, StatusNotStarted, StatusOnHold, StatusCompleted}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusOnHold:
		return true
	}
	return false
}

// Priority orders statuses for the active list. Unknown statuses sort last.
func (s Status) Priority() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusNotStarted:
		return 2
	case StatusOnHold:
		return 3
	case StatusCompleted:
		return 4
	}
	return 999
}

// Project is a tracked unit of work with a step hierarchy and dependencies.
type Project struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Details      string          `json:"details"`
	StartDate    string          `json:"startDate"`
	DueDate      string          `json:"dueDate"`
	Status       Status          `json:"status"`
	IsRecurring  bool            `json:"isRecurring"`
	Dependencies []DependencyRef `json:"dependencies"`
	Steps        []Step          `json:"steps"`
	Progress     int             `json:"progress"`
	CreatedAt    time.Time       `json:"createdAt"`
	ArchivedAt   *time.Time      `json:"archivedAt,omitempty"`
	UnarchivedAt *time.Time      `json:"unarchivedAt,omitempty"`
}

// StepIndex returns the position of the step with the given id, or -1.
func (p *Project) StepIndex(id string) int {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return i
		}
	}
	return -1
}

// Step returns the step with the given id.
func (p *Project) Step(id string) (*Step, bool) {
	i := p.StepIndex(id)
	if i < 0 {
		return nil, false
	}
	return &p.Steps[i], true
}

// Clone returns a deep copy of p.
func (p Project) Clone() Project {
	out := p
	out.Dependencies = append([]DependencyRef(nil), p.Dependencies...)
	out.Steps = make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		out.Steps[i] = s.Clone()
	}
	if p.ArchivedAt != nil {
		t := *p.ArchivedAt
		out.ArchivedAt = &t
	}
	if p.UnarchivedAt != nil {
		t := *p.UnarchivedAt
		out.UnarchivedAt = &t
	}
	return out
}

// UnmarshalJSON accepts numeric ids written by older dashboards.
func (p *Project) UnmarshalJSON(data []byte) error {
	type alias Project
	aux := struct {
		ID json.RawMessage `json:"id"`
		*alias
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := flexibleID(aux.ID)
	if err != nil {
		return fmt.Errorf("project id: %w", err)
	}
	p.ID = id
	return nil
}

// flexibleID decodes a JSON string or number into its string form.
func flexibleID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
