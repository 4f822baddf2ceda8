package tracker

import (
	"context"
	"math"

	"github.com/starford/statusboard/internal/gate"
	"github.com/starford/statusboard/internal/models"
)

// Stats summarizes the dashboard header.
type Stats struct {
	Total          int                   `json:"total"`
	ByStatus       map[models.Status]int `json:"byStatus"`
	CompletionRate int                   `json:"completionRate"`
	Archive        ArchiveStats          `json:"archive"`
}

// ArchiveStats counts archived projects by when they were archived.
type ArchiveStats struct {
	Total     int `json:"total"`
	ThisMonth int `json:"thisMonth"`
	ThisYear  int `json:"thisYear"`
}

// Stats counts active projects by status and archived projects by period.
// The completion rate is the rounded share of active projects whose status
// is completed.
func (s *Service) Stats(_ context.Context) Stats {
	s.mu.Lock()
	active, archived := s.repo.LoadActive(), s.repo.LoadArchived()
	now := s.now()
	s.mu.Unlock()

	st := Stats{Total: len(active), ByStatus: make(map[models.Status]int, len(models.Statuses))}
	for _, status := range models.Statuses {
		st.ByStatus[status] = 0
	}
	for _, p := range active {
		st.ByStatus[p.Status]++
	}
	if st.Total > 0 {
		st.CompletionRate = int(math.Round(float64(st.ByStatus[models.StatusCompleted]) * 100 / float64(st.Total)))
	}

	st.Archive.Total = len(archived)
	for _, p := range archived {
		if p.ArchivedAt == nil {
			continue
		}
		at := p.ArchivedAt.In(now.Location())
		if at.Year() != now.Year() {
			continue
		}
		st.Archive.ThisYear++
		if at.Month() == now.Month() {
			st.Archive.ThisMonth++
		}
	}
	return st
}

// DenialMessage turns a gate reason into the message shown to the user.
func DenialMessage(reason string) string {
	switch reason {
	case gate.ReasonDependenciesUnmet:
		return "Cannot complete tasks while project dependencies are not met. Complete the dependencies first."
	case gate.ReasonSubtasksIncomplete:
		return "Cannot complete parent task until all subtasks and sub-subtasks are completed."
	case gate.ReasonSubSubtasksIncomplete:
		return "Cannot complete subtask until all sub-subtasks are completed."
	case gate.ReasonStepNotFound:
		return "Step not found."
	}
	return reason
}
