// Package lifecycle derives progress and applies the completion, archive
// and recurring-reset transitions to a project.
package lifecycle

import (
	"math"
	"time"

	"github.com/starford/statusboard/internal/gate"
	"github.com/starford/statusboard/internal/models"
)

// DefaultCompletionDelay separates completing the last step from the
// archive or reset that follows.
const DefaultCompletionDelay = 1500 * time.Millisecond

// Progress returns the rounded percentage of completed steps across every
// level. A project without steps is at 0.
func Progress(steps []models.Step) int {
	if len(steps) == 0 {
		return 0
	}
	done := 0
	for _, s := range steps {
		if s.Completed {
			done++
		}
	}
	return int(math.Round(float64(done) * 100 / float64(len(steps))))
}

// AllComplete reports whether steps is non-empty and fully completed.
func AllComplete(steps []models.Step) bool {
	if len(steps) == 0 {
		return false
	}
	for _, s := range steps {
		if !s.Completed {
			return false
		}
	}
	return true
}

// Effect is a follow-up action the caller must schedule after a toggle.
type Effect int

// Toggle follow-up effects.
const (
	EffectNone Effect = iota
	// EffectArchive moves a finished one-off project to the archive.
	EffectArchive
	// EffectReset restarts a finished recurring project.
	EffectReset
)

func (e Effect) String() string {
	switch e {
	case EffectArchive:
		return "archive"
	case EffectReset:
		return "reset"
	}
	return "none"
}

// ToggleResult describes what Toggle did.
type ToggleResult struct {
	Decision  gate.Decision
	Completed bool
	Effect    Effect
}

// Toggle flips a step's completion if the gate allows it, recomputes
// progress and decides the follow-up effect. A finished one-off project is
// marked completed immediately; its archival is left to the caller.
// Un-completing a step of a completed project moves it back to in-progress.
func Toggle(p *models.Project, stepID string, deps gate.DependencyChecker) ToggleResult {
	d := gate.CanToggleStep(p, stepID, deps)
	if !d.Allowed {
		return ToggleResult{Decision: d}
	}

	step, _ := p.Step(stepID)
	step.Completed = !step.Completed
	res := ToggleResult{Decision: d, Completed: step.Completed}

	p.Progress = Progress(p.Steps)
	if !step.Completed && p.Status == models.StatusCompleted {
		// Reopened inside the completion window, before the archive ran.
		p.Status = models.StatusInProgress
	}
	if step.Completed && AllComplete(p.Steps) {
		if p.IsRecurring {
			res.Effect = EffectReset
		} else {
			p.Status = models.StatusCompleted
			res.Effect = EffectArchive
		}
	}
	return res
}

// ResetRecurring clears every step and starts the next cycle.
func ResetRecurring(p *models.Project) {
	for i := range p.Steps {
		p.Steps[i].Completed = false
	}
	p.Progress = 0
	p.Status = models.StatusInProgress
}

// Archive stamps p as archived at now.
func Archive(p *models.Project, now time.Time) {
	p.ArchivedAt = &now
}

// Unarchive returns p to work. ArchivedAt is kept as history.
func Unarchive(p *models.Project, now time.Time) {
	p.Status = models.StatusInProgress
	p.UnarchivedAt = &now
}

// ArchiveOnSave reports whether saving a project with status next should
// archive it. Only a transition into completed archives; recurring projects
// are archived too when the user sets the status explicitly.
func ArchiveOnSave(prev models.Status, next models.Status, created bool) bool {
	if next != models.StatusCompleted {
		return false
	}
	return created || prev != models.StatusCompleted
}

// Normalize recomputes derived fields after a load or an edit.
func Normalize(p *models.Project) {
	p.Progress = Progress(p.Steps)
	if p.Dependencies == nil {
		p.Dependencies = []models.DependencyRef{}
	}
	if p.Steps == nil {
		p.Steps = []models.Step{}
	}
}
