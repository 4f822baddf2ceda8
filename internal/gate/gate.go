// Package gate decides whether a step's completion flag may be flipped.
package gate

import "github.com/starford/statusboard/internal/models"

// Denial reasons.
const (
	ReasonDependenciesUnmet     = "project dependencies not met"
	ReasonSubtasksIncomplete    = "subtasks incomplete"
	ReasonSubSubtasksIncomplete = "sub-subtasks incomplete"
	ReasonStepNotFound          = "step not found"
)

// Decision is the outcome of a toggle check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the permissive decision.
var Allow = Decision{Allowed: true}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// DependencyChecker reports whether a project is blocked by dependencies.
type DependencyChecker interface {
	HasUnmetDependencies(p *models.Project) bool
}

// CanToggleStep checks whether the step with stepID may be toggled.
//
// Un-completing a step is always allowed. Completing one requires the
// project's dependencies to be met and, for steps with children, every
// descendant to be completed already. A child id that does not resolve
// counts as incomplete.
func CanToggleStep(p *models.Project, stepID string, deps DependencyChecker) Decision {
	step, ok := p.Step(stepID)
	if !ok {
		return deny(ReasonStepNotFound)
	}
	if step.Completed {
		return Allow
	}

	if deps != nil && deps.HasUnmetDependencies(p) {
		return deny(ReasonDependenciesUnmet)
	}

	switch step.Level {
	case models.LevelParent:
		for _, childID := range step.Subtasks {
			child, ok := p.Step(childID)
			if !ok || !child.Completed || !allComplete(p, child.Subtasks) {
				return deny(ReasonSubtasksIncomplete)
			}
		}
	case models.LevelSubtask:
		if !allComplete(p, step.Subtasks) {
			return deny(ReasonSubSubtasksIncomplete)
		}
	}
	return Allow
}

func allComplete(p *models.Project, ids []string) bool {
	for _, id := range ids {
		s, ok := p.Step(id)
		if !ok || !s.Completed {
			return false
		}
	}
	return true
}
