// Package parser converts the line-oriented step notation into a step
// hierarchy and back.
//
// Notation: a plain line is a parent step, a line prefixed with "+" is a
// subtask of the latest parent, and a line prefixed with "++" is a
// sub-subtask of the latest subtask. Lines that cannot attach to an
// ancestor are dropped.
package parser

import (
	"strings"

	"github.com/google/uuid"

	"github.com/starford/statusboard/internal/models"
)

const (
	subtaskPrefix    = "+"
	subSubtaskPrefix = "++"
)

// IDFunc returns a fresh step id.
type IDFunc func() string

// NewStepID is the default IDFunc.
func NewStepID() string {
	return "step-" + uuid.NewString()
}

// ParseSteps parses text into a flat, depth-first list of steps. Every
// returned step is incomplete; use Reconcile to carry state over from a
// previous version.
func ParseSteps(text string, newID IDFunc) []models.Step {
	if newID == nil {
		newID = NewStepID
	}

	var steps []models.Step
	currentParent, currentSubtask := -1, -1

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, subSubtaskPrefix):
			body := strings.TrimSpace(strings.TrimPrefix(line, subSubtaskPrefix))
			if body == "" || currentSubtask < 0 {
				continue
			}
			step := models.Step{
				ID:           newID(),
				Text:         body,
				Level:        models.LevelSubSubtask,
				ParentID:     steps[currentSubtask].ID,
				RootParentID: steps[currentParent].ID,
			}
			steps[currentSubtask].Subtasks = append(steps[currentSubtask].Subtasks, step.ID)
			steps = append(steps, step)

		case strings.HasPrefix(line, subtaskPrefix):
			body := strings.TrimSpace(strings.TrimPrefix(line, subtaskPrefix))
			if body == "" || currentParent < 0 {
				continue
			}
			step := models.Step{
				ID:       newID(),
				Text:     body,
				Level:    models.LevelSubtask,
				ParentID: steps[currentParent].ID,
			}
			steps[currentParent].Subtasks = append(steps[currentParent].Subtasks, step.ID)
			steps = append(steps, step)
			currentSubtask = len(steps) - 1

		default:
			steps = append(steps, models.Step{
				ID:    newID(),
				Text:  line,
				Level: models.LevelParent,
			})
			currentParent = len(steps) - 1
			currentSubtask = -1
		}
	}
	return steps
}

// FormatSteps renders steps back into the notation accepted by ParseSteps.
func FormatSteps(steps []models.Step) string {
	lines := make([]string, 0, len(steps))
	for _, s := range steps {
		switch s.Level {
		case models.LevelSubSubtask:
			lines = append(lines, subSubtaskPrefix+" "+s.Text)
		case models.LevelSubtask:
			lines = append(lines, subtaskPrefix+" "+s.Text)
		default:
			lines = append(lines, s.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// Reconcile carries completion state from prev into next, matching steps by
// exact text. With duplicate texts the first match in prev wins, so every
// duplicate inherits the same flag.
//
// A matched step also takes over the previous id unless an earlier step in
// next already claimed it, which keeps task dependencies stable across edits.
func Reconcile(prev, next []models.Step) []models.Step {
	if len(prev) == 0 {
		return next
	}

	claimed := make(map[string]bool, len(prev))
	remap := make(map[string]string)

	for i := range next {
		first := -1
		unclaimed := -1
		for j := range prev {
			if prev[j].Text != next[i].Text {
				continue
			}
			if first < 0 {
				first = j
			}
			if !claimed[prev[j].ID] {
				unclaimed = j
				break
			}
		}
		if first < 0 {
			continue
		}
		next[i].Completed = prev[first].Completed
		if unclaimed >= 0 {
			claimed[prev[unclaimed].ID] = true
			remap[next[i].ID] = prev[unclaimed].ID
		}
	}

	if len(remap) == 0 {
		return next
	}
	rewrite := func(id string) string {
		if old, ok := remap[id]; ok {
			return old
		}
		return id
	}
	for i := range next {
		next[i].ID = rewrite(next[i].ID)
		next[i].ParentID = rewrite(next[i].ParentID)
		next[i].RootParentID = rewrite(next[i].RootParentID)
		for k, child := range next[i].Subtasks {
			next[i].Subtasks[k] = rewrite(child)
		}
	}
	return next
}
