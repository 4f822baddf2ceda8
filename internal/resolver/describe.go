package resolver

import "github.com/starford/statusboard/internal/models"

// DependencyStatus is one row of a project's dependency panel.
type DependencyStatus struct {
	Ref          string        `json:"ref"`
	Kind         string        `json:"kind"`
	Found        bool          `json:"found"`
	Satisfied    bool          `json:"satisfied"`
	Title        string        `json:"title,omitempty"`
	ProjectTitle string        `json:"projectTitle,omitempty"`
	Status       models.Status `json:"status,omitempty"`
	Completed    bool          `json:"completed"`
	Archived     bool          `json:"archived"`
}

// Report summarizes every dependency of a project.
type Report struct {
	ProjectID    string             `json:"projectId"`
	Blocked      bool               `json:"blocked"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// Describe resolves each dependency of p for display. Unresolvable
// references are reported with Found=false and always count as blocking.
func (c *Catalog) Describe(p *models.Project) Report {
	out := Report{ProjectID: p.ID, Dependencies: make([]DependencyStatus, 0, len(p.Dependencies))}
	for _, ref := range p.Dependencies {
		row := DependencyStatus{
			Ref:       ref.String(),
			Kind:      ref.Kind.String(),
			Satisfied: c.IsSatisfied(ref),
		}
		if owner, archived, ok := c.Lookup(ref.ProjectID); ok {
			row.Archived = archived
			switch ref.Kind {
			case models.RefTask:
				if s, ok := owner.Step(ref.StepID); ok {
					row.Found = true
					row.Title = s.Text
					row.Completed = s.Completed
					row.ProjectTitle = owner.Title
				}
			default:
				row.Found = true
				row.Title = owner.Title
				row.Status = owner.Status
				row.Completed = owner.Status == models.StatusCompleted
			}
		}
		if !row.Satisfied {
			out.Blocked = true
		}
		out.Dependencies = append(out.Dependencies, row)
	}
	return out
}
