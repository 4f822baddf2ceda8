// Package resolver decides whether a project's dependencies are satisfied.
//
// Resolution is fail-closed: a reference to a project or step that cannot
// be found is unmet. Nothing is cached; callers build a Catalog from the
// current store snapshot for each decision.
package resolver

import "github.com/starford/statusboard/internal/models"

// Catalog is a read-only view over the active and archived project sets.
type Catalog struct {
	active   map[string]*models.Project
	archived map[string]*models.Project
}

// NewCatalog indexes the given snapshots by id. The first project with a
// given id wins within each set.
func NewCatalog(active, archived []models.Project) *Catalog {
	return &Catalog{
		active:   index(active),
		archived: index(archived),
	}
}

func index(projects []models.Project) map[string]*models.Project {
	m := make(map[string]*models.Project, len(projects))
	for i := range projects {
		if _, dup := m[projects[i].ID]; !dup {
			m[projects[i].ID] = &projects[i]
		}
	}
	return m
}

// Lookup finds a project, active first, and reports whether it came from
// the archive.
func (c *Catalog) Lookup(id string) (p *models.Project, archived bool, ok bool) {
	if p, ok := c.active[id]; ok {
		return p, false, true
	}
	if p, ok := c.archived[id]; ok {
		return p, true, true
	}
	return nil, false, false
}

// IsSatisfied reports whether a single reference is met.
//
// A project reference is met when the project is active with status
// completed, or is absent from the active set but present in the archive.
// A task reference is met when the owning project exists in either set and
// the referenced step exists and is completed.
func (c *Catalog) IsSatisfied(ref models.DependencyRef) bool {
	switch ref.Kind {
	case models.RefProject:
		if p, ok := c.active[ref.ProjectID]; ok {
			return p.Status == models.StatusCompleted
		}
		_, ok := c.archived[ref.ProjectID]
		return ok
	case models.RefTask:
		p, _, ok := c.Lookup(ref.ProjectID)
		if !ok {
			return false
		}
		s, ok := p.Step(ref.StepID)
		return ok && s.Completed
	}
	return false
}

// HasUnmetDependencies reports whether any dependency of p is unmet.
func (c *Catalog) HasUnmetDependencies(p *models.Project) bool {
	for _, ref := range p.Dependencies {
		if !c.IsSatisfied(ref) {
			return true
		}
	}
	return false
}
