package models

import "strings"

// RefKind distinguishes the two dependency target shapes.
type RefKind int

// Dependency reference kinds.
const (
	RefProject RefKind = iota + 1
	RefTask
)

func (k RefKind) String() string {
	switch k {
	case RefProject:
		return "project"
	case RefTask:
		return "task"
	}
	return "unknown"
}

const (
	projectPrefix = "project:"
	taskPrefix    = "task:"
)

// DependencyRef points at another project or at one step of another project.
type DependencyRef struct {
	Kind      RefKind
	ProjectID string
	StepID    string
}

// ProjectRef references a whole project.
func ProjectRef(projectID string) DependencyRef {
	return DependencyRef{Kind: RefProject, ProjectID: projectID}
}

// TaskRef references a single step of a project.
func TaskRef(projectID, stepID string) DependencyRef {
	return DependencyRef{Kind: RefTask, ProjectID: projectID, StepID: stepID}
}

// ParseDependencyRef decodes the stored text form. It never fails: a bare id
// is the legacy project form, and a malformed task reference keeps whatever
// parts it has so that resolution treats it as unmet.
func ParseDependencyRef(s string) DependencyRef {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, taskPrefix):
		projectID, stepID, _ := strings.Cut(strings.TrimPrefix(s, taskPrefix), ":")
		return TaskRef(projectID, stepID)
	case strings.HasPrefix(s, projectPrefix):
		return ProjectRef(strings.TrimPrefix(s, projectPrefix))
	default:
		return ProjectRef(s)
	}
}

// Valid reports whether every id the reference needs is present.
func (r DependencyRef) Valid() bool {
	switch r.Kind {
	case RefProject:
		return r.ProjectID != ""
	case RefTask:
		return r.ProjectID != "" && r.StepID != ""
	}
	return false
}

// String returns the canonical text form.
func (r DependencyRef) String() string {
	if r.Kind == RefTask {
		return taskPrefix + r.ProjectID + ":" + r.StepID
	}
	return projectPrefix + r.ProjectID
}

// MarshalText implements encoding.TextMarshaler.
func (r DependencyRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *DependencyRef) UnmarshalText(text []byte) error {
	*r = ParseDependencyRef(string(text))
	return nil
}
