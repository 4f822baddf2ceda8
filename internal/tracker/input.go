package tracker

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/statusboard/internal/apperr"
	"github.com/starford/statusboard/internal/models"
)

// ProjectInput is the editable part of a project as submitted by a form.
// Steps holds the plain-text step notation.
type ProjectInput struct {
	Title        string        `json:"title"`
	Details      string        `json:"details"`
	StartDate    string        `json:"startDate"`
	DueDate      string        `json:"dueDate"`
	Status       models.Status `json:"status"`
	IsRecurring  bool          `json:"isRecurring"`
	Dependencies []string      `json:"dependencies"`
	Steps        string        `json:"steps"`
}

func (in *ProjectInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Details = strings.TrimSpace(in.Details)
	in.StartDate = strings.TrimSpace(in.StartDate)
	in.DueDate = strings.TrimSpace(in.DueDate)
	if in.Status == "" {
		in.Status = models.StatusNotStarted
	}
	deps := make([]string, 0, len(in.Dependencies))
	for _, d := range in.Dependencies {
		if d = strings.TrimSpace(d); d != "" {
			deps = append(deps, d)
		}
	}
	in.Dependencies = deps
}

// Validate checks required fields, date order, status and dependency syntax.
func (in ProjectInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required),
		validation.Field(&in.StartDate, validation.Required, validation.Date(models.DateLayout)),
		validation.Field(&in.DueDate,
			validation.Required,
			validation.Date(models.DateLayout),
			validation.By(in.notBeforeStart),
		),
		validation.Field(&in.Status, validation.By(validStatus)),
		validation.Field(&in.Dependencies, validation.Each(validation.By(validRef))),
	)
}

func (in ProjectInput) notBeforeStart(value interface{}) error {
	due, err := time.Parse(models.DateLayout, value.(string))
	if err != nil {
		return nil
	}
	start, err := time.Parse(models.DateLayout, in.StartDate)
	if err != nil {
		return nil
	}
	if due.Before(start) {
		return errors.New("start date cannot be after due date")
	}
	return nil
}

func validStatus(value interface{}) error {
	if s, _ := value.(models.Status); !s.Valid() {
		return errors.New("must be one of in-progress, not-started, on-hold, completed")
	}
	return nil
}

func validRef(value interface{}) error {
	s, _ := value.(string)
	if !models.ParseDependencyRef(s).Valid() {
		return errors.New("malformed dependency reference")
	}
	return nil
}

// validate normalizes in and converts rule failures to an
// apperr.ValidationError. selfID, when set, rejects references to the
// project being edited.
func (in *ProjectInput) validate(selfID string) error {
	in.normalize()
	fields := map[string]string{}
	if err := in.Validate(); err != nil {
		var verrs validation.Errors
		if !errors.As(err, &verrs) {
			return err
		}
		for k, v := range verrs {
			fields[k] = v.Error()
		}
	}
	if selfID != "" {
		for _, d := range in.Dependencies {
			if models.ParseDependencyRef(d).ProjectID == selfID {
				fields["dependencies"] = "a project cannot depend on itself"
				break
			}
		}
	}
	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

func (in ProjectInput) refs() []models.DependencyRef {
	out := make([]models.DependencyRef, 0, len(in.Dependencies))
	for _, d := range in.Dependencies {
		out = append(out, models.ParseDependencyRef(d))
	}
	return out
}
