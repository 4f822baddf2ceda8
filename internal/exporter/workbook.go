// Package exporter renders the project sets as an Excel workbook.
package exporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/starford/statusboard/internal/models"
)

// Sheet names.
const (
	SheetActive   = "Active"
	SheetArchived = "Archived"
	SheetSteps    = "Steps"
)

var projectHeaders = []string{
	"ID", "Title", "Status", "Start date", "Due date", "Progress",
	"Recurring", "Dependencies", "Steps", "Created", "Archived",
}

var stepHeaders = []string{"Project ID", "Project", "Step", "Level", "Completed", "Archived project"}

// Workbook builds a workbook with one sheet per set and a flat step sheet.
// The caller closes the returned file.
func Workbook(active, archived []models.Project) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetActive); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetArchived); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetSteps); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	if err := writeProjects(f, SheetActive, active, headerStyle); err != nil {
		return nil, err
	}
	if err := writeProjects(f, SheetArchived, archived, headerStyle); err != nil {
		return nil, err
	}

	if err := writeRow(f, SheetSteps, 1, toRow(stepHeaders)); err != nil {
		return nil, err
	}
	_ = f.SetRowStyle(SheetSteps, 1, 1, headerStyle)
	row := 2
	for _, set := range []struct {
		projects []models.Project
		archived bool
	}{{active, false}, {archived, true}} {
		for _, p := range set.projects {
			for _, s := range p.Steps {
				text := strings.Repeat("  ", s.Level) + s.Text
				if err := writeRow(f, SheetSteps, row, []interface{}{p.ID, p.Title, text, levelName(s.Level), s.Completed, set.archived}); err != nil {
					return nil, err
				}
				row++
			}
		}
	}
	_ = f.SetColWidth(SheetSteps, "A", "A", 24)
	_ = f.SetColWidth(SheetSteps, "B", "C", 40)
	_ = f.SetColWidth(SheetSteps, "D", "F", 14)

	return f, nil
}

// Write renders the workbook to w.
func Write(w io.Writer, active, archived []models.Project) error {
	f, err := Workbook(active, archived)
	if err != nil {
		return fmt.Errorf("exporter: build workbook: %w", err)
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("exporter: write workbook: %w", err)
	}
	return nil
}

func writeProjects(f *excelize.File, sheet string, projects []models.Project, headerStyle int) error {
	if err := writeRow(f, sheet, 1, toRow(projectHeaders)); err != nil {
		return err
	}
	_ = f.SetRowStyle(sheet, 1, 1, headerStyle)

	for i, p := range projects {
		deps := make([]string, len(p.Dependencies))
		for j, d := range p.Dependencies {
			deps[j] = d.String()
		}
		archivedAt := ""
		if p.ArchivedAt != nil {
			archivedAt = p.ArchivedAt.Format(models.DateLayout)
		}
		values := []interface{}{
			p.ID, p.Title, string(p.Status), p.StartDate, p.DueDate,
			fmt.Sprintf("%d%%", p.Progress), p.IsRecurring, strings.Join(deps, ", "),
			len(p.Steps), p.CreatedAt.Format(models.DateLayout), archivedAt,
		}
		if err := writeRow(f, sheet, i+2, values); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 24)
	_ = f.SetColWidth(sheet, "B", "B", 40)
	_ = f.SetColWidth(sheet, "C", "K", 15)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toRow(headers []string) []interface{} {
	out := make([]interface{}, len(headers))
	for i, h := range headers {
		out[i] = h
	}
	return out
}

func levelName(level int) string {
	switch level {
	case models.LevelSubtask:
		return "subtask"
	case models.LevelSubSubtask:
		return "sub-subtask"
	}
	return "task"
}
