package projectstore

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/starford/statusboard/internal/apperr"
	"github.com/starford/statusboard/internal/lifecycle"
	"github.com/starford/statusboard/internal/models"
)

// FormatVersion is written to exports and backups.
const FormatVersion = "1.0"

// ExportSource names the producer in export files.
const ExportSource = "Project Status Dashboard"

// Export is the file format for the active set.
type Export struct {
	Projects   []models.Project `json:"projects"`
	ExportDate time.Time        `json:"exportDate"`
	Version    string           `json:"version"`
	Source     string           `json:"source"`
}

// ArchiveExport is the file format for the archived set.
type ArchiveExport struct {
	ArchivedProjects []models.Project `json:"archivedProjects"`
	ExportDate       time.Time        `json:"exportDate"`
	Version          string           `json:"version"`
	Source           string           `json:"source"`
}

// EncodeExport renders the active set as an export file.
func EncodeExport(projects []models.Project, now time.Time) ([]byte, error) {
	if projects == nil {
		projects = []models.Project{}
	}
	return json.MarshalIndent(Export{
		Projects:   projects,
		ExportDate: now.UTC(),
		Version:    FormatVersion,
		Source:     ExportSource,
	}, "", "  ")
}

// EncodeArchiveExport renders the archived set as an export file.
func EncodeArchiveExport(projects []models.Project, now time.Time) ([]byte, error) {
	if projects == nil {
		projects = []models.Project{}
	}
	return json.MarshalIndent(ArchiveExport{
		ArchivedProjects: projects,
		ExportDate:       now.UTC(),
		Version:          FormatVersion,
		Source:           ExportSource,
	}, "", "  ")
}

// DecodeImport parses an export file. The blob must be a JSON object with a
// "projects" array; a version, when present, must be one this build reads.
func DecodeImport(data []byte) ([]models.Project, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &apperr.ImportFormatError{Reason: "not a JSON object"}
	}

	raw, ok := fields["projects"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return nil, &apperr.ImportFormatError{Reason: "missing projects array"}
	}

	if v, ok := fields["version"]; ok {
		var version string
		if err := json.Unmarshal(v, &version); err != nil || version != FormatVersion {
			return nil, &apperr.ImportFormatError{Reason: "unsupported version " + string(v)}
		}
	}

	var projects []models.Project
	if err := json.Unmarshal(raw, &projects); err != nil {
		return nil, &apperr.ImportFormatError{Reason: "malformed project: " + err.Error()}
	}
	if projects == nil {
		projects = []models.Project{}
	}
	for i := range projects {
		lifecycle.Normalize(&projects[i])
	}
	return projects, nil
}
