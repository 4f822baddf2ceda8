package projectstore_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/statusboard/internal/apperr"
	"github.com/starford/statusboard/internal/models"
	"github.com/starford/statusboard/internal/projectstore"
)

func TestExportImport(t *testing.T) {
	now := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	data, err := projectstore.EncodeExport([]models.Project{sample("a")}, now)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	require.Equal(t, "1.0", env["version"])
	require.Equal(t, projectstore.ExportSource, env["source"])
	require.Equal(t, "2026-04-02T08:30:00Z", env["exportDate"])

	projects, err := projectstore.DecodeImport(data)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	require.Equal(t, "a", projects[0].ID)
	require.Equal(t, 50, projects[0].Progress)
}

func TestEncodeArchiveExport(t *testing.T) {
	data, err := projectstore.EncodeArchiveExport(nil, time.Now())
	require.NoError(t, err)
	var env projectstore.ArchiveExport
	require.NoError(t, json.Unmarshal(data, &env))
	require.NotNil(t, env.ArchivedProjects)
	require.Empty(t, env.ArchivedProjects)
}

func TestDecodeImport_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":          `nope`,
		"array at top":      `[{"id":"a"}]`,
		"missing projects":  `{"archivedProjects":[]}`,
		"projects not list": `{"projects":{"id":"a"}}`,
		"future version":    `{"projects":[],"version":"2.0"}`,
		"numeric version":   `{"projects":[],"version":1}`,
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := projectstore.DecodeImport([]byte(blob))
			require.ErrorIs(t, err, apperr.ErrImportFormat)
		})
	}
}

func TestDecodeImport_AcceptsMissingVersion(t *testing.T) {
	projects, err := projectstore.DecodeImport([]byte(`{"projects":[{"id":7,"title":"x","status":"on-hold"}]}`))
	require.NoError(t, err)
	require.Equal(t, "7", projects[0].ID)
	require.NotNil(t, projects[0].Steps)
}
