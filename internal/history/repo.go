package history

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/statusboard/internal/models"
)

// ProjectRow is one indexed project.
type ProjectRow struct {
	ID       string
	Archived bool
	Title    string
	Details  string
	Status   string
	Progress int
	DueDate  string
	Steps    string
}

// SearchResult represents one search hit.
type SearchResult struct {
	ProjectID string `json:"projectId"`
	Archived  bool   `json:"archived"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
}

// RowFromProject flattens a project for indexing.
func RowFromProject(p models.Project, archived bool) ProjectRow {
	texts := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		texts = append(texts, s.Text)
	}
	return ProjectRow{
		ID:       p.ID,
		Archived: archived,
		Title:    p.Title,
		Details:  p.Details,
		Status:   string(p.Status),
		Progress: p.Progress,
		DueDate:  p.DueDate,
		Steps:    strings.Join(texts, "\n"),
	}
}

// ReplaceSet swaps the indexed rows for one project set and records the
// checksum of the store content they came from, in a single transaction.
func (db *DB) ReplaceSet(key, checksum string, archived bool, projects []models.Project) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM projects WHERE archived = ?`, archived); err != nil {
		return fmt.Errorf("history: clear set: %w", err)
	}
	ftsClear(tx, archived)

	if len(projects) > 0 {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO projects (id, archived, title, details, status, progress, due_date, steps)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("history: prepare project insert: %w", err)
		}
		defer stmt.Close()
		for _, p := range projects {
			row := RowFromProject(p, archived)
			if _, err := stmt.Exec(row.ID, row.Archived, row.Title, row.Details, row.Status, row.Progress, row.DueDate, row.Steps); err != nil {
				return fmt.Errorf("history: insert project: %w", err)
			}
			if err := ftsUpsert(tx, row); err != nil {
				return err
			}
		}
	}

	_, err = tx.Exec(`
		INSERT INTO snapshots (key, checksum, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, key, checksum, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("history: upsert snapshot: %w", err)
	}

	return tx.Commit()
}

// GetChecksum returns the indexed checksum for a store key, or empty string if not indexed.
func (db *DB) GetChecksum(key string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM snapshots WHERE key = ?`, key).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("history: get checksum: %w", err)
	}
	return cs, nil
}

// CountProjects returns the number of indexed projects in one set.
func (db *DB) CountProjects(archived bool) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM projects WHERE archived = ?`, archived).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count projects: %w", err)
	}
	return n, nil
}
