//go:build sqlite_fts5

package history

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS projects_fts USING fts5(
			id UNINDEXED,
			archived UNINDEXED,
			title,
			details,
			steps,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, row ProjectRow) error {
	_, err := tx.Exec(`INSERT INTO projects_fts (id, archived, title, details, steps) VALUES (?, ?, ?, ?, ?)`,
		row.ID, row.Archived, row.Title, row.Details, row.Steps)
	if err != nil {
		return fmt.Errorf("history: upsert fts: %w", err)
	}
	return nil
}

func ftsClear(tx *sql.Tx, archived bool) {
	_, _ = tx.Exec(`DELETE FROM projects_fts WHERE archived = ?`, archived)
}

// Search performs an FTS5 full-text search and returns matching projects with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id,
		       archived,
		       title,
		       snippet(projects_fts, -1, '<b>', '</b>', '...', 32)
		FROM projects_fts
		WHERE projects_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("history: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ProjectID, &r.Archived, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
