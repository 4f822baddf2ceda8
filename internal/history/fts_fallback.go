//go:build !sqlite_fts5

package history

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE over the projects table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ ProjectRow) error { return nil }

func ftsClear(_ *sql.Tx, _ bool) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, archived, title, substr(details || ' ' || steps, 1, 200)
		FROM projects
		WHERE title LIKE ? OR details LIKE ? OR steps LIKE ?
		ORDER BY archived, title
		LIMIT ?
	`, like, like, like, limit)
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
