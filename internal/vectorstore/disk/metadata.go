package disk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"loanquery/internal/domain"
)

const createDocs = `CREATE TABLE IF NOT EXISTS docs (
	position INTEGER PRIMARY KEY,
	loan_id  TEXT NOT NULL,
	content  TEXT NOT NULL,
	meta     TEXT NOT NULL
)`

func writeMetadata(ctx context.Context, path string, chunks []domain.Chunk) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, createDocs); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO docs (position, loan_id, content, meta) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, c := range chunks {
		meta, err := json.Marshal(c.Record)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, i, c.ID, c.Text, string(meta)); err != nil {
			return fmt.Errorf("insert position %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// readMetadata returns the chunks ordered by position. Positions must be
// contiguous from zero.
func readMetadata(ctx context.Context, path string) ([]domain.Chunk, error) {
	db, err := sql.Open("sqlite3", "file:"+filepath.ToSlash(path)+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT position, loan_id, content, meta FROM docs ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var (
			c    domain.Chunk
			meta string
		)
		if err := rows.Scan(&c.Position, &c.ID, &c.Text, &meta); err != nil {
			return nil, err
		}
		if c.Position != len(chunks) {
			return nil, fmt.Errorf("metadata position %d out of sequence at row %d", c.Position, len(chunks))
		}
		if err := json.Unmarshal([]byte(meta), &c.Record); err != nil {
			return nil, fmt.Errorf("metadata position %d: %w", c.Position, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
