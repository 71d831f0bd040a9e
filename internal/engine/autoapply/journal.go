package autoapply

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Journal attempt outcomes.
const (
	JournalSent   = "sent"
	JournalFailed = "failed"
)

// JournalEntry is one recorded submission attempt.
type JournalEntry struct {
	ID             int64  `json:"id"`
	PendingID      string `json:"pending_id"`
	UserID         string `json:"user_id"`
	JobTitle       string `json:"job_title"`
	Company        string `json:"company,omitempty"`
	Method         string `json:"method"`
	Status         string `json:"status"`
	Recipient      string `json:"recipient,omitempty"`
	ConfirmationID string `json:"confirmation_id,omitempty"`
	Error          string `json:"error,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// Journal is a local append-only SQLite log of submission attempts. It is
// operational telemetry next to the authoritative Postgres rows: the
// delivery trail survives even when a Postgres write after the send fails.
// A nil Journal records nothing.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (or creates) the SQLite journal at path.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("journal: mkdir %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS submission_attempts (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		pending_id      TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		job_title       TEXT NOT NULL,
		company         TEXT,
		method          TEXT NOT NULL,
		status          TEXT NOT NULL,
		recipient       TEXT,
		confirmation_id TEXT,
		error           TEXT,
		created_at      TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: init schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordAttempt appends one attempt row.
func (j *Journal) RecordAttempt(ctx context.Context, e *JournalEntry) error {
	if j == nil || j.db == nil {
		return nil
	}
	if e.CreatedAt == "" {
		e.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO submission_attempts
		    (pending_id, user_id, job_title, company, method, status, recipient, confirmation_id, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.PendingID, e.UserID, e.JobTitle, e.Company, e.Method, e.Status,
		e.Recipient, e.ConfirmationID, e.Error, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// ListAttempts returns attempts newest first, optionally filtered by user
// and outcome.
func (j *Journal) ListAttempts(ctx context.Context, userID, status string, limit int) ([]JournalEntry, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, pending_id, user_id, job_title, company, method, status,
		        recipient, confirmation_id, error, created_at
		 FROM submission_attempts
		 WHERE (? = '' OR user_id = ?) AND (? = '' OR status = ?)
		 ORDER BY id DESC LIMIT ?`,
		userID, userID, status, status, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var company, recipient, confirmation, attemptErr sql.NullString
		if err := rows.Scan(&e.ID, &e.PendingID, &e.UserID, &e.JobTitle, &company,
			&e.Method, &e.Status, &recipient, &confirmation, &attemptErr, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Company = company.String
		e.Recipient = recipient.String
		e.ConfirmationID = confirmation.String
		e.Error = attemptErr.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
