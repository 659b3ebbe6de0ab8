package storage

import (
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// CommandLogEntry is the persisted transcript of one processed command.
// Rows are insert-only.
type CommandLogEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	Command    string    `json:"command"`
	Action     string    `json:"action"`
	Source     string    `json:"source"`
	Payload    string    `json:"payload"`
	Steps      string    `json:"steps"`
	Result     string    `json:"result"`
	Status     string    `json:"status"`
	DurationMS int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SaveCommandLog inserts one transcript row. A missing ID is minted here so
// callers outside the engine can log directly.
func (s *Store) SaveCommandLog(entry *CommandLogEntry) error {
	if entry.ID == "" {
		entry.ID = strings.ToLower(ulid.Make().String())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO command_log (id, user_id, user_name, command, action, source, payload, steps, result, status, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		entry.ID,
		entry.UserID,
		entry.UserName,
		entry.Command,
		entry.Action,
		entry.Source,
		orDefault(entry.Payload, "{}"),
		orDefault(entry.Steps, "[]"),
		orDefault(entry.Result, "{}"),
		entry.Status,
		entry.DurationMS,
		entry.CreatedAt.Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return err
	}

	s.notify(Event{
		Type:      EventCommandLogged,
		EntityID:  entry.ID,
		Data:      map[string]any{"action": entry.Action, "status": entry.Status},
		Timestamp: time.Now(),
	})
	return nil
}

// GetCommandLog retrieves one transcript by ID.
func (s *Store) GetCommandLog(id string) (*CommandLogEntry, error) {
	query := `
		SELECT id, user_id, user_name, command, action, source, payload, steps, result, status, duration_ms, created_at
		FROM command_log WHERE id = ?
	`
	entry, err := scanCommandLog(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return entry, err
}

// RecentCommandLogs returns the newest transcripts, most recent first.
func (s *Store) RecentCommandLogs(limit int) ([]*CommandLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, user_name, command, action, source, payload, steps, result, status, duration_ms, created_at
		FROM command_log ORDER BY created_at DESC, id DESC LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*CommandLogEntry
	for rows.Next() {
		entry, err := scanCommandLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountCommandLogs returns the total number of persisted transcripts.
func (s *Store) CountCommandLogs() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM command_log").Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommandLog(row rowScanner) (*CommandLogEntry, error) {
	var entry CommandLogEntry
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.UserName,
		&entry.Command,
		&entry.Action,
		&entry.Source,
		&entry.Payload,
		&entry.Steps,
		&entry.Result,
		&entry.Status,
		&entry.DurationMS,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
