package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/calcutta/console/internal/models"
)

// ErrNoPreference is returned when a user has not saved a view yet.
var ErrNoPreference = errors.New("no saved preference")

// Store persists console-owned state: saved view preferences and browser
// error reports.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

// Preference returns the raw saved payload for a view.
func (s *Store) Preference(ctx context.Context, userID int64, view string) ([]byte, error) {
	var payload string
	err := s.DB.QueryRowContext(ctx,
		"SELECT payload FROM view_preferences WHERE user_id = ? AND view_name = ?",
		userID, view,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPreference
	}
	if err != nil {
		return nil, fmt.Errorf("select preference: %w", err)
	}
	return []byte(payload), nil
}

// SavePreference upserts the payload for a view.
func (s *Store) SavePreference(ctx context.Context, userID int64, view string, payload []byte) error {
	_, err := s.DB.ExecContext(ctx,
		"REPLACE INTO view_preferences (user_id, view_name, payload, updated_at) VALUES (?, ?, ?, ?)",
		userID, view, string(payload), s.now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save preference: %w", err)
	}
	return nil
}

// DeletePreference removes a saved view.
func (s *Store) DeletePreference(ctx context.Context, userID int64, view string) error {
	_, err := s.DB.ExecContext(ctx,
		"DELETE FROM view_preferences WHERE user_id = ? AND view_name = ?",
		userID, view,
	)
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	return nil
}

// RecordClientError stores a browser error report.
func (s *Store) RecordClientError(ctx context.Context, e models.ClientError) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = s.now().UTC().Unix()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO client_errors (id, user_id, message, stack, component_stack, url, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Message, e.Stack, e.ComponentStack, e.URL, e.UserAgent, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert client error: %w", err)
	}
	return nil
}

// RecentClientErrors returns the newest reports first.
func (s *Store) RecentClientErrors(ctx context.Context, limit int) ([]models.ClientError, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, message, stack, component_stack, url, user_agent, created_at
		FROM client_errors ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select client errors: %w", err)
	}
	defer rows.Close()

	out := []models.ClientError{}
	for rows.Next() {
		var e models.ClientError
		if err := rows.Scan(&e.ID, &e.UserID, &e.Message, &e.Stack, &e.ComponentStack, &e.URL, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client error: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
