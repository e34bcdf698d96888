package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"funnelpulse/api/models"
)

// liveWindow is how recent a session's last_ping must be for the
// dashboard to count it as a live viewer.
const liveWindow = 2 * time.Minute

// SessionStore owns the Postgres sessions table. A row is inserted once
// per page_enter; afterwards only its last_ping column is ever touched
// (by the liveness pinger, every 30 seconds while the page is visible).
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// CreateSession inserts the session row and returns its record id, which
// the pinger targets for the lifetime of the session.
func (s *SessionStore) CreateSession(ctx context.Context, rec models.SessionRecord) (int64, error) {
	query := `
		INSERT INTO sessions (session_id, entered_at, last_ping, ip, country_code, country_name, city, region)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id;
	`
	var id int64
	err := s.db.QueryRowContext(ctx, query,
		rec.SessionID,
		rec.EnteredAt,
		rec.LastPing,
		rec.IP,
		rec.CountryCode,
		rec.CountryName,
		rec.City,
		rec.Region,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create session row: %w", err)
	}

	return id, nil
}

// TouchPing refreshes the session row's last_ping to now.
func (s *SessionStore) TouchPing(ctx context.Context, recordID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_ping = NOW() WHERE id = $1;`, recordID)
	if err != nil {
		return fmt.Errorf("failed to update last_ping: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session row %d not found", recordID)
	}
	return nil
}

// CountLiveSessions counts sessions pinged within the live window.
func (s *SessionStore) CountLiveSessions(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE last_ping >= NOW() - $1::interval;`,
		fmt.Sprintf("%d seconds", int(liveWindow.Seconds())),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count live sessions: %w", err)
	}
	return count, nil
}

// LiveCountryBreakdown groups live sessions by country.
func (s *SessionStore) LiveCountryBreakdown(ctx context.Context) ([]models.CountryCount, error) {
	query := `
		SELECT country_name, MIN(country_code), COUNT(*)
		FROM sessions
		WHERE last_ping >= NOW() - $1::interval
		GROUP BY country_name
		ORDER BY COUNT(*) DESC;
	`
	rows, err := s.db.QueryContext(ctx, query,
		fmt.Sprintf("%d seconds", int(liveWindow.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to query live country breakdown: %w", err)
	}
	defer rows.Close()

	var results []models.CountryCount
	for rows.Next() {
		var c models.CountryCount
		if err := rows.Scan(&c.CountryName, &c.CountryCode, &c.Count); err != nil {
			log.Printf("Error scanning live country row: %v", err)
			continue
		}
		results = append(results, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating live country rows: %w", err)
	}

	return results, nil
}
