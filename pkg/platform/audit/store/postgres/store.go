// Package postgres archives consumed audit events into a queryable table.
// Kafka remains the source of truth; this store is a best-effort replica.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	audit "ipvreturn/pkg/platform/audit"
)

const insertEvent = `
INSERT INTO audit_events (id, event_name, user_id, email, emitted_at, event_timestamp_ms, component_id, extensions)
VALUES ($1, $2, $3, $4, to_timestamp($5), $6, $7, $8)
ON CONFLICT (id) DO NOTHING`

// Store writes audit events to Postgres via database/sql.
type Store struct {
	db *sql.DB
}

// Open connects with the pgx stdlib driver.
func Open(url string) (*Store, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one event; replays of the same id are no-ops.
func (s *Store) Append(ctx context.Context, eventID uuid.UUID, event audit.Event) error {
	var extensions []byte
	if event.Extensions != nil {
		var err error
		extensions, err = json.Marshal(event.Extensions)
		if err != nil {
			return fmt.Errorf("marshal extensions: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, insertEvent,
		eventID,
		event.EventName,
		event.User.UserID,
		event.User.Email,
		event.Timestamp,
		event.EventTimestampMs,
		event.ComponentID,
		extensions,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
