package store

import (
	"database/sql"
	"time"
)

// RepEvent records one counted repetition.
type RepEvent struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"sessionId"`
	RepNumber   int       `json:"repNumber"`
	MaxDepth    float64   `json:"maxDepth"`
	CompletedAt time.Time `json:"completedAt"`
}

// RepRepository provides access to rep events.
type RepRepository struct {
	db *sql.DB
}

// Reps returns the rep repository for this store.
func (s *Store) Reps() *RepRepository {
	return &RepRepository{db: s.db}
}

// Add inserts a rep event and fills in its ID.
func (r *RepRepository) Add(e *RepEvent) error {
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now().UTC()
	}

	result, err := r.db.Exec(
		`INSERT INTO rep_events (session_id, rep_number, max_depth, completed_at)
		 VALUES (?, ?, ?, ?)`,
		e.SessionID, e.RepNumber, e.MaxDepth, e.CompletedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListBySession returns the reps of a session in the order they were counted.
func (r *RepRepository) ListBySession(sessionID string) ([]*RepEvent, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, rep_number, max_depth, completed_at
		 FROM rep_events WHERE session_id = ? ORDER BY rep_number`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reps []*RepEvent
	for rows.Next() {
		e := &RepEvent{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.RepNumber, &e.MaxDepth, &e.CompletedAt); err != nil {
			return nil, err
		}
		reps = append(reps, e)
	}
	return reps, rows.Err()
}
