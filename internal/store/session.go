package store

import (
	"database/sql"
	"errors"
	"time"
)

// WorkoutSession is the stored summary of one exercise session.
type WorkoutSession struct {
	ID            string     `json:"id"`
	Exercise      string     `json:"exercise"`
	StartedAt     time.Time  `json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	RepCount      int        `json:"repCount"`
	MaxDepth      float64    `json:"maxDepth"`
	TotalFrames   int        `json:"totalFrames"`
	CorrectFrames int        `json:"correctFrames"`
}

// Accuracy returns the share of analyzed frames judged correct, in [0,1].
func (w *WorkoutSession) Accuracy() float64 {
	if w.TotalFrames == 0 {
		return 0
	}
	return float64(w.CorrectFrames) / float64(w.TotalFrames)
}

// SessionRepository provides access to workout sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

const sessionColumns = `id, exercise, started_at, ended_at, rep_count, max_depth, total_frames, correct_frames`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*WorkoutSession, error) {
	w := &WorkoutSession{}
	var ended sql.NullTime
	if err := row.Scan(&w.ID, &w.Exercise, &w.StartedAt, &ended,
		&w.RepCount, &w.MaxDepth, &w.TotalFrames, &w.CorrectFrames); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		w.EndedAt = &t
	}
	return w, nil
}

// Create inserts a new session. StartedAt defaults to now.
func (r *SessionRepository) Create(w *WorkoutSession) error {
	if w.StartedAt.IsZero() {
		w.StartedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(
		`INSERT INTO workout_sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Exercise, w.StartedAt, nullTime(w.EndedAt),
		w.RepCount, w.MaxDepth, w.TotalFrames, w.CorrectFrames,
	)
	return err
}

// Finish records the final counters of a session and its end time.
func (r *SessionRepository) Finish(w *WorkoutSession) error {
	if w.EndedAt == nil {
		now := time.Now().UTC()
		w.EndedAt = &now
	}

	result, err := r.db.Exec(
		`UPDATE workout_sessions
		 SET ended_at = ?, rep_count = ?, max_depth = ?, total_frames = ?, correct_frames = ?
		 WHERE id = ?`,
		*w.EndedAt, w.RepCount, w.MaxDepth, w.TotalFrames, w.CorrectFrames, w.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(result)
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*WorkoutSession, error) {
	w, err := scanSession(r.db.QueryRow(
		`SELECT `+sessionColumns+` FROM workout_sessions WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

// List returns sessions newest first. A non-positive limit returns all of
// them.
func (r *SessionRepository) List(limit int) ([]*WorkoutSession, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT `+sessionColumns+` FROM workout_sessions
		 ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*WorkoutSession
	for rows.Next() {
		w, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, w)
	}
	return sessions, rows.Err()
}

// Delete removes a session and its reps.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM workout_sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOne(result)
}

// ExerciseTotals aggregates finished sessions of one exercise.
type ExerciseTotals struct {
	Exercise string  `json:"exercise"`
	Sessions int     `json:"sessions"`
	Reps     int     `json:"reps"`
	MaxDepth float64 `json:"maxDepth"`
}

// Totals summarises finished sessions per exercise, ordered by name.
func (r *SessionRepository) Totals() ([]ExerciseTotals, error) {
	rows, err := r.db.Query(
		`SELECT exercise, COUNT(*), COALESCE(SUM(rep_count), 0), COALESCE(MAX(max_depth), 0)
		 FROM workout_sessions WHERE ended_at IS NOT NULL
		 GROUP BY exercise ORDER BY exercise`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []ExerciseTotals
	for rows.Next() {
		var t ExerciseTotals
		if err := rows.Scan(&t.Exercise, &t.Sessions, &t.Reps, &t.MaxDepth); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func expectOne(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
