package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/tracker/internal/timeutil"
	"github.com/banshee-data/tracker/internal/track"
)

// ErrSessionNotFound is returned when a session id is not in the database.
var ErrSessionNotFound = errors.New("session not found")

// Session groups every track stored by one tracker or consumer run.
type Session struct {
	ID         uuid.UUID `json:"session_id"`
	FilterType string    `json:"filter_type"`
	Source     string    `json:"source"`
	StartedAt  float64   `json:"started_at"` // unix seconds
}

// TrackRecord is one stored track snapshot together with the measurement
// that produced it.
type TrackRecord struct {
	SessionID  uuid.UUID     `json:"session_id"`
	GroupSeq   int64         `json:"group_seq"`
	TrackID    uint32        `json:"track_id"`
	Velocity   track.Vector3 `json:"velocity"`
	Position   track.Vector3 `json:"position"`
	MeasCount  int           `json:"meas_count"`
	Latest     track.Vector3 `json:"latest"`
	LatestTime float64       `json:"latest_time"`
	Truth      track.Vector3 `json:"truth"`
	HasTruth   bool          `json:"has_truth"`
	ReceivedAt float64       `json:"received_at"`
}

// Store writes track groups under a single session. It implements the
// consumer sink interface and is safe for concurrent use.
type Store struct {
	db      *DB
	session Session
	clock   timeutil.Clock

	mu  sync.Mutex
	seq int64
}

// StartSession records a new session and returns a Store bound to it.
func (db *DB) StartSession(ctx context.Context, filterType, source string, clock timeutil.Clock) (*Store, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := Session{
		ID:         uuid.New(),
		FilterType: filterType,
		Source:     source,
		StartedAt:  timeutil.Seconds(clock.Now()),
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, filter_type, source, started_at) VALUES (?, ?, ?, ?)`,
		s.ID.String(), s.FilterType, s.Source, s.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	logf("started session %s (%s from %q)", s.ID, s.FilterType, s.Source)
	return &Store{db: db, session: s, clock: clock}, nil
}

// Session returns the session this store writes under.
func (s *Store) Session() Session {
	return s.session
}

// ProcessTrack stores every snapshot in group in one transaction.
func (s *Store) ProcessTrack(ctx context.Context, group track.TrackGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tracks (
			session_id, group_seq, track_id,
			x_velocity, y_velocity, z_velocity,
			x_pred_pos, y_pred_pos, z_pred_pos,
			meas_count, meas_x, meas_y, meas_z, meas_time,
			true_x, true_y, true_z, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	seq := s.seq + 1
	now := timeutil.Seconds(s.clock.Now())
	for _, t := range group {
		var mx, my, mz, mt, trueX, trueY, trueZ sql.NullFloat64
		if m, ok := t.Latest(); ok {
			mx, my, mz, mt = nullFloat(m.Position.X), nullFloat(m.Position.Y), nullFloat(m.Position.Z), nullFloat(m.Time)
			if m.HasTruth {
				trueX, trueY, trueZ = nullFloat(m.Truth.X), nullFloat(m.Truth.Y), nullFloat(m.Truth.Z)
			}
		}
		_, err := stmt.ExecContext(ctx,
			s.session.ID.String(), seq, t.TrackID,
			t.Velocity.X, t.Velocity.Y, t.Velocity.Z,
			t.Position.X, t.Position.Y, t.Position.Z,
			len(t.Measurements), mx, my, mz, mt,
			trueX, trueY, trueZ, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert track: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tracks: %w", err)
	}
	s.seq = seq
	return nil
}

// Sessions lists sessions, newest first.
func (db *DB) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT session_id, filter_type, source, started_at FROM sessions ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var id string
		if err := rows.Scan(&id, &s.FilterType, &s.Source, &s.StartedAt); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid session id %q: %w", id, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecentTracks returns up to limit snapshots across all sessions, newest first.
func (db *DB) RecentTracks(ctx context.Context, limit int) ([]TrackRecord, error) {
	return db.queryTracks(ctx,
		`SELECT `+trackColumns+` FROM tracks ORDER BY row_id DESC LIMIT ?`, limit)
}

// SessionTracks returns every snapshot stored under id in arrival order.
func (db *DB) SessionTracks(ctx context.Context, id uuid.UUID) ([]TrackRecord, error) {
	var exists int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE session_id = ?`, id.String()).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return db.queryTracks(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE session_id = ? ORDER BY row_id`, id.String())
}

const trackColumns = `session_id, group_seq, track_id,
	x_velocity, y_velocity, z_velocity,
	x_pred_pos, y_pred_pos, z_pred_pos,
	meas_count, meas_x, meas_y, meas_z, meas_time,
	true_x, true_y, true_z, received_at`

func (db *DB) queryTracks(ctx context.Context, query string, args ...any) ([]TrackRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackRecord
	for rows.Next() {
		var (
			r                          TrackRecord
			id                         string
			mx, my, mz, mt, tx, ty, tz sql.NullFloat64
		)
		if err := rows.Scan(&id, &r.GroupSeq, &r.TrackID,
			&r.Velocity.X, &r.Velocity.Y, &r.Velocity.Z,
			&r.Position.X, &r.Position.Y, &r.Position.Z,
			&r.MeasCount, &mx, &my, &mz, &mt,
			&tx, &ty, &tz, &r.ReceivedAt,
		); err != nil {
			return nil, err
		}
		if r.SessionID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid session id %q: %w", id, err)
		}
		r.Latest = track.Vector3{X: mx.Float64, Y: my.Float64, Z: mz.Float64}
		r.LatestTime = mt.Float64
		r.Truth = track.Vector3{X: tx.Float64, Y: ty.Float64, Z: tz.Float64}
		r.HasTruth = tx.Valid
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}
