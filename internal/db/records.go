package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/mindwave.report/internal/blink"
	"github.com/banshee-data/mindwave.report/internal/thinkgear"
)

// Session is one connect..disconnect cycle of the headset.
type Session struct {
	ID          int64      `json:"id"`
	Port        string     `json:"port"`
	PortOptions string     `json:"port_options"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Frames      int64      `json:"frames"`
}

// SampleRow is a stored sample.
type SampleRow struct {
	ID        int64  `json:"id"`
	SessionID *int64 `json:"session_id,omitempty"`
	thinkgear.Sample
}

// BlinkRow is a stored blink classification.
type BlinkRow struct {
	ID        int64      `json:"id"`
	SessionID *int64     `json:"session_id,omitempty"`
	Type      blink.Type `json:"type"`
	Strength  uint8      `json:"strength"`
	Raw       int16      `json:"raw"`
	At        time.Time  `json:"at"`
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}

func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// StartSession records the start of a session and returns its id.
func (db *DB) StartSession(port, portOptions string, at time.Time) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO sessions (port, port_options, started_unix) VALUES (?, ?, ?)`,
		port, portOptions, unixSeconds(at),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to start session: %w", err)
	}
	return res.LastInsertId()
}

// EndSession stamps the end time and frame count of a session.
func (db *DB) EndSession(id int64, at time.Time, frames int64) error {
	res, err := db.Exec(
		`UPDATE sessions SET ended_unix = ?, frames = ? WHERE session_id = ?`,
		unixSeconds(at), frames, id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %d not found", id)
	}
	return nil
}

// Sessions returns up to limit sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	rows, err := db.Query(
		`SELECT session_id, port, port_options, started_unix, ended_unix, frames
		FROM sessions ORDER BY session_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s       Session
			started float64
			ended   sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &s.Port, &s.PortOptions, &started, &ended, &s.Frames); err != nil {
			return nil, err
		}
		s.StartedAt = fromUnixSeconds(started)
		if ended.Valid {
			t := fromUnixSeconds(ended.Float64)
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// InsertSample stores a decoded sample. A sessionID of zero stores it
// without a session.
func (db *DB) InsertSample(sessionID int64, s thinkgear.Sample) error {
	b := s.Bands
	_, err := db.Exec(
		`INSERT INTO samples (
			session_id, received_unix, signal_quality, attention, meditation,
			delta, theta, low_alpha, high_alpha, low_beta, high_beta, gamma1, gamma2,
			blink_strength, raw
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableID(sessionID), unixSeconds(s.ReceivedAt), s.SignalQuality, s.Attention, s.Meditation,
		b.Delta, b.Theta, b.LowAlpha, b.HighAlpha, b.LowBeta, b.HighBeta, b.Gamma1, b.Gamma2,
		s.BlinkStrength, s.Raw,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// RecentSamples returns up to limit samples, newest first.
func (db *DB) RecentSamples(limit int) ([]SampleRow, error) {
	rows, err := db.Query(
		`SELECT sample_id, session_id, received_unix, signal_quality, attention, meditation,
			delta, theta, low_alpha, high_alpha, low_beta, high_beta, gamma1, gamma2,
			blink_strength, raw
		FROM samples ORDER BY sample_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SampleRow
	for rows.Next() {
		var (
			r        SampleRow
			session  sql.NullInt64
			received float64
		)
		b := &r.Bands
		if err := rows.Scan(
			&r.ID, &session, &received, &r.SignalQuality, &r.Attention, &r.Meditation,
			&b.Delta, &b.Theta, &b.LowAlpha, &b.HighAlpha, &b.LowBeta, &b.HighBeta, &b.Gamma1, &b.Gamma2,
			&r.BlinkStrength, &r.Raw,
		); err != nil {
			return nil, err
		}
		r.SessionID = idPtr(session)
		r.ReceivedAt = fromUnixSeconds(received)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertBlink stores a blink classification.
func (db *DB) InsertBlink(sessionID int64, ev blink.Event, strength uint8, raw int16) error {
	_, err := db.Exec(
		`INSERT INTO blink_events (session_id, blink_type, strength, raw, at_unix) VALUES (?, ?, ?, ?, ?)`,
		nullableID(sessionID), ev.Type.String(), strength, raw, unixSeconds(ev.At),
	)
	if err != nil {
		return fmt.Errorf("failed to insert blink: %w", err)
	}
	return nil
}

// RecentBlinks returns up to limit blink events, newest first.
func (db *DB) RecentBlinks(limit int) ([]BlinkRow, error) {
	rows, err := db.Query(
		`SELECT blink_id, session_id, blink_type, strength, raw, at_unix
		FROM blink_events ORDER BY blink_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlinkRow
	for rows.Next() {
		var (
			r       BlinkRow
			session sql.NullInt64
			typ     string
			at      float64
		)
		if err := rows.Scan(&r.ID, &session, &typ, &r.Strength, &r.Raw, &at); err != nil {
			return nil, err
		}
		r.SessionID = idPtr(session)
		r.Type = blink.ParseType(typ)
		r.At = fromUnixSeconds(at)
		out = append(out, r)
	}
	return out, rows.Err()
}
