// Package store persists detection results, signal transitions, and
// runtime metrics to SQLite. The schema is managed by file-based
// migrations under migrations/.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/greenwave-data/crossflow/internal/traffic"
)

// DB wraps the SQLite handle with the persistence operations the
// pipeline needs.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the SQLite database at path. The schema is not
// created here; call MigrateUp after opening.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; serializing through a single connection
	// avoids SQLITE_BUSY under concurrent producers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{db}, nil
}

// DetectionRecord is one persisted per-frame detection summary.
type DetectionRecord struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Direction    string    `json:"direction"`
	VehicleCount int       `json:"vehicle_count"`
	SignalState  string    `json:"signal_state"`
}

// LogDetection records a detection summary for one approach. Callers
// only log frames that actually saw vehicles; empty frames would swamp
// the table with zeros.
func (db *DB) LogDetection(ts time.Time, direction traffic.Direction, count int, signal traffic.Signal) error {
	_, err := db.Exec(
		`INSERT INTO camera_detections (timestamp, direction, vehicle_count, signal_state) VALUES (?, ?, ?, ?)`,
		ts.UTC().Format(time.RFC3339Nano), string(direction), count, string(signal),
	)
	if err != nil {
		return fmt.Errorf("log detection: %w", err)
	}
	return nil
}

// LogSignalChange records a phase transition event.
func (db *DB) LogSignalChange(ev traffic.SignalChangeEvent) error {
	_, err := db.Exec(
		`INSERT INTO signal_events (event_id, timestamp, from_phase, to_phase, reason, green_duration_ms, green_pair_count, red_pair_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp.UTC().Format(time.RFC3339Nano),
		string(ev.FromPhase), string(ev.ToPhase), ev.Reason,
		ev.GreenDuration.Milliseconds(), ev.GreenPairCount, ev.RedPairCount,
	)
	if err != nil {
		return fmt.Errorf("log signal change: %w", err)
	}
	return nil
}

// LogMetric records a named runtime metric sample.
func (db *DB) LogMetric(ts time.Time, name string, value float64) error {
	_, err := db.Exec(
		`INSERT INTO system_metrics (timestamp, metric_name, metric_value) VALUES (?, ?, ?)`,
		ts.UTC().Format(time.RFC3339Nano), name, value,
	)
	if err != nil {
		return fmt.Errorf("log metric: %w", err)
	}
	return nil
}

// RecentDetections returns the newest detection records, newest first.
func (db *DB) RecentDetections(limit int) ([]DetectionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT id, timestamp, direction, vehicle_count, signal_state
		 FROM camera_detections ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent detections: %w", err)
	}
	defer rows.Close()

	var out []DetectionRecord
	for rows.Next() {
		var rec DetectionRecord
		var ts string
		if err := rows.Scan(&rec.ID, &ts, &rec.Direction, &rec.VehicleCount, &rec.SignalState); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse detection timestamp %q: %w", ts, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SignalEventRecord is one persisted phase transition.
type SignalEventRecord struct {
	ID              int64     `json:"id"`
	EventID         string    `json:"event_id"`
	Timestamp       time.Time `json:"timestamp"`
	FromPhase       string    `json:"from_phase"`
	ToPhase         string    `json:"to_phase"`
	Reason          string    `json:"reason"`
	GreenDurationMs int64     `json:"green_duration_ms"`
	GreenPairCount  int       `json:"green_pair_count"`
	RedPairCount    int       `json:"red_pair_count"`
}

// RecentSignalEvents returns the newest phase transitions, newest first.
func (db *DB) RecentSignalEvents(limit int) ([]SignalEventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT id, event_id, timestamp, from_phase, to_phase, reason, green_duration_ms, green_pair_count, red_pair_count
		 FROM signal_events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent signal events: %w", err)
	}
	defer rows.Close()

	var out []SignalEventRecord
	for rows.Next() {
		var rec SignalEventRecord
		var ts string
		if err := rows.Scan(&rec.ID, &rec.EventID, &ts, &rec.FromPhase, &rec.ToPhase,
			&rec.Reason, &rec.GreenDurationMs, &rec.GreenPairCount, &rec.RedPairCount); err != nil {
			return nil, fmt.Errorf("scan signal event: %w", err)
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse event timestamp %q: %w", ts, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats is the aggregate view over everything persisted so far.
type Stats struct {
	TotalDetections    int64   `json:"total_detections"`
	TotalSignalChanges int64   `json:"total_signal_changes"`
	AverageVehicles    float64 `json:"average_vehicles"`
	EarlyClearChanges  int64   `json:"early_clear_changes"`
}

// GetStats computes summary statistics over the persisted history.
func (db *DB) GetStats() (Stats, error) {
	var s Stats
	err := db.QueryRow(
		`SELECT COUNT(*), COALESCE(AVG(vehicle_count), 0) FROM camera_detections`,
	).Scan(&s.TotalDetections, &s.AverageVehicles)
	if err != nil {
		return Stats{}, fmt.Errorf("detection stats: %w", err)
	}
	err = db.QueryRow(`SELECT COUNT(*) FROM signal_events`).Scan(&s.TotalSignalChanges)
	if err != nil {
		return Stats{}, fmt.Errorf("signal stats: %w", err)
	}
	err = db.QueryRow(
		`SELECT COUNT(*) FROM signal_events WHERE reason = ?`, traffic.ReasonEarlyClear,
	).Scan(&s.EarlyClearChanges)
	if err != nil {
		return Stats{}, fmt.Errorf("early clear stats: %w", err)
	}
	return s, nil
}
