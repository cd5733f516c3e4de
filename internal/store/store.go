// Package store persists discovered places, learned place signals, bandit
// decisions and training-buffer snapshots in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/context-core/internal/cluster"
	"github.com/danielpatrickdp/context-core/internal/fusion"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS places (
	place_id       TEXT PRIMARY KEY,
	center_lat     REAL NOT NULL,
	center_lng     REAL NOT NULL,
	radius_meters  REAL NOT NULL,
	point_count    INTEGER NOT NULL,
	first_seen     INTEGER NOT NULL,
	last_seen      INTEGER NOT NULL,
	total_stay_ms  INTEGER NOT NULL,
	category       TEXT NOT NULL,
	name           TEXT NOT NULL,
	confidence     REAL NOT NULL,
	pattern_json   TEXT,
	updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS place_signals (
	place_id           TEXT PRIMARY KEY,
	wifi_json          TEXT NOT NULL,
	bt_json            TEXT NOT NULL,
	total_observations INTEGER NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decision_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	decision_id   TEXT NOT NULL UNIQUE,
	action_id     TEXT NOT NULL,
	context_json  TEXT,
	reward        REAL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_log_action
ON decision_log(action_id);

CREATE TABLE IF NOT EXISTS buffer_snapshots (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_json TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and runs
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion store-struct

// #region places

// SavePlaces replaces the stored place set with the given clustering run.
func (s *Store) SavePlaces(places []cluster.Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM places`); err != nil {
		return fmt.Errorf("clear places: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, p := range places {
		patternJSON, err := json.Marshal(p.TimePattern)
		if err != nil {
			return fmt.Errorf("marshal pattern: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO places (place_id, center_lat, center_lng, radius_meters, point_count,
			  first_seen, last_seen, total_stay_ms, category, name, confidence, pattern_json, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.CenterLat, p.CenterLng, p.RadiusMeters, p.PointCount,
			p.FirstSeen, p.LastSeen, p.TotalStayMs, p.SuggestedCategory,
			p.SuggestedName, p.Confidence, string(patternJSON), now,
		)
		if err != nil {
			return fmt.Errorf("insert place %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadPlaces reads every stored place ordered by confidence.
func (s *Store) LoadPlaces() ([]cluster.Result, error) {
	rows, err := s.db.Query(
		`SELECT place_id, center_lat, center_lng, radius_meters, point_count,
		  first_seen, last_seen, total_stay_ms, category, name, confidence, pattern_json
		 FROM places ORDER BY confidence DESC`)
	if err != nil {
		return nil, fmt.Errorf("query places: %w", err)
	}
	defer rows.Close()

	var places []cluster.Result
	for rows.Next() {
		var p cluster.Result
		var patternJSON sql.NullString
		if err := rows.Scan(&p.ID, &p.CenterLat, &p.CenterLng, &p.RadiusMeters, &p.PointCount,
			&p.FirstSeen, &p.LastSeen, &p.TotalStayMs, &p.SuggestedCategory,
			&p.SuggestedName, &p.Confidence, &patternJSON); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		if patternJSON.Valid {
			// Broken pattern JSON degrades to an empty pattern.
			_ = json.Unmarshal([]byte(patternJSON.String), &p.TimePattern)
		}
		places = append(places, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate places: %w", err)
	}
	return places, nil
}

// #endregion places

// #region signals

// SaveSignals upserts the learned signal maps for one place.
func (s *Store) SaveSignals(placeID string, signals fusion.LearnedSignals) error {
	wifiJSON, err := json.Marshal(signals.WifiSsids)
	if err != nil {
		return fmt.Errorf("marshal wifi: %w", err)
	}
	btJSON, err := json.Marshal(signals.BtDevices)
	if err != nil {
		return fmt.Errorf("marshal bt: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO place_signals (place_id, wifi_json, bt_json, total_observations, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(place_id) DO UPDATE SET
		   wifi_json = excluded.wifi_json,
		   bt_json = excluded.bt_json,
		   total_observations = excluded.total_observations,
		   updated_at = excluded.updated_at`,
		placeID, string(wifiJSON), string(btJSON), signals.TotalObservations,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save signals %s: %w", placeID, err)
	}
	return nil
}

// LoadSignals reads every place's learned signal maps.
func (s *Store) LoadSignals() (map[string]fusion.LearnedSignals, error) {
	rows, err := s.db.Query(`SELECT place_id, wifi_json, bt_json, total_observations FROM place_signals`)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]fusion.LearnedSignals)
	for rows.Next() {
		var placeID, wifiJSON, btJSON string
		var total int
		if err := rows.Scan(&placeID, &wifiJSON, &btJSON, &total); err != nil {
			return nil, fmt.Errorf("scan signals: %w", err)
		}
		sig := fusion.LearnedSignals{TotalObservations: total}
		_ = json.Unmarshal([]byte(wifiJSON), &sig.WifiSsids)
		_ = json.Unmarshal([]byte(btJSON), &sig.BtDevices)
		out[placeID] = sig
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return out, nil
}

// #endregion signals

// #region decision-log

// LogDecision records a bandit selection and returns its decision id.
func (s *Store) LogDecision(actionID, contextJSON string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO decision_log (decision_id, action_id, context_json, created_at)
		 VALUES (?, ?, ?, ?)`,
		id, actionID, nullIfEmpty(contextJSON), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("log decision: %w", err)
	}
	return id, nil
}

// RecordReward attaches an observed reward to a logged decision.
func (s *Store) RecordReward(decisionID string, reward float64) error {
	res, err := s.db.Exec(`UPDATE decision_log SET reward = ? WHERE decision_id = ?`, reward, decisionID)
	if err != nil {
		return fmt.Errorf("record reward: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record reward: unknown decision %s", decisionID)
	}
	return nil
}

// BestAction returns the action with the highest decay-weighted mean
// reward (7-day half-life). Returns ("", 0, nil) when no action has at
// least 3 rewarded decisions.
func (s *Store) BestAction() (string, float64, error) {
	rows, err := s.db.Query(
		`SELECT action_id, reward, created_at FROM decision_log WHERE reward IS NOT NULL`)
	if err != nil {
		return "", 0, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	type accum struct {
		weightedSum float64
		totalWeight float64
		count       int
	}

	now := time.Now()
	halfLife := 7.0 * 24.0 // hours
	byAction := make(map[string]*accum)

	for rows.Next() {
		var actionID, createdStr string
		var reward float64
		if err := rows.Scan(&actionID, &reward, &createdStr); err != nil {
			return "", 0, fmt.Errorf("scan decision: %w", err)
		}
		createdAt, err := time.Parse(time.RFC3339, createdStr)
		if err != nil {
			continue
		}
		weight := math.Pow(0.5, now.Sub(createdAt).Hours()/halfLife)

		a, ok := byAction[actionID]
		if !ok {
			a = &accum{}
			byAction[actionID] = a
		}
		a.weightedSum += reward * weight
		a.totalWeight += weight
		a.count++
	}
	if err := rows.Err(); err != nil {
		return "", 0, fmt.Errorf("iterate decisions: %w", err)
	}

	bestID := ""
	bestScore := -1.0
	for id, a := range byAction {
		if a.count < 3 {
			continue
		}
		if avg := a.weightedSum / a.totalWeight; avg > bestScore {
			bestScore = avg
			bestID = id
		}
	}
	if bestID == "" {
		return "", 0, nil
	}
	return bestID, bestScore, nil
}

// DecisionStats returns total and rewarded decision counts.
func (s *Store) DecisionStats() (total, rewarded int, err error) {
	err = s.db.QueryRow(
		`SELECT COUNT(*), COUNT(reward) FROM decision_log`).Scan(&total, &rewarded)
	if err != nil {
		return 0, 0, fmt.Errorf("decision stats: %w", err)
	}
	return total, rewarded, nil
}

// #endregion decision-log

// #region buffer-snapshots

// SaveBufferSnapshot stores a serialized training buffer.
func (s *Store) SaveBufferSnapshot(snapshotJSON string) error {
	_, err := s.db.Exec(
		`INSERT INTO buffer_snapshots (snapshot_json, created_at) VALUES (?, ?)`,
		snapshotJSON, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadLatestBufferSnapshot returns the most recent snapshot, or ("",
// false, nil) when none exists.
func (s *Store) LoadLatestBufferSnapshot() (string, bool, error) {
	var snapshot string
	err := s.db.QueryRow(
		`SELECT snapshot_json FROM buffer_snapshots ORDER BY id DESC LIMIT 1`).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load snapshot: %w", err)
	}
	return snapshot, true, nil
}

// #endregion buffer-snapshots

// #region helpers

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
