// Package store provides SQLite persistence for run history, recorded inputs
// and client settings.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/krigga/flappy-ton/internal/fairness"
	"github.com/krigga/flappy-ton/internal/game"
)

// SQLiteDB implements DB on top of modernc.org/sqlite.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens the database at path. Use ":memory:" for tests.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate creates the schema. It is safe to run on every start.
func (s *SQLiteDB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			score INTEGER NOT NULL,
			ticks INTEGER NOT NULL,
			cause TEXT NOT NULL DEFAULT '',
			server_seed TEXT NOT NULL DEFAULT '',
			server_seed_hash TEXT NOT NULL DEFAULT '',
			client_seed TEXT NOT NULL DEFAULT '',
			nonce INTEGER NOT NULL DEFAULT 0,
			skin TEXT NOT NULL DEFAULT '',
			engine_version TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS run_frames (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			delta REAL NOT NULL,
			jump BOOLEAN NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, tick)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	alters := []string{
		`ALTER TABLE runs ADD COLUMN submitted BOOLEAN NOT NULL DEFAULT 0`,
		`ALTER TABLE runs ADD COLUMN reward TEXT`,
		`ALTER TABLE runs ADD COLUMN achievements TEXT NOT NULL DEFAULT '[]'`,
		`ALTER TABLE runs ADD COLUMN submit_error TEXT NOT NULL DEFAULT ''`,
	}
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_score ON runs(score)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("store: migration failed: %w", err)
		}
	}
	for _, a := range alters {
		if _, err := s.db.Exec(a); err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("store: alter failed: %w", err)
		}
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("store: index failed: %w", err)
		}
	}
	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column")
}

// SaveRun inserts a run, assigning an ID and creation time when missing.
func (s *SQLiteDB) SaveRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.ServerSeedHash == "" && run.ServerSeed != "" {
		run.ServerSeedHash = fairness.HashServerSeed(run.ServerSeed)
	}
	achievements, err := encodeAchievements(run.Achievements)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`INSERT INTO runs (
			id, score, ticks, cause, server_seed, server_seed_hash, client_seed, nonce,
			skin, engine_version, created_at, submitted, reward, achievements, submit_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Score, run.Ticks, run.Cause, run.ServerSeed, run.ServerSeedHash, run.ClientSeed,
		int64(run.Nonce), run.Skin, run.EngineVersion, run.CreatedAt, run.Submitted, run.Reward,
		achievements, run.SubmitError,
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	return nil
}

// UpdateRunResult records the backend's answer for a run.
func (s *SQLiteDB) UpdateRunResult(id string, res RunResult) error {
	achievements, err := encodeAchievements(res.Achievements)
	if err != nil {
		return err
	}
	out, err := s.db.Exec(`UPDATE runs SET submitted = ?, reward = ?, achievements = ?, submit_error = ? WHERE id = ?`,
		res.Err == "", res.Reward, achievements, res.Err, id)
	if err != nil {
		return fmt.Errorf("store: update run result: %w", err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id, score, ticks, cause, server_seed, server_seed_hash, client_seed, nonce,
	skin, engine_version, created_at, submitted, reward, achievements, submit_error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var nonce int64
	var achievements string
	err := row.Scan(
		&run.ID, &run.Score, &run.Ticks, &run.Cause, &run.ServerSeed, &run.ServerSeedHash,
		&run.ClientSeed, &nonce, &run.Skin, &run.EngineVersion, &run.CreatedAt,
		&run.Submitted, &run.Reward, &achievements, &run.SubmitError,
	)
	if err != nil {
		return nil, err
	}
	run.Nonce = uint64(nonce)
	if err := json.Unmarshal([]byte(achievements), &run.Achievements); err != nil {
		return nil, fmt.Errorf("store: decode achievements: %w", err)
	}
	if run.Achievements == nil {
		run.Achievements = []string{}
	}
	return &run, nil
}

// GetRun loads one run by ID.
func (s *SQLiteDB) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteDB) ListRuns(query RunsQuery) (*RunsList, error) {
	where := ""
	if query.SubmittedOnly {
		where = "WHERE submitted = 1"
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs " + where).Scan(&total); err != nil {
		return nil, fmt.Errorf("store: count runs: %w", err)
	}

	if query.PerPage <= 0 {
		query.PerPage = 50
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	offset := (query.Page - 1) * query.PerPage

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs `+where+`
		ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, query.PerPage, offset)
	if err != nil {
		return nil, fmt.Errorf("store: query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate runs: %w", err)
	}

	return &RunsList{
		Runs:       runs,
		TotalCount: total,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: (total + query.PerPage - 1) / query.PerPage,
	}, nil
}

// BestScore returns the highest score on record, or 0.
func (s *SQLiteDB) BestScore() (int, error) {
	var best int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(score), 0) FROM runs`).Scan(&best); err != nil {
		return 0, fmt.Errorf("store: best score: %w", err)
	}
	return best, nil
}

// SaveFrames appends recorded frames for a run in one transaction.
func (s *SQLiteDB) SaveFrames(runID string, frames []game.Frame) error {
	if len(frames) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin frames: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO run_frames (run_id, tick, delta, jump) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare frames: %w", err)
	}
	defer stmt.Close()

	for _, f := range frames {
		if _, err := stmt.Exec(runID, f.Tick, f.Delta, f.Jump); err != nil {
			return fmt.Errorf("store: insert frame %d: %w", f.Tick, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit frames: %w", err)
	}
	return nil
}

// GetFrames returns a run's frames in tick order.
func (s *SQLiteDB) GetFrames(runID string) ([]game.Frame, error) {
	rows, err := s.db.Query(`SELECT tick, delta, jump FROM run_frames WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query frames: %w", err)
	}
	defer rows.Close()

	var frames []game.Frame
	for rows.Next() {
		var f game.Frame
		if err := rows.Scan(&f.Tick, &f.Delta, &f.Jump); err != nil {
			return nil, fmt.Errorf("store: scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// DeleteFrames removes every frame recorded for a run.
func (s *SQLiteDB) DeleteFrames(runID string) error {
	if _, err := s.db.Exec(`DELETE FROM run_frames WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("store: delete frames: %w", err)
	}
	return nil
}

// GetSetting returns a stored setting or ErrNotFound.
func (s *SQLiteDB) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores or replaces a setting.
func (s *SQLiteDB) SetSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("store: set setting %s: %w", key, err)
	}
	return nil
}

func encodeAchievements(a []string) (string, error) {
	if a == nil {
		a = []string{}
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("store: encode achievements: %w", err)
	}
	return string(raw), nil
}
