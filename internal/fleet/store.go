// Package fleet persists the robot registry: each robot's last known liveness and
// battery level, plus the process-wide "socket is open" flag.
package fleet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by Get for an unknown robot.
var ErrNotFound = errors.New("fleet: robot not found")

// Robot is one registry row.
type Robot struct {
	ID        string    `json:"id"`
	Online    bool      `json:"online"`
	Battery   *float64  `json:"battery,omitempty"`
	LastSeen  time.Time `json:"last_seen,omitzero"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a SQLite-backed robot registry.
type Store struct {
	db         *sql.DB
	socketOpen atomic.Bool
	now        func() time.Time
}

// Open opens (creating if needed) the registry database at path. ":memory:" gives a
// private in-memory registry.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("fleet: open database: %w", err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("fleet: enable WAL mode: %w", err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS robots (
		id TEXT PRIMARY KEY,
		online INTEGER NOT NULL DEFAULT 0,
		battery REAL,
		last_seen_ms INTEGER,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_robots_online ON robots(online);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("fleet: create schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetStatus records robotID's liveness. Going online also stamps last_seen.
func (s *Store) SetStatus(ctx context.Context, robotID string, online bool) error {
	robotID = strings.TrimSpace(robotID)
	if robotID == "" {
		return errors.New("fleet: robot id is required")
	}
	now := s.now().UnixMilli()
	var lastSeen any
	if online {
		lastSeen = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO robots (id, online, last_seen_ms, updated_at_ms) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			online = excluded.online,
			last_seen_ms = COALESCE(excluded.last_seen_ms, robots.last_seen_ms),
			updated_at_ms = excluded.updated_at_ms`,
		robotID, online, lastSeen, now)
	if err != nil {
		return fmt.Errorf("fleet: set status %s: %w", robotID, err)
	}
	return nil
}

// SetBattery records robotID's battery percentage.
func (s *Store) SetBattery(ctx context.Context, robotID string, pct float64) error {
	robotID = strings.TrimSpace(robotID)
	if robotID == "" {
		return errors.New("fleet: robot id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO robots (id, battery, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			battery = excluded.battery,
			updated_at_ms = excluded.updated_at_ms`,
		robotID, pct, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("fleet: set battery %s: %w", robotID, err)
	}
	return nil
}

// Get returns one robot.
func (s *Store) Get(ctx context.Context, robotID string) (Robot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, online, battery, last_seen_ms, updated_at_ms FROM robots WHERE id = ?`, robotID)
	r, err := scanRobot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Robot{}, ErrNotFound
	}
	if err != nil {
		return Robot{}, fmt.Errorf("fleet: get %s: %w", robotID, err)
	}
	return r, nil
}

// List returns every known robot ordered by id.
func (s *Store) List(ctx context.Context) ([]Robot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, online, battery, last_seen_ms, updated_at_ms FROM robots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("fleet: list: %w", err)
	}
	defer rows.Close()

	out := []Robot{}
	for rows.Next() {
		r, err := scanRobot(rows)
		if err != nil {
			return nil, fmt.Errorf("fleet: list: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRobot(sc scanner) (Robot, error) {
	var (
		r         Robot
		battery   sql.NullFloat64
		lastSeen  sql.NullInt64
		updatedAt int64
	)
	if err := sc.Scan(&r.ID, &r.Online, &battery, &lastSeen, &updatedAt); err != nil {
		return Robot{}, err
	}
	if battery.Valid {
		pct := battery.Float64
		r.Battery = &pct
	}
	if lastSeen.Valid {
		r.LastSeen = time.UnixMilli(lastSeen.Int64)
	}
	r.UpdatedAt = time.UnixMilli(updatedAt)
	return r, nil
}

// UpdateRobotStatus, UpdateRobotBattery and SetSocketOpen make Store a session
// registry. The session never reads back, so write failures are logged only.

func (s *Store) UpdateRobotStatus(robotID string, online bool) {
	if err := s.SetStatus(context.Background(), robotID, online); err != nil {
		slog.Warn("robot status update failed", "robot_id", robotID, "online", online, "error", err)
	}
}

func (s *Store) UpdateRobotBattery(robotID string, pct float64) {
	if err := s.SetBattery(context.Background(), robotID, pct); err != nil {
		slog.Warn("robot battery update failed", "robot_id", robotID, "battery", pct, "error", err)
	}
}

func (s *Store) SetSocketOpen(open bool) {
	s.socketOpen.Store(open)
}

// SocketOpen reports the last value given to SetSocketOpen.
func (s *Store) SocketOpen() bool {
	return s.socketOpen.Load()
}
