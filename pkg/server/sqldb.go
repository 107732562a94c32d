package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/crystal-mush/gridmush/pkg/gamedb"
	"github.com/crystal-mush/gridmush/pkg/grid"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrSQLNotConfigured is returned when the store has been closed.
var ErrSQLNotConfigured = errors.New("SQL NOT CONFIGURED")

// SQLStore manages the SQLite database that backs the visit journal.
type SQLStore struct {
	db         *sql.DB
	mu         sync.Mutex
	path       string
	queryLimit int
	timeout    time.Duration
}

// VisitRecord is one journaled arrival at a grid point.
type VisitRecord struct {
	ID        string
	Room      gamedb.DBRef
	Navigator gamedb.DBRef
	Name      string
	Coord     grid.Coord
	Direction string
	At        time.Time
}

// OpenSQLStore opens a SQLite3 database, sets WAL mode and busy timeout,
// and creates the journal tables.
func OpenSQLStore(path string, queryLimit, timeoutSec int) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// WAL for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeoutSec*1000)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if queryLimit <= 0 {
		queryLimit = 100
	}
	if timeoutSec <= 0 {
		timeoutSec = 5
	}
	s := &SQLStore{
		db:         db,
		path:       path,
		queryLimit: queryLimit,
		timeout:    time.Duration(timeoutSec) * time.Second,
	}
	if err := s.initVisitTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initVisitTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS grid_visits (
			id        TEXT PRIMARY KEY,
			room      INTEGER NOT NULL,
			navigator INTEGER NOT NULL,
			name      TEXT NOT NULL,
			x         INTEGER NOT NULL,
			y         INTEGER NOT NULL,
			direction TEXT NOT NULL,
			at        INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_grid_visits_point ON grid_visits(room, x, y, at);
		CREATE INDEX IF NOT EXISTS idx_grid_visits_at ON grid_visits(at);
	`)
	if err != nil {
		return fmt.Errorf("creating grid_visits: %w", err)
	}
	return nil
}

// Close closes the SQLite3 database connection.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Path returns the filesystem path of the SQLite database.
func (s *SQLStore) Path() string { return s.path }

// Checkpoint forces a WAL checkpoint to flush all writes to the main database file.
func (s *SQLStore) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrSQLNotConfigured
	}
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// InsertVisit records an arrival. A blank ID is filled with a fresh UUID.
func (s *SQLStore) InsertVisit(ctx context.Context, rec VisitRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return "", ErrSQLNotConfigured
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO grid_visits (id, room, navigator, name, x, y, direction, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, int(rec.Room), int(rec.Navigator), rec.Name,
		rec.Coord.X, rec.Coord.Y, rec.Direction, rec.At.UnixNano())
	if err != nil {
		return "", fmt.Errorf("inserting visit: %w", err)
	}
	return rec.ID, nil
}

// RecentVisits returns the newest arrivals at a point, newest first.
// limit is capped at the store's query limit.
func (s *SQLStore) RecentVisits(ctx context.Context, room gamedb.DBRef, c grid.Coord, limit int) ([]VisitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrSQLNotConfigured
	}
	if limit <= 0 || limit > s.queryLimit {
		limit = s.queryLimit
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, navigator, name, direction, at FROM grid_visits
		 WHERE room = ? AND x = ? AND y = ?
		 ORDER BY at DESC LIMIT ?`,
		int(room), c.X, c.Y, limit)
	if err != nil {
		return nil, fmt.Errorf("querying visits: %w", err)
	}
	defer rows.Close()

	var out []VisitRecord
	for rows.Next() {
		var (
			rec VisitRecord
			nav int
			at  int64
		)
		if err := rows.Scan(&rec.ID, &nav, &rec.Name, &rec.Direction, &at); err != nil {
			return nil, err
		}
		rec.Room = room
		rec.Navigator = gamedb.DBRef(nav)
		rec.Coord = c
		rec.At = time.Unix(0, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PurgeOldVisits deletes journal rows older than retention.
func (s *SQLStore) PurgeOldVisits(retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, ErrSQLNotConfigured
	}
	cutoff := time.Now().Add(-retention).UnixNano()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM grid_visits WHERE at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging visits: %w", err)
	}
	return res.RowsAffected()
}
