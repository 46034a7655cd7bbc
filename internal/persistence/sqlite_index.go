package persistence

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteIndex records, for a single tiling run, which node paths exist
// with their own point count, subtree point total and geometric error, so
// a verify or merge pass can look up a node's metadata without walking
// the whole output tree.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens (creating if needed) the index database at path.
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: opening sqlite index %s: %w", path, err)
	}
	idx := &SQLiteIndex{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *SQLiteIndex) migrate() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS nodes (
			path TEXT PRIMARY KEY,
			point_count INTEGER NOT NULL,
			total_point_count INTEGER NOT NULL,
			geometric_error REAL NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("persistence: migrating sqlite index: %w", err)
	}
	return nil
}

// Record upserts a node's metadata.
func (idx *SQLiteIndex) Record(path string, pointCount, totalPointCount int64, geometricError float64) error {
	_, err := idx.db.Exec(`
		INSERT INTO nodes (path, point_count, total_point_count, geometric_error)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			point_count = excluded.point_count,
			total_point_count = excluded.total_point_count,
			geometric_error = excluded.geometric_error
	`, path, pointCount, totalPointCount, geometricError)
	if err != nil {
		return fmt.Errorf("persistence: recording node %s: %w", path, err)
	}
	return nil
}

// NodeRecord is a single row read back from the index.
type NodeRecord struct {
	Path            string
	PointCount      int64
	TotalPointCount int64
	GeometricError  float64
}

// Lookup returns the recorded metadata for path, or ok=false if absent.
func (idx *SQLiteIndex) Lookup(path string) (rec NodeRecord, ok bool, err error) {
	row := idx.db.QueryRow(`SELECT path, point_count, total_point_count, geometric_error FROM nodes WHERE path = ?`, path)
	if scanErr := row.Scan(&rec.Path, &rec.PointCount, &rec.TotalPointCount, &rec.GeometricError); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return NodeRecord{}, false, nil
		}
		return NodeRecord{}, false, fmt.Errorf("persistence: looking up node %s: %w", path, scanErr)
	}
	return rec, true, nil
}

// Count returns the number of node rows recorded. Verify and Merge use it
// to reject an index that records no nodes; it is not compared with the
// number of payload files on disk.
func (idx *SQLiteIndex) Count() (int64, error) {
	var n int64
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("persistence: counting nodes: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (idx *SQLiteIndex) Close() error {
	return idx.db.Close()
}
