// Package cache persists compiled archives in a SQLite database so that an
// unchanged tree compiled with the same options is not generated again.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/esdraft/compiler/code"
)

var log = commonlog.GetLogger("esdraft.cache")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache: store is closed")

// Entry describes one cached archive.
type Entry struct {
	Key     string
	Unit    string
	Size    int
	Created time.Time
}

// Store is a SQLite-backed archive cache. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	path   string
	mu     sync.Mutex
	closed bool
}

// Open opens or creates the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS archives (
		key     TEXT PRIMARY KEY,
		unit    TEXT NOT NULL,
		data    BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	log.Debugf("opened cache %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Get returns the archive stored under key. A missing key is not an error.
func (s *Store) Get(key string) (*code.Archive, bool, error) {
	if err := s.check(); err != nil {
		return nil, false, err
	}
	var data []byte
	err := s.db.QueryRow("SELECT data FROM archives WHERE key = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying archive: %w", err)
	}
	ar, err := code.UnmarshalArchive(data)
	if err != nil {
		return nil, false, fmt.Errorf("cached archive %s: %w", key, err)
	}
	return ar, true, nil
}

// Put stores ar under key, replacing any previous entry.
func (s *Store) Put(key, unit string, ar *code.Archive) error {
	if err := s.check(); err != nil {
		return err
	}
	data, err := ar.Marshal()
	if err != nil {
		return fmt.Errorf("encoding archive: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO archives (key, unit, data, created) VALUES (?, ?, ?, ?)",
		key, unit, data, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving archive: %w", err)
	}
	log.Debugf("cached %s (%d bytes)", unit, len(data))
	return nil
}

// List returns every entry, oldest first.
func (s *Store) List() ([]Entry, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query("SELECT key, unit, length(data), created FROM archives ORDER BY created, key")
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Key, &e.Unit, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Created = time.Unix(0, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge removes entries created before the cutoff; a zero cutoff removes
// everything. It returns the number of entries removed.
func (s *Store) Purge(before time.Time) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	var res sql.Result
	var err error
	if before.IsZero() {
		res, err = s.db.Exec("DELETE FROM archives")
	} else {
		res, err = s.db.Exec("DELETE FROM archives WHERE created < ?", before.UnixNano())
	}
	if err != nil {
		return 0, fmt.Errorf("purging archives: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	log.Infof("purged %d cached archive(s)", n)
	return int(n), nil
}
