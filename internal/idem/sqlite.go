package idem

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable backend: a single-file embedded database with
// one `entries` table and an expiry index. WAL journaling with NORMAL
// synchronous is enough for in-process multi-threaded use; a single
// connection guarded by a mutex serializes all statements.
type SQLiteStore struct {
	mu        sync.Mutex
	db        *sql.DB
	retention time.Duration
	nowNs     func() int64
}

// OpenSQLite opens (creating if needed) the database at opts.Path. Parent
// directories are created.
func OpenSQLite(opts Options) (*SQLiteStore, error) {
	opts = opts.withDefaults()
	if dir := filepath.Dir(opts.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", opts.Path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: the store-level mutex is the concurrency contract.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, retention: opts.Retention, nowNs: opts.NowNs}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			key        TEXT PRIMARY KEY,
			value      TEXT,
			expiry_ns  INTEGER,
			updated_ns INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_entries_expiry ON entries(expiry_ns);
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Seen(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiry sql.NullInt64
	err := s.db.QueryRow("SELECT expiry_ns FROM entries WHERE key = ?", key).Scan(&expiry)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seen %q: %w", key, err)
	}
	if expiry.Valid && expiry.Int64 != 0 && expiry.Int64 < s.nowNs() {
		// expired — report not seen, do not delete (retention-only cleanup)
		return false, nil
	}
	return true, nil
}

func (s *SQLiteStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value sql.NullString
	var expiry sql.NullInt64
	err := s.db.QueryRow("SELECT value, expiry_ns FROM entries WHERE key = ?", key).Scan(&value, &expiry)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	if expiry.Valid && expiry.Int64 != 0 && expiry.Int64 < s.nowNs() {
		return "", false, nil
	}
	return value.String, true, nil
}

func (s *SQLiteStore) Put(key, value string, ttl *time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowNs()

	if ttl != nil {
		expiry := now + ttl.Nanoseconds()
		_, err := s.db.Exec(`
			INSERT INTO entries(key, value, expiry_ns, updated_ns) VALUES(?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				expiry_ns = excluded.expiry_ns,
				updated_ns = excluded.updated_ns`,
			key, value, expiry, now)
		if err != nil {
			return fmt.Errorf("put %q: %w", key, err)
		}
		return nil
	}

	// nil TTL: preserve an existing expiry, default for fresh keys.
	defaultExpiry := now + DefaultTTL.Nanoseconds()
	_, err := s.db.Exec(`
		INSERT INTO entries(key, value, expiry_ns, updated_ns) VALUES(?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_ns = excluded.updated_ns`,
		key, value, defaultExpiry, now)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Mark(key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowNs()
	expiry := now + ttl.Nanoseconds()

	_, err := s.db.Exec(`
		INSERT INTO entries(key, value, expiry_ns, updated_ns) VALUES(?, NULL, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			expiry_ns = excluded.expiry_ns,
			updated_ns = excluded.updated_ns`,
		key, expiry, now)
	if err != nil {
		return fmt.Errorf("mark %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) CleanupExpired() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowNs()
	cutoff := now - s.retention.Nanoseconds()

	res, err := s.db.Exec(`
		DELETE FROM entries
		WHERE expiry_ns IS NOT NULL AND expiry_ns != 0
		  AND expiry_ns < ? AND expiry_ns < ?`,
		now, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM entries"); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Size() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if err := s.db.QueryRow("SELECT COUNT(1) FROM entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("size: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
