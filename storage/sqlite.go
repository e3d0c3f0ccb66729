package storage

import (
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

var _ Store = (*SQLiteStore)(nil)

const defaultPollInterval = time.Second

// SQLiteStore persists keys in a SQLite database shared between
// processes. SQLite has no native change notification, so external
// changes are detected by polling: a degraded subscription strategy
// that trades latency for compatibility, the same way cookie-backed
// storage is polled in browsers.
type SQLiteStore struct {
	db           *sql.DB
	pollInterval time.Duration

	mu       sync.Mutex
	snapshot map[string]string

	subs subscribers
	done chan struct{}
	wg   sync.WaitGroup
}

// SQLiteOption modifies a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithPollInterval overrides how often the store polls for writes from
// other processes.
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		s.pollInterval = d
	}
}

// NewSQLiteStore opens (or creates) the database at path and starts the
// change poller.
func NewSQLiteStore(path string, options ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "[NewSQLiteStore] sql.Open")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS session_kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[NewSQLiteStore] create table")
	}

	s := &SQLiteStore{
		db:           db,
		pollInterval: defaultPollInterval,
		done:         make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}

	snapshot, err := s.readAll()
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[NewSQLiteStore] readAll")
	}
	s.snapshot = snapshot

	s.wg.Add(1)
	go s.poll()
	return s, nil
}

func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM session_kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "[SQLiteStore.Get] QueryRow")
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO session_kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return errors.Wrap(err, "[SQLiteStore.Set] Exec")
	}
	s.mu.Lock()
	s.snapshot[key] = value
	s.mu.Unlock()
	s.subs.notify(key)
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	res, err := s.db.Exec(`DELETE FROM session_kv WHERE key = ?`, key)
	if err != nil {
		return errors.Wrap(err, "[SQLiteStore.Delete] Exec")
	}
	s.mu.Lock()
	delete(s.snapshot, key)
	s.mu.Unlock()
	if n, _ := res.RowsAffected(); n > 0 {
		s.subs.notify(key)
	}
	return nil
}

func (s *SQLiteStore) Subscribe(fn func(key string)) func() {
	return s.subs.add(fn)
}

func (s *SQLiteStore) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}

func (s *SQLiteStore) poll() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			current, err := s.readAll()
			if err != nil {
				log.Warn().Err(err).Msg("sqlite store poll failed")
				continue
			}
			s.mu.Lock()
			changed := diffKeys(s.snapshot, current)
			s.snapshot = current
			s.mu.Unlock()
			if len(changed) > 0 {
				s.subs.notify(changed...)
			}
		}
	}
}

func (s *SQLiteStore) readAll() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM session_kv`)
	if err != nil {
		return nil, errors.Wrap(err, "Query")
	}
	defer func() { _ = rows.Close() }()

	snapshot := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.Wrap(err, "Scan")
		}
		snapshot[key] = value
	}
	return snapshot, rows.Err()
}
