package prefs

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// SQLite stores settings in the settings table, one row per key.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) get(key string) (int64, bool, error) {
	var v int64
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (s *SQLite) set(key string, v int64) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, v,
	)
	return err
}

func (s *SQLite) GetBool(key string) (bool, bool, error) {
	v, ok, err := s.get(key)
	return v != 0, ok, err
}

func (s *SQLite) GetInt(key string) (int, bool, error) {
	v, ok, err := s.get(key)
	return int(v), ok, err
}

func (s *SQLite) SetBool(key string, value bool) error {
	var v int64
	if value {
		v = 1
	}
	return s.set(key, v)
}

func (s *SQLite) SetInt(key string, value int) error {
	return s.set(key, int64(value))
}

var settingsBucket = []byte("settings")

// Bolt stores settings as decimal strings in a bbolt bucket. Every write is
// its own fsynced transaction.
type Bolt struct {
	db *bbolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create bolt directory: %w", err)
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) get(key string) (string, bool, error) {
	var (
		out string
		ok  bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(settingsBucket).Get([]byte(key))
		if data != nil {
			out, ok = string(data), true
		}
		return nil
	})
	return out, ok, err
}

func (b *Bolt) put(key, value string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(settingsBucket).Put([]byte(key), []byte(value))
	})
}

func (b *Bolt) GetBool(key string) (bool, bool, error) {
	s, ok, err := b.get(key)
	if err != nil || !ok {
		return false, ok, err
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, false, fmt.Errorf("corrupt value for %s: %w", key, err)
	}
	return v, true, nil
}

func (b *Bolt) GetInt(key string) (int, bool, error) {
	s, ok, err := b.get(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt value for %s: %w", key, err)
	}
	return v, true, nil
}

func (b *Bolt) SetBool(key string, value bool) error {
	return b.put(key, strconv.FormatBool(value))
}

func (b *Bolt) SetInt(key string, value int) error {
	return b.put(key, strconv.Itoa(value))
}

// Memory is a process-local backend.
type Memory struct {
	mu     sync.Mutex
	values map[string]int
	// Fail, when set, is returned by every write.
	Fail error
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]int)}
}

func (m *Memory) GetBool(key string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v != 0, ok, nil
}

func (m *Memory) GetInt(key string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) SetBool(key string, value bool) error {
	v := 0
	if value {
		v = 1
	}
	return m.SetInt(key, v)
}

func (m *Memory) SetInt(key string, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.values[key] = value
	return nil
}
