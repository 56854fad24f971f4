package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MySQLStore implements Store with three plain tables. It exists for
// deployments that already run MySQL and do not want a Redis dependency.
// Expired entries stay on disk until Purge runs but are never returned.
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLStore returns a store bound to db. Call Migrate once at startup.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS kv_entries (
		k VARCHAR(255) NOT NULL PRIMARY KEY,
		v MEDIUMBLOB NOT NULL,
		expires_at DATETIME(3) NULL
	)`,
	`CREATE TABLE IF NOT EXISTS kv_set_members (
		set_key VARCHAR(255) NOT NULL,
		member VARCHAR(255) NOT NULL,
		PRIMARY KEY (set_key, member)
	)`,
	`CREATE TABLE IF NOT EXISTS kv_counters (
		k VARCHAR(255) NOT NULL,
		field VARCHAR(64) NOT NULL,
		n BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (k, field)
	)`,
}

// Migrate creates the backing tables when missing.
func (s *MySQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysql migrate: %w", err)
		}
	}
	return nil
}

func (s *MySQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT v, expires_at FROM kv_entries WHERE k=? LIMIT 1", key).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNil
		}
		return nil, fmt.Errorf("mysql get %s: %w", key, err)
	}
	if expiresAt.Valid && !s.now().Before(expiresAt.Time) {
		return nil, ErrNil
	}
	return value, nil
}

func (s *MySQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: s.now().Add(ttl), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO kv_entries (k, v, expires_at) VALUES (?,?,?) ON DUPLICATE KEY UPDATE v=VALUES(v), expires_at=VALUES(expires_at)",
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("mysql set %s: %w", key, err)
	}
	return nil
}

func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_entries WHERE k=?", key); err != nil {
		return fmt.Errorf("mysql del %s: %w", key, err)
	}
	return nil
}

func (s *MySQLStore) AddToSet(ctx context.Context, setKey, member string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT IGNORE INTO kv_set_members (set_key, member) VALUES (?,?)", setKey, member)
	if err != nil {
		return fmt.Errorf("mysql sadd %s: %w", setKey, err)
	}
	return nil
}

func (s *MySQLStore) Members(ctx context.Context, setKey string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT member FROM kv_set_members WHERE set_key=?", setKey)
	if err != nil {
		return nil, fmt.Errorf("mysql smembers %s: %w", setKey, err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql smembers %s: %w", setKey, err)
	}
	return members, nil
}

// IncrField upserts the counter row and reads it back inside one
// transaction, so the returned value reflects this increment.
func (s *MySQLStore) IncrField(ctx context.Context, key, field string, delta int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mysql begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO kv_counters (k, field, n) VALUES (?,?,?) ON DUPLICATE KEY UPDATE n = n + VALUES(n)",
		key, field, delta); err != nil {
		return 0, fmt.Errorf("mysql incr %s %s: %w", key, field, err)
	}
	var n int64
	if err := tx.QueryRowContext(ctx,
		"SELECT n FROM kv_counters WHERE k=? AND field=?", key, field).Scan(&n); err != nil {
		return 0, fmt.Errorf("mysql read counter %s %s: %w", key, field, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mysql commit: %w", err)
	}
	return n, nil
}

func (s *MySQLStore) Fields(ctx context.Context, key string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT field, n FROM kv_counters WHERE k=?", key)
	if err != nil {
		return nil, fmt.Errorf("mysql counters %s: %w", key, err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			field string
			n     int64
		)
		if err := rows.Scan(&field, &n); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		out[field] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql counters %s: %w", key, err)
	}
	return out, nil
}

// Purge deletes entries whose expiry has passed and reports how many went.
func (s *MySQLStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?", s.now())
	if err != nil {
		return 0, fmt.Errorf("mysql purge: %w", err)
	}
	return res.RowsAffected()
}

// Ping reports whether the database is reachable.
func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
