// Package sqlite provides a SQLite-backed cache storage.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/skyline93/offline/internal/offline"
)

const schema = `
CREATE TABLE IF NOT EXISTS caches (
	tag        TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	tag       TEXT NOT NULL REFERENCES caches(tag) ON DELETE CASCADE,
	key       TEXT NOT NULL,
	url       TEXT NOT NULL,
	vary      TEXT NOT NULL,
	status    INTEGER NOT NULL,
	header    TEXT NOT NULL,
	body      BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (tag, key)
);
`

// Store persists caches in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ offline.Storage = &Store{}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// ParseConfig extracts the database path from a "sqlite:" URI.
func ParseConfig(s string) (string, error) {
	if !strings.HasPrefix(s, "sqlite:") {
		return "", errors.New(`invalid format, prefix "sqlite" not found`)
	}
	path := s[7:]
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite: path is empty")
	}
	return path, nil
}

// Open opens a SQLite store and creates its schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "create schema")
	}

	log.WithField("path", cleanPath).Debug("opened sqlite cache storage")
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Open(ctx context.Context, tag string) (offline.Cache, error) {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO caches (tag, created_at) VALUES (?, ?) ON CONFLICT(tag) DO NOTHING`,
		tag, toMillis(time.Now()))
	if err != nil {
		return nil, errors.Wrapf(err, "open cache %q", tag)
	}
	return &Cache{db: s.sqlDB, tag: tag}, nil
}

func (s *Store) Has(ctx context.Context, tag string) (bool, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM caches WHERE tag = ?`, tag).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "count caches")
	}
	return n > 0, nil
}

// Keys lists tags in creation order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT tag FROM caches ORDER BY created_at, rowid`)
	if err != nil {
		return nil, errors.Wrap(err, "list caches")
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, errors.Wrap(err, "scan tag")
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *Store) Delete(ctx context.Context, tag string) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM caches WHERE tag = ?`, tag)
	if err != nil {
		return false, errors.Wrapf(err, "delete cache %q", tag)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// Cache is one tag in the store.
type Cache struct {
	db  *sql.DB
	tag string
}

func (c *Cache) Match(ctx context.Context, req *offline.Request) (*offline.Response, bool, error) {
	if !req.IsGet() {
		return nil, false, nil
	}

	var (
		rawURL, vary, header string
		status               int
		body                 []byte
		storedAt             int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT url, vary, status, header, body, stored_at FROM entries WHERE tag = ? AND key = ?`,
		c.tag, offline.KeyFor(req).String(),
	).Scan(&rawURL, &vary, &status, &header, &body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "match %v", req)
	}

	e := &offline.Entry{
		Method:   req.Method,
		URL:      rawURL,
		Status:   status,
		Body:     body,
		StoredAt: fromMillis(storedAt),
	}
	if err := json.Unmarshal([]byte(vary), &e.Vary); err != nil {
		return nil, false, errors.Wrap(err, "decode vary")
	}
	if err := json.Unmarshal([]byte(header), &e.Header); err != nil {
		return nil, false, errors.Wrap(err, "decode header")
	}

	if !e.Matches(req) {
		return nil, false, nil
	}
	return e.Response(), true, nil
}

func (c *Cache) Put(ctx context.Context, req *offline.Request, resp *offline.Response) error {
	if err := offline.CheckPut(req, resp); err != nil {
		return err
	}
	e := offline.NewEntry(req, resp)

	vary, err := json.Marshal(e.Vary)
	if err != nil {
		return errors.Wrap(err, "encode vary")
	}
	header, err := json.Marshal(e.Header)
	if err != nil {
		return errors.Wrap(err, "encode header")
	}
	body := e.Body
	if body == nil {
		body = []byte{}
	}

	// the cache row may have been deleted by a concurrent activation
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO caches (tag, created_at) VALUES (?, ?) ON CONFLICT(tag) DO NOTHING`,
		c.tag, toMillis(time.Now()))
	if err != nil {
		return errors.Wrap(err, "ensure cache")
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO entries (tag, key, url, vary, status, header, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tag, key) DO UPDATE SET
		   url = excluded.url,
		   vary = excluded.vary,
		   status = excluded.status,
		   header = excluded.header,
		   body = excluded.body,
		   stored_at = excluded.stored_at`,
		c.tag, offline.KeyFor(req).String(), e.URL, string(vary), e.Status, string(header), body, toMillis(e.StoredAt),
	)
	if err != nil {
		return errors.Wrapf(err, "put %v", req)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, req *offline.Request) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM entries WHERE tag = ? AND key = ?`, c.tag, offline.KeyFor(req).String())
	if err != nil {
		return false, errors.Wrapf(err, "delete %v", req)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// Keys lists stored requests in insertion order.
func (c *Cache) Keys(ctx context.Context) ([]*offline.Request, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT url FROM entries WHERE tag = ? ORDER BY rowid`, c.tag)
	if err != nil {
		return nil, errors.Wrap(err, "list entries")
	}
	defer rows.Close()

	var reqs []*offline.Request
	for rows.Next() {
		var rawURL string
		if err := rows.Scan(&rawURL); err != nil {
			return nil, errors.Wrap(err, "scan url")
		}
		req, err := offline.NewRequest(rawURL)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}
