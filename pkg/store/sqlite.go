package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sibyl-ai/sibyl/pkg/models"
)

// sqliteBackend is the embedded durable backend. Each user's full history is
// one row holding a serialized sequence; the global cache is one row per
// serialized key.
type sqliteBackend struct {
	db *sql.DB
}

const createStoreTables = `
CREATE TABLE IF NOT EXISTS histories (
	user_id TEXT PRIMARY KEY,
	sayings BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS cached_sayings (
	cache_key TEXT PRIMARY KEY,
	saying BLOB NOT NULL
);
`

// OpenSQLite creates a Store backed by a SQLite database file.
func OpenSQLite(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	if _, err := db.Exec(createStoreTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}

	return &Store{kind: "sqlite", b: &sqliteBackend{db: db}}, nil
}

func (s *sqliteBackend) history(ctx context.Context, userID string) ([]models.Saying, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT sayings FROM histories WHERE user_id = ?`, userID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("read history", err)
	}

	var h []models.Saying
	if err := json.Unmarshal(blob, &h); err != nil {
		return nil, storageErr("decode history", err)
	}
	return h, nil
}

func (s *sqliteBackend) setHistory(ctx context.Context, userID string, h []models.Saying) error {
	blob, err := json.Marshal(h)
	if err != nil {
		return storageErr("encode history", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO histories (user_id, sayings) VALUES (?, ?)`,
		userID, blob,
	)
	if err != nil {
		return storageErr("write history", err)
	}
	return nil
}

func (s *sqliteBackend) cached(ctx context.Context, key string) (models.Saying, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT saying FROM cached_sayings WHERE cache_key = ?`, key,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return models.Saying{}, false, nil
	}
	if err != nil {
		return models.Saying{}, false, storageErr("read cache", err)
	}

	var saying models.Saying
	if err := json.Unmarshal(blob, &saying); err != nil {
		return models.Saying{}, false, storageErr("decode cache entry", err)
	}
	return saying, true, nil
}

func (s *sqliteBackend) setCached(ctx context.Context, key string, saying models.Saying) error {
	blob, err := json.Marshal(saying)
	if err != nil {
		return storageErr("encode cache entry", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cached_sayings (cache_key, saying) VALUES (?, ?)`,
		key, blob,
	)
	if err != nil {
		return storageErr("write cache", err)
	}
	return nil
}

func (s *sqliteBackend) allHistories(ctx context.Context) (map[string][]models.Saying, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, sayings FROM histories`)
	if err != nil {
		return nil, storageErr("iterate histories", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Saying)
	for rows.Next() {
		var userID string
		var blob []byte
		if err := rows.Scan(&userID, &blob); err != nil {
			return nil, storageErr("scan history row", err)
		}
		var h []models.Saying
		if err := json.Unmarshal(blob, &h); err != nil {
			return nil, storageErr("decode history", err)
		}
		out[userID] = h
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate histories", err)
	}
	return out, nil
}

func (s *sqliteBackend) cachedAll(ctx context.Context) ([]models.Saying, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT saying FROM cached_sayings`)
	if err != nil {
		return nil, storageErr("iterate cache", err)
	}
	defer rows.Close()

	var out []models.Saying
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, storageErr("scan cache row", err)
		}
		var saying models.Saying
		if err := json.Unmarshal(blob, &saying); err != nil {
			return nil, storageErr("decode cache entry", err)
		}
		out = append(out, saying)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate cache", err)
	}
	return out, nil
}

func (s *sqliteBackend) close() error {
	return s.db.Close()
}
