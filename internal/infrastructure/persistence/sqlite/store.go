package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"rubot/internal/domain"
)

// PluginStore keeps the opaque key/value data of every plugin in one table.
type PluginStore struct {
	db *sql.DB
}

func NewPluginStore(dbPath string) (*PluginStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite: empty db path")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: creating dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &PluginStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS plugin_data (
	plugin TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (plugin, key)
);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: migrate plugin_data: %w", err)
	}
	return nil
}

func (s *PluginStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PluginStore) Get(ctx context.Context, plugin, key string) (string, bool, error) {
	if err := validKey(plugin, key); err != nil {
		return "", false, err
	}

	const query = `SELECT value FROM plugin_data WHERE plugin = ? AND key = ? LIMIT 1;`
	row := s.db.QueryRowContext(ctx, query, plugin, key)

	var value sql.NullString
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("sqlite: get %s/%s: %w", plugin, key, err)
	}
	return value.String, true, nil
}

func (s *PluginStore) Put(ctx context.Context, plugin, key, value string) error {
	if err := validKey(plugin, key); err != nil {
		return err
	}

	const stmt = `
INSERT INTO plugin_data (plugin, key, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(plugin, key) DO UPDATE SET
	value=excluded.value,
	updated_at=excluded.updated_at;
`

	if _, err := s.db.ExecContext(ctx, stmt, plugin, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("sqlite: put %s/%s: %w", plugin, key, err)
	}
	return nil
}

func (s *PluginStore) Delete(ctx context.Context, plugin, key string) error {
	if err := validKey(plugin, key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM plugin_data WHERE plugin = ? AND key = ?`, plugin, key)
	if err != nil {
		return fmt.Errorf("sqlite: delete %s/%s: %w", plugin, key, err)
	}
	return nil
}

func (s *PluginStore) Keys(ctx context.Context, plugin string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM plugin_data WHERE plugin = ? ORDER BY key;`, plugin)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list keys: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite: scan key: %w", err)
		}
		out = append(out, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list keys rows error: %w", err)
	}
	return out, nil
}

func validKey(plugin, key string) error {
	if strings.TrimSpace(plugin) == "" || strings.TrimSpace(key) == "" {
		return fmt.Errorf("sqlite: empty plugin or key")
	}
	return nil
}

var _ domain.PluginStore = (*PluginStore)(nil)
