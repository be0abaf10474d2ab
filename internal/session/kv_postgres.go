package session

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

type PostgresKV struct {
	db        *sql.DB
	namespace string
}

func NewPostgresKV(db *sql.DB, namespace string) (*PostgresKV, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return nil, fmt.Errorf("session namespace is required")
	}
	kv := &PostgresKV{db: db, namespace: namespace}
	if err := kv.ensureSchema(); err != nil {
		return nil, err
	}
	return kv, nil
}

func (p *PostgresKV) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS client_session_kv (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (namespace, key)
)`
	if _, err := p.db.Exec(q); err != nil {
		return fmt.Errorf("ensure client_session_kv schema: %w", err)
	}
	return nil
}

func (p *PostgresKV) GetMany(keys []string) (map[string]string, error) {
	const q = `
SELECT key, value
FROM client_session_kv
WHERE namespace = $1 AND key = ANY($2)`
	rows, err := p.db.Query(q, p.namespace, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("query session keys: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string, len(keys))
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan session key: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session keys: %w", err)
	}
	return out, nil
}

func (p *PostgresKV) PutMany(values map[string]string) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const q = `
INSERT INTO client_session_kv (namespace, key, value, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	for k, v := range values {
		if _, err := tx.Exec(q, p.namespace, k, v); err != nil {
			return fmt.Errorf("upsert session key %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session tx: %w", err)
	}
	return nil
}

func (p *PostgresKV) DeleteMany(keys []string) error {
	const q = `DELETE FROM client_session_kv WHERE namespace = $1 AND key = ANY($2)`
	if _, err := p.db.Exec(q, p.namespace, pq.Array(keys)); err != nil {
		return fmt.Errorf("delete session keys: %w", err)
	}
	return nil
}
