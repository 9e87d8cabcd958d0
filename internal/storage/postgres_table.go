package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lib/pq"
)

// PostgresTable is a table store that keeps each item as a JSONB document
// keyed by an integer primary key field.
type PostgresTable struct {
	db       *sql.DB
	keyField string

	mu     sync.Mutex
	ensure map[string]bool
}

// NewPostgresTable creates a table store over db
func NewPostgresTable(db *sql.DB, keyField string) *PostgresTable {
	return &PostgresTable{
		db:       db,
		keyField: keyField,
		ensure:   make(map[string]bool),
	}
}

// ensureTable creates table if it doesn't exist
func (t *PostgresTable) ensureTable(ctx context.Context, table string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ensure[table] {
		return nil
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			pk BIGINT PRIMARY KEY,
			item JSONB NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)
	`, pq.QuoteIdentifier(table))

	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	t.ensure[table] = true
	return nil
}

// Put upserts item by its key field
func (t *PostgresTable) Put(ctx context.Context, table string, item map[string]any) error {
	raw, ok := item[t.keyField]
	if !ok {
		return fmt.Errorf("item has no %s", t.keyField)
	}
	pk, err := toPrimaryKey(raw)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	if err := t.ensureTable(ctx, table); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (pk, item, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (pk) DO UPDATE
		SET item = EXCLUDED.item,
		    updated_at = NOW()
	`, pq.QuoteIdentifier(table))

	if _, err := t.db.ExecContext(ctx, query, pk, string(doc)); err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

// Scan returns every item of table, projected when fields are given
func (t *PostgresTable) Scan(ctx context.Context, table string, projection ...string) ([]map[string]any, error) {
	if err := t.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT item FROM %s ORDER BY pk`, pq.QuoteIdentifier(table))
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to scan table: %w", err)
	}
	defer rows.Close()

	var items []map[string]any
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to read item: %w", err)
		}
		item, err := decodeItem(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, project(item, projection))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan table: %w", err)
	}
	return items, nil
}

// decodeItem parses a stored item, keeping numbers as json.Number
func decodeItem(doc []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var item map[string]any
	if err := dec.Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	return item, nil
}

func toPrimaryKey(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("unsupported primary key type %T", v)
	}
}
