package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process object store
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	puts    int
}

// NewMemoryStore creates an empty object store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

func objectKey(container, key string) string {
	return container + "/" + key
}

// Get returns the object at container/key
func (m *MemoryStore) Get(ctx context.Context, container, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectKey(container, key)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", container, key, ErrNotFound)
	}
	return append([]byte(nil), obj.Data...), nil
}

// Upload stores the object, replacing any previous content
func (m *MemoryStore) Upload(ctx context.Context, container, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey(container, key)] = Object{
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
	}
	m.puts++
	return nil
}

// URI returns a mem:// locator
func (m *MemoryStore) URI(container, key string) string {
	return "mem://" + objectKey(container, key)
}

// Object returns the stored object with its content type
func (m *MemoryStore) Object(container, key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[objectKey(container, key)]
	return obj, ok
}

// Keys lists stored objects as container/key, sorted
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Uploads returns the number of Upload calls
func (m *MemoryStore) Uploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// MemoryTable is an in-process table store keyed by one field
type MemoryTable struct {
	mu       sync.RWMutex
	keyField string
	tables   map[string]map[string]map[string]any
	puts     int
}

// NewMemoryTable creates a table store whose primary key is keyField
func NewMemoryTable(keyField string) *MemoryTable {
	return &MemoryTable{
		keyField: keyField,
		tables:   make(map[string]map[string]map[string]any),
	}
}

// Put upserts item by its key field
func (t *MemoryTable) Put(ctx context.Context, table string, item map[string]any) error {
	pk, ok := item[t.keyField]
	if !ok {
		return fmt.Errorf("item has no %s", t.keyField)
	}
	clone, err := cloneItem(item)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	rows, ok := t.tables[table]
	if !ok {
		rows = make(map[string]map[string]any)
		t.tables[table] = rows
	}
	rows[fmt.Sprint(pk)] = clone
	t.puts++
	return nil
}

// Scan returns every item of table, projected when fields are given
func (t *MemoryTable) Scan(ctx context.Context, table string, projection ...string) ([]map[string]any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := t.tables[table]
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, project(row, projection))
	}
	return out, nil
}

// Item returns the item stored under pk
func (t *MemoryTable) Item(table string, pk any) (map[string]any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.tables[table][fmt.Sprint(pk)]
	return row, ok
}

// Len returns the number of items in table
func (t *MemoryTable) Len(table string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tables[table])
}

// Puts returns the number of Put calls
func (t *MemoryTable) Puts() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.puts
}

// cloneItem deep-copies an item through its JSON form, the same
// representation the durable table stores.
func cloneItem(item map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item: %w", err)
	}
	return decodeItem(raw)
}

func project(row map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		out := make(map[string]any, len(row))
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}
