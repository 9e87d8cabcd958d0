package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tendant/catalog-ingest-pipeline/internal/assets"
	"github.com/tendant/catalog-ingest-pipeline/pkg/pipeline"
)

// Table is the catalog table store
type Table interface {
	// Scan returns every item, restricted to the projected fields when given
	Scan(ctx context.Context, table string, projection ...string) ([]map[string]any, error)

	// Put upserts an item by its primary key
	Put(ctx context.Context, table string, item map[string]any) error
}

// Plan is one catalog entry paired with its identifier and matched assets
type Plan struct {
	Position int
	ID       int64
	Name     string
	Folder   string
	Entry    Entry
	Images   []assets.Asset
	Videos   []assets.Asset
}

// ValidateNames fails if any entry lacks a usable name. The whole batch is
// rejected so that identifiers stay predictable.
func ValidateNames(entries []Entry) error {
	for i, e := range entries {
		if _, ok := e.Name(); !ok {
			return fmt.Errorf("%w: catalog entry %d has no %s", pipeline.ErrValidation, i, NameField)
		}
	}
	return nil
}

// HighWaterMark scans the table for the largest identifier, or 0 when empty
func HighWaterMark(ctx context.Context, table Table, tableName, field string) (int64, error) {
	items, err := table.Scan(ctx, tableName, field)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to scan %s: %v", pipeline.ErrAllocationFetch, tableName, err)
	}

	var max int64
	for _, item := range items {
		raw, ok := item[field]
		if !ok || raw == nil {
			continue
		}
		id, err := toInt64(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: %s in %s: %v", pipeline.ErrAllocationFetch, field, tableName, err)
		}
		if id > max {
			max = id
		}
	}
	return max, nil
}

// Allocate pairs each entry with every asset whose path contains the
// entry's normalized name and assigns id = hwm + position + 1.
// Entries without matching assets get empty asset lists.
func Allocate(entries []Entry, images, videos []assets.Asset, hwm int64) ([]Plan, error) {
	if err := ValidateNames(entries); err != nil {
		return nil, err
	}

	plans := make([]Plan, 0, len(entries))
	for i, e := range entries {
		name, _ := e.Name()
		folder := NormalizeName(name)
		plans = append(plans, Plan{
			Position: i,
			ID:       hwm + int64(i) + 1,
			Name:     name,
			Folder:   folder,
			Entry:    e,
			Images:   match(images, folder),
			Videos:   match(videos, folder),
		})
	}
	return plans, nil
}

func match(candidates []assets.Asset, key string) []assets.Asset {
	var out []assets.Asset
	for _, a := range candidates {
		if strings.Contains(a.Path, key) {
			out = append(out, a)
		}
	}
	return out
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("non-integral identifier %v", n)
		}
		return int64(n), nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return toInt64(f)
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported identifier type %T", v)
	}
}
