package duckdb

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/datawise/datawise/internal/dataset"
)

// parquetCache keeps encoded tables by cache key and drops the least
// recently used entry beyond capacity.
type parquetCache struct {
	capacity int

	mu      sync.Mutex
	entries map[string]*cachedParquet
	ticks   uint64
}

type cachedParquet struct {
	data     []byte
	lastUsed uint64
}

func newParquetCache(capacity int) *parquetCache {
	return &parquetCache{capacity: capacity, entries: map[string]*cachedParquet{}}
}

func (c *parquetCache) get(key string) ([]byte, bool) {
	if c == nil || key == "" {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.ticks++
	cached.lastUsed = c.ticks
	return cached.data, true
}

func (c *parquetCache) put(key string, data []byte) {
	if c == nil || key == "" || c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks++
	c.entries[key] = &cachedParquet{data: data, lastUsed: c.ticks}
	for len(c.entries) > c.capacity {
		victim := ""
		var oldest uint64
		for k, cached := range c.entries {
			if victim == "" || cached.lastUsed < oldest {
				victim, oldest = k, cached.lastUsed
			}
		}
		delete(c.entries, victim)
	}
}

func (c *parquetCache) size() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// encodeTable returns the parquet encoding of table, reusing the cached copy
// stored under key.
func (e *Engine) encodeTable(key string, table dataset.Table) ([]byte, error) {
	if data, ok := e.parquet.get(key); ok {
		return data, nil
	}
	data, err := dataset.EncodeParquet(table)
	if err != nil {
		return nil, fmt.Errorf("encode table: %w", err)
	}
	e.parquet.put(key, data)
	return data, nil
}

func writeTableParquet(dir string, data []byte) (string, error) {
	path := filepath.Join(dir, "table.parquet")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write local parquet file %q: %w", path, err)
	}
	return path, nil
}

// storageTypeFor maps a DuckDB column type name to the loader's storage type.
func storageTypeFor(databaseType string) string {
	upper := strings.ToUpper(strings.TrimSpace(databaseType))
	switch {
	case upper == "BOOLEAN":
		return dataset.StorageBool
	case strings.HasPrefix(upper, "INTERVAL"):
		return dataset.StorageObject
	case strings.Contains(upper, "INT"):
		return dataset.StorageInt64
	case upper == "DOUBLE", upper == "FLOAT", upper == "REAL", strings.HasPrefix(upper, "DECIMAL"):
		return dataset.StorageFloat64
	case upper == "DATE", strings.HasPrefix(upper, "TIMESTAMP"):
		return dataset.StorageDatetime
	default:
		return dataset.StorageObject
	}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = normalizeValue(value)
	}
	return normalized
}

// normalizeValue collapses driver types to int64, float64, string, bool and time.Time.
func normalizeValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case []byte:
		return string(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case int:
		return int64(typed)
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint64:
		return int64(typed)
	case float32:
		return float64(typed)
	case *big.Int:
		if typed.IsInt64() {
			return typed.Int64()
		}
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f
	case interface{ Float64() float64 }:
		return typed.Float64()
	default:
		return value
	}
}

// coerce fits a normalized value to the column's storage type.
func coerce(storageType string, value any) any {
	value = normalizeValue(value)
	if value == nil {
		return nil
	}
	switch storageType {
	case dataset.StorageFloat64:
		if i, ok := value.(int64); ok {
			return float64(i)
		}
		return value
	case dataset.StorageInt64, dataset.StorageBool:
		return value
	case dataset.StorageDatetime:
		if t, ok := value.(time.Time); ok {
			return t.UTC()
		}
		return value
	default:
		if s, ok := value.(string); ok {
			return s
		}
		return fmt.Sprint(value)
	}
}
