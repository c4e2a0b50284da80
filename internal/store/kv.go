package store

import (
	"fmt"
	"sync"
)

// KV is the narrow settings collaborator injected where callers only need
// key/value access, not the whole store.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Get implements KV against the Setting table. A missing key is an error;
// use GetSetting for fallback semantics.
func (s *Store) Get(key string) (string, error) {
	var setting Setting
	if err := s.db.First(&setting, "key = ?", key).Error; err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return setting.Value, nil
}

// Set implements KV against the Setting table.
func (s *Store) Set(key, value string) error {
	return s.SetSetting(key, value)
}

// MemoryKV is an in-memory KV for tests and store-less runs.
type MemoryKV struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{m: make(map[string]string)}
}

func (kv *MemoryKV) Get(key string) (string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.m[key]
	if !ok {
		return "", fmt.Errorf("get setting %s: not found", key)
	}
	return v, nil
}

func (kv *MemoryKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.m[key] = value
	return nil
}
