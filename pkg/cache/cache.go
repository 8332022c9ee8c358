// Package cache provides the local durable key-value cache that survives
// process restarts on the same device.
package cache

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/tendant/teamspace/pkg/domain"
)

// Keys held by the cache.
const (
	KeyWorkspace     = "current_workspace"
	KeySkipWorkspace = "skip_workspace"
	KeyAuthSession   = "auth_session"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("cache key not found")

// Cache is a string-keyed persisted store.
type Cache interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// LoadWorkspace returns the cached workspace handle, or nil when none is
// cached or the entry cannot be decoded.
func LoadWorkspace(c Cache) (*domain.Workspace, error) {
	raw, err := c.Get(KeyWorkspace)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ws domain.Workspace
	if err := json.Unmarshal([]byte(raw), &ws); err != nil {
		_ = c.Delete(KeyWorkspace)
		return nil, nil
	}
	return &ws, nil
}

// SaveWorkspace persists ws as the cached workspace handle. A nil ws
// clears the entry.
func SaveWorkspace(c Cache, ws *domain.Workspace) error {
	if ws == nil {
		return c.Delete(KeyWorkspace)
	}
	raw, err := json.Marshal(ws)
	if err != nil {
		return err
	}
	return c.Set(KeyWorkspace, string(raw))
}

// SkipWorkspace reports whether the user chose to continue without a workspace.
func SkipWorkspace(c Cache) bool {
	raw, err := c.Get(KeySkipWorkspace)
	return err == nil && raw == "true"
}

// SetSkipWorkspace records the skip-workspace choice.
func SetSkipWorkspace(c Cache, skip bool) error {
	if !skip {
		return c.Delete(KeySkipWorkspace)
	}
	return c.Set(KeySkipWorkspace, "true")
}

// Memory is a process-local Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *Memory) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores value under key.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
