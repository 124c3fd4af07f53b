package blob

import (
	"context"
	"sync"
)

// MemoryStore keeps uploads in process memory for the memory storage mode.
type MemoryStore struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]Object
}

type Object struct {
	Data        []byte
	ContentType string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, objects: make(map[string]Object)}
}

func (m *MemoryStore) Put(_ context.Context, data []byte, contentType string, purpose Purpose) (string, error) {
	if err := Validate(len(data), contentType, purpose); err != nil {
		return "", err
	}
	url := m.baseURL + "/" + objectKey(contentType, purpose)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[url] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return url, nil
}

func (m *MemoryStore) Get(url string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[url]
	return o, ok
}
