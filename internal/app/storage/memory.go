package storage

import (
	"context"
	"sync"
	"time"
)

type memoryObject struct {
	body        []byte
	contentType string
}

// MemoryService keeps objects in process memory. Its presigned URLs use the
// mem:// scheme, so callers serve bytes through Get instead.
type MemoryService struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

// NewMemoryService returns an empty in-memory blob store.
func NewMemoryService() *MemoryService {
	return &MemoryService{objects: make(map[string]memoryObject)}
}

func (m *MemoryService) Upload(ctx context.Context, key, contentType string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{body: append([]byte(nil), body...), contentType: contentType}
	return nil
}

func (m *MemoryService) PresignDownload(ctx context.Context, key string, _ time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", ErrObjectNotFound
	}
	return "mem://" + key, nil
}

func (m *MemoryService) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Get returns a copy of the object stored under key.
func (m *MemoryService) Get(ctx context.Context, key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", ErrObjectNotFound
	}
	return append([]byte(nil), obj.body...), obj.contentType, nil
}

// Len returns the number of stored objects.
func (m *MemoryService) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
