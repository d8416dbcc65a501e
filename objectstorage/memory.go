package objectstorage

import (
	"context"
	"sync"
)

// MemoryBucket keeps objects in memory. It backs development mode and tests.
type MemoryBucket struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryBucket returns an empty bucket.
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{objects: make(map[string]Object)}
}

// PutObject implements Bucket.
func (b *MemoryBucket) PutObject(_ context.Context, obj *Object) error {
	cp := *obj
	cp.Data = append([]byte(nil), obj.Data...)
	b.mu.Lock()
	b.objects[obj.Key] = cp
	b.mu.Unlock()
	return nil
}

// GetObject implements Bucket.
func (b *MemoryBucket) GetObject(_ context.Context, key string) (*Object, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	if !ok {
		return nil, ErrorObjectNotFound
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return &obj, nil
}

// DeleteObject implements Bucket.
func (b *MemoryBucket) DeleteObject(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.objects, key)
	b.mu.Unlock()
	return nil
}

// Len returns the number of stored objects.
func (b *MemoryBucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
