package objectstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memoryObject struct {
	body        []byte
	contentType string
}

// MemoryStore 内存对象存储，并发安全
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[Location]memoryObject
}

// NewMemoryStore 创建内存对象存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[Location]memoryObject)}
}

// Put 实现 Store
func (m *MemoryStore) Put(ctx context.Context, loc Location, body []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(body))
	copy(cp, body)

	m.mu.Lock()
	m.objects[loc] = memoryObject{body: cp, contentType: contentType}
	m.mu.Unlock()
	return nil
}

// Get 实现 Store
func (m *MemoryStore) Get(ctx context.Context, loc Location) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	obj, ok := m.objects[loc]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get %s: %w", loc, ErrNotFound)
	}
	cp := make([]byte, len(obj.body))
	copy(cp, obj.body)
	return cp, nil
}

// Ping 实现 Store，内存存储总是可用
func (m *MemoryStore) Ping(ctx context.Context, _ string) error {
	return ctx.Err()
}

// ContentType 返回对象写入时的 Content-Type
func (m *MemoryStore) ContentType(loc Location) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[loc]
	return obj.contentType, ok
}

// Delete 删除对象
func (m *MemoryStore) Delete(loc Location) {
	m.mu.Lock()
	delete(m.objects, loc)
	m.mu.Unlock()
}

// Locations 返回所有对象位置（按字符串排序）
func (m *MemoryStore) Locations() []Location {
	m.mu.RLock()
	out := make([]Location, 0, len(m.objects))
	for loc := range m.objects {
		out = append(out, loc)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
