// =============================================================================
// 🗄️ ScriptedStore - 可编排的对象存储包装
// =============================================================================
// 包装任意 objectstore.Store，注入"尚未就绪"次数、读取错误与写入错误
// =============================================================================
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/svdflow/internal/objectstore"
)

// ScriptedStore 是可注入故障的 objectstore.Store
type ScriptedStore struct {
	inner objectstore.Store

	mu        sync.Mutex
	notReady  map[objectstore.Location]int
	getErrs   []error
	putErr    error
	getCounts map[objectstore.Location]int
	puts      []objectstore.Location
}

var _ objectstore.Store = (*ScriptedStore)(nil)

// NewScriptedStore 包装 inner
func NewScriptedStore(inner objectstore.Store) *ScriptedStore {
	return &ScriptedStore{
		inner:     inner,
		notReady:  make(map[objectstore.Location]int),
		getCounts: make(map[objectstore.Location]int),
	}
}

// NotReadyFor 前 n 次读取 loc 时返回 ErrNotFound，即便对象已存在
func (s *ScriptedStore) NotReadyFor(loc objectstore.Location, n int) *ScriptedStore {
	s.mu.Lock()
	s.notReady[loc] = n
	s.mu.Unlock()
	return s
}

// FailGets 接下来的读取依次返回 errs
func (s *ScriptedStore) FailGets(errs ...error) *ScriptedStore {
	s.mu.Lock()
	s.getErrs = append(s.getErrs, errs...)
	s.mu.Unlock()
	return s
}

// FailPuts 之后的写入都返回 err
func (s *ScriptedStore) FailPuts(err error) *ScriptedStore {
	s.mu.Lock()
	s.putErr = err
	s.mu.Unlock()
	return s
}

// Put 实现 objectstore.Store
func (s *ScriptedStore) Put(ctx context.Context, loc objectstore.Location, body []byte, contentType string) error {
	s.mu.Lock()
	err := s.putErr
	s.puts = append(s.puts, loc)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, loc, body, contentType)
}

// Get 实现 objectstore.Store
func (s *ScriptedStore) Get(ctx context.Context, loc objectstore.Location) ([]byte, error) {
	s.mu.Lock()
	s.getCounts[loc]++
	if len(s.getErrs) > 0 {
		err := s.getErrs[0]
		s.getErrs = s.getErrs[1:]
		s.mu.Unlock()
		return nil, err
	}
	if n := s.notReady[loc]; n > 0 {
		s.notReady[loc] = n - 1
		s.mu.Unlock()
		return nil, fmt.Errorf("get %s: %w", loc, objectstore.ErrNotFound)
	}
	s.mu.Unlock()
	return s.inner.Get(ctx, loc)
}

// Ping 实现 objectstore.Store
func (s *ScriptedStore) Ping(ctx context.Context, bucket string) error {
	return s.inner.Ping(ctx, bucket)
}

// GetCount 返回 loc 被读取的次数
func (s *ScriptedStore) GetCount(loc objectstore.Location) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCounts[loc]
}

// Puts 返回写入过的位置
func (s *ScriptedStore) Puts() []objectstore.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]objectstore.Location, len(s.puts))
	copy(out, s.puts)
	return out
}
