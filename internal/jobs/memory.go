package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/BaSui01/svdflow/types"
)

// MemoryStore 进程内任务存储，单实例部署与测试使用
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Create(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("job %s already exists", job.ID)).WithHTTPStatus(409)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, notFound(id)
	}
	return j.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return notFound(job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	s.mu.RLock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if opts.State != "" && j.State != opts.State {
			continue
		}
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if len(out) > opts.limit() {
		out = out[:opts.limit()]
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func sortNewestFirst(jobs []*Job) {
	sort.SliceStable(jobs, func(a, b int) bool {
		if jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].ID > jobs[b].ID
		}
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
}
