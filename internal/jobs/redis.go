package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/internal/cache"
	"github.com/BaSui01/svdflow/types"
)

const (
	redisJobKey   = "job"
	redisJobIndex = "jobs"
	// 按状态过滤时最多扫描的索引条数
	redisScanLimit = 1000
)

// RedisStore 基于 Redis 的任务存储。
// 记录以 JSON 存在 <prefix>job:<id>，并在有序集合 <prefix>jobs 中按创建时间索引。
type RedisStore struct {
	cache  *cache.Manager
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore 创建 Redis 存储，ttl<=0 时使用 cache 的默认 TTL
func NewRedisStore(m *cache.Manager, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{
		cache:  m,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "job_store"), zap.String("backend", "redis")),
	}
}

func (s *RedisStore) key(id string) string {
	return redisJobKey + ":" + id
}

func (s *RedisStore) Create(ctx context.Context, job *Job) error {
	data, err := marshalJob(job)
	if err != nil {
		return err
	}
	ok, err := s.cache.SetNX(ctx, s.key(job.ID), data, s.ttl)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if !ok {
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("job %s already exists", job.ID)).WithHTTPStatus(409)
	}
	if err := s.cache.IndexAdd(ctx, redisJobIndex, job.ID, float64(job.CreatedAt.UnixNano())); err != nil {
		return fmt.Errorf("index job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := s.cache.GetJSON(ctx, s.key(id), &job); err != nil {
		if cache.IsCacheMiss(err) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

func (s *RedisStore) Update(ctx context.Context, job *Job) error {
	n, err := s.cache.Exists(ctx, s.key(job.ID))
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if n == 0 {
		return notFound(job.ID)
	}
	if err := s.cache.SetJSON(ctx, s.key(job.ID), job, s.ttl); err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	scan := opts.limit()
	if opts.State != "" {
		scan = redisScanLimit
	}
	ids, err := s.cache.IndexNewest(ctx, redisJobIndex, scan)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	out := make([]*Job, 0, len(ids))
	var expired []string
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if IsNotFound(err) {
			expired = append(expired, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if opts.State != "" && job.State != opts.State {
			continue
		}
		out = append(out, job)
		if len(out) == opts.limit() {
			break
		}
	}

	// 记录已过期，清理索引
	if len(expired) > 0 {
		if err := s.cache.IndexRemove(ctx, redisJobIndex, expired...); err != nil {
			s.logger.Warn("failed to prune job index", zap.Int("count", len(expired)), zap.Error(err))
		}
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

func (s *RedisStore) Close() error {
	return s.cache.Close()
}

func marshalJob(job *Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	return string(data), nil
}
