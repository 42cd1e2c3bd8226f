package jobs

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/svdflow/internal/database"
	"github.com/BaSui01/svdflow/types"
)

// 事务冲突（死锁、序列化失败）最大重试次数
const txRetries = 3

// GormStore 基于 SQL 数据库的任务存储（postgres / mysql / sqlite）
type GormStore struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewGormStore 创建 SQL 存储并自动迁移 svd_jobs 表
func NewGormStore(ctx context.Context, pool *database.PoolManager, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().WithContext(ctx).AutoMigrate(&Job{}); err != nil {
		return nil, fmt.Errorf("migrate jobs table: %w", err)
	}
	return &GormStore{
		pool:   pool,
		logger: logger.With(zap.String("component", "job_store"), zap.String("backend", "database")),
	}, nil
}

func (s *GormStore) Create(ctx context.Context, job *Job) error {
	return s.pool.WithTransactionRetry(ctx, txRetries, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Job{}).Where("id = ?", job.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("create job %s: %w", job.ID, err)
		}
		if count > 0 {
			return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("job %s already exists", job.ID)).WithHTTPStatus(409)
		}
		rec := job.Clone()
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("create job %s: %w", job.ID, err)
		}
		return nil
	})
}

func (s *GormStore) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := s.pool.DB().WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

func (s *GormStore) Update(ctx context.Context, job *Job) error {
	return s.pool.WithTransactionRetry(ctx, txRetries, func(tx *gorm.DB) error {
		var existing Job
		err := tx.Where("id = ?", job.ID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(job.ID)
		}
		if err != nil {
			return fmt.Errorf("update job %s: %w", job.ID, err)
		}
		rec := job.Clone()
		rec.CreatedAt = existing.CreatedAt
		if err := tx.Save(rec).Error; err != nil {
			return fmt.Errorf("update job %s: %w", job.ID, err)
		}
		return nil
	})
}

func (s *GormStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	q := s.pool.DB().WithContext(ctx).Model(&Job{})
	if opts.State != "" {
		q = q.Where("state = ?", opts.State)
	}
	var out []*Job
	if err := q.Order("created_at DESC").Order("id DESC").Limit(opts.limit()).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *GormStore) Close() error {
	return s.pool.Close()
}
