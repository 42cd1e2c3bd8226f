// Package cache provides the Redis access layer used by the job store.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/internal/tlsutil"
)

// =============================================================================
// 💾 Redis 管理器
// =============================================================================

// Manager Redis 管理器，所有 key 自动加上 KeyPrefix
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Config Redis 配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// key 前缀
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// 默认过期时间，0 表示不过期
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 启用 TLS
	TLS bool `yaml:"tls" json:"tls"`

	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		KeyPrefix:           "svdflow:",
		DefaultTTL:          24 * time.Hour,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewManager 创建 Redis 管理器并探活
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	}
	if config.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(opts)

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		done:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("redis manager initialized",
		zap.String("addr", config.Addr),
		zap.String("key_prefix", config.KeyPrefix),
		zap.Int("pool_size", config.PoolSize),
	)

	return m, nil
}

// Key 返回带前缀的完整 key
func (m *Manager) Key(parts ...string) string {
	k := m.config.KeyPrefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (m *Manager) client() (*redis.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.redis, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Get 获取值，不存在时返回 ErrCacheMiss
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	c, err := m.client()
	if err != nil {
		return "", err
	}

	val, err := c.Get(ctx, m.Key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("redis get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("redis get failed: %w", err)
	}

	return val, nil
}

// Set 设置值，ttl 为 0 时使用 DefaultTTL
func (m *Manager) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c, err := m.client()
	if err != nil {
		return err
	}

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	if err := c.Set(ctx, m.Key(key), value, ttl).Err(); err != nil {
		m.logger.Error("redis set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// SetNX 仅在 key 不存在时设置，返回是否写入
func (m *Manager) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	c, err := m.client()
	if err != nil {
		return false, err
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	ok, err := c.SetNX(ctx, m.Key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

// GetJSON 获取 JSON 值
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return nil
}

// SetJSON 设置 JSON 值
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return m.Set(ctx, key, string(data), ttl)
}

// Delete 删除 key
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	c, err := m.client()
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = m.Key(k)
	}
	if err := c.Del(ctx, full...).Err(); err != nil {
		m.logger.Error("redis delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

// Exists 返回存在的 key 数量
func (m *Manager) Exists(ctx context.Context, keys ...string) (int64, error) {
	c, err := m.client()
	if err != nil {
		return 0, err
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = m.Key(k)
	}
	count, err := c.Exists(ctx, full...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis exists check failed: %w", err)
	}

	return count, nil
}

// =============================================================================
// 📇 有序索引
// =============================================================================

// IndexAdd 把 member 以 score 加入有序集合 index
func (m *Manager) IndexAdd(ctx context.Context, index, member string, score float64) error {
	c, err := m.client()
	if err != nil {
		return err
	}
	if err := c.ZAdd(ctx, m.Key(index), redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("redis zadd failed: %w", err)
	}
	return nil
}

// IndexRemove 从有序集合中移除 members
func (m *Manager) IndexRemove(ctx context.Context, index string, members ...string) error {
	c, err := m.client()
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, mem := range members {
		args[i] = mem
	}
	if err := c.ZRem(ctx, m.Key(index), args...).Err(); err != nil {
		return fmt.Errorf("redis zrem failed: %w", err)
	}
	return nil
}

// IndexNewest 按 score 从大到小返回最多 limit 个 member
func (m *Manager) IndexNewest(ctx context.Context, index string, limit int) ([]string, error) {
	c, err := m.client()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	members, err := c.ZRevRange(ctx, m.Key(index), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange failed: %w", err)
	}
	return members, nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	c, err := m.client()
	if err != nil {
		return err
	}
	return c.Ping(ctx).Err()
}

// Close 关闭管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	close(m.done)
	m.logger.Info("closing redis manager")

	return m.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Ping(ctx); err != nil {
			if !errors.Is(err, ErrClosed) {
				m.logger.Error("redis health check failed", zap.Error(err))
			}
		} else {
			m.logger.Debug("redis health check passed")
		}
		cancel()
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

var (
	// ErrCacheMiss key 不存在
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed 管理器已关闭
	ErrClosed = errors.New("redis manager is closed")
)

// IsCacheMiss 判断是否为 key 不存在
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
