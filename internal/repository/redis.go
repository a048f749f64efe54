package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lvdashuaibi/planningpoker/config"
	"github.com/lvdashuaibi/planningpoker/internal/model"
)

const (
	// Redis键
	PollListKey        = "planningpoker:polls:all"
	PollListVersionKey = "planningpoker:polls:version"
)

var errStaleVersion = errors.New("议题列表版本已变化")

type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(ctx context.Context, cfg config.RedisConfig) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.DataAddress,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis数据节点连接测试失败: %w", err)
	}

	return NewRedisRepositoryWithClient(client, cfg.CacheTTL), nil
}

// NewRedisRepositoryWithClient 使用已有客户端创建缓存仓库
func NewRedisRepositoryWithClient(client *redis.Client, ttl time.Duration) *RedisRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisRepository{client: client, ttl: ttl}
}

// GetPolls 从缓存获取完整议题列表及当前版本，未命中时版本仍有效，供回填时使用
func (r *RedisRepository) GetPolls(ctx context.Context) ([]*model.Poll, int64, bool, error) {
	values, err := r.client.MGet(ctx, PollListKey, PollListVersionKey).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("获取议题列表缓存失败: %w", err)
	}

	var version int64
	if raw, ok := values[1].(string); ok {
		if version, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, 0, false, fmt.Errorf("解析议题列表版本失败: %w", err)
		}
	}

	data, ok := values[0].(string)
	if !ok {
		return nil, version, false, nil // 缓存未命中
	}

	var polls []*model.Poll
	if err := json.Unmarshal([]byte(data), &polls); err != nil {
		return nil, version, false, fmt.Errorf("解析议题列表缓存失败: %w", err)
	}
	return polls, version, true, nil
}

// SetPolls 在版本未变化时写入议题列表缓存，读取期间发生过失效则放弃写入
func (r *RedisRepository) SetPolls(ctx context.Context, polls []*model.Poll, version int64) error {
	data, err := json.Marshal(polls)
	if err != nil {
		return fmt.Errorf("序列化议题列表失败: %w", err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, PollListVersionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleVersion
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, PollListKey, data, r.ttl)
			return nil
		})
		return err
	}, PollListVersionKey)

	if errors.Is(err, errStaleVersion) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("设置议题列表缓存失败: %w", err)
	}
	return nil
}

// InvalidatePolls 删除议题列表缓存并递增版本
func (r *RedisRepository) InvalidatePolls(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, PollListKey)
		pipe.Incr(ctx, PollListVersionKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("删除议题列表缓存失败: %w", err)
	}
	return nil
}

// Close 关闭Redis连接
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
