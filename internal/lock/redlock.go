package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/planningpoker/config"
)

// 只删除自己持有的锁
const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// RedLock 多个独立Redis节点上的Redlock实现
type RedLock struct {
	clients []*redis.Client
	addrs   []string
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]string // key是锁名，value是token值
}

// NewRedLock 创建新的分布式锁客户端
func NewRedLock(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedLock, error) {
	clients := make([]*redis.Client, 0, len(cfg.LockAddresses))
	for _, addr := range cfg.LockAddresses {
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.Timeout,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			for _, c := range clients {
				c.Close()
			}
			client.Close()
			return nil, fmt.Errorf("Redis锁节点 %s 连接测试失败: %w", addr, err)
		}
		clients = append(clients, client)
	}

	return NewRedLockWithClients(clients, cfg.LockAddresses, logger), nil
}

// NewRedLockWithClients 使用已有客户端创建Redlock
func NewRedLockWithClients(clients []*redis.Client, addrs []string, logger *zap.Logger) *RedLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedLock{
		clients: clients,
		addrs:   addrs,
		logger:  logger,
		locks:   make(map[string]string),
	}
}

func (r *RedLock) quorum() int {
	return len(r.clients)/2 + 1
}

// AcquireLock 在多数节点上SetNX成功且仍在有效期内才算获取成功
func (r *RedLock) AcquireLock(ctx context.Context, lockName string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	if _, held := r.locks[lockName]; held {
		r.mu.Unlock()
		return false, nil
	}
	r.mu.Unlock()

	token := uuid.NewString()
	success := 0
	start := time.Now()

	for i, client := range r.clients {
		ok, err := client.SetNX(ctx, lockName, token, ttl).Result()
		if err != nil {
			r.logger.Warn("Redis节点获取锁失败",
				zap.String("node", r.addrs[i]), zap.String("lock", lockName), zap.Error(err))
			continue
		}
		if ok {
			success++
		}
	}

	validity := ttl - time.Since(start)
	if success >= r.quorum() && validity > 0 {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, held := r.locks[lockName]; held {
			// 同实例的并发请求已先拿到锁
			r.unlockAll(lockName, token)
			return false, nil
		}
		r.locks[lockName] = token
		return true, nil
	}

	r.unlockAll(lockName, token)
	return false, nil
}

// ReleaseLock 释放分布式锁
func (r *RedLock) ReleaseLock(_ context.Context, lockName string) error {
	r.mu.Lock()
	token, exists := r.locks[lockName]
	delete(r.locks, lockName)
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("锁 %s 不存在或未持有", lockName)
	}

	r.unlockAll(lockName, token)
	return nil
}

// unlockAll 在所有节点上释放锁
func (r *RedLock) unlockAll(lockName string, token string) {
	for i, client := range r.clients {
		if err := client.Eval(context.Background(), unlockScript, []string{lockName}, token).Err(); err != nil {
			r.logger.Warn("Redis节点释放锁失败",
				zap.String("node", r.addrs[i]), zap.String("lock", lockName), zap.Error(err))
		}
	}
}

// ReleaseAllLocks 释放所有持有的锁
func (r *RedLock) ReleaseAllLocks() {
	r.mu.Lock()
	held := r.locks
	r.locks = make(map[string]string)
	r.mu.Unlock()

	for name, token := range held {
		r.unlockAll(name, token)
	}
}

// Close 关闭分布式锁客户端
func (r *RedLock) Close() error {
	r.ReleaseAllLocks()

	for i, client := range r.clients {
		if err := client.Close(); err != nil {
			r.logger.Warn("关闭Redis客户端失败", zap.String("node", r.addrs[i]), zap.Error(err))
		}
	}
	return nil
}
