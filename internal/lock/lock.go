package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lvdashuaibi/planningpoker/config"
)

// ErrNotAcquired 重试次数用尽仍未获取到锁
var ErrNotAcquired = errors.New("未能获取分布式锁")

// Lock 分布式锁接口
type Lock interface {
	// AcquireLock 尝试获取锁，不阻塞
	// 返回值：bool表示是否成功获取锁，error表示获取过程中的错误
	AcquireLock(ctx context.Context, lockName string, ttl time.Duration) (bool, error)

	// ReleaseLock 释放锁
	ReleaseLock(ctx context.Context, lockName string) error

	// ReleaseAllLocks 释放所有持有的锁
	ReleaseAllLocks()

	// Close 关闭分布式锁客户端
	Close() error
}

// Options 获取锁的参数
type Options struct {
	TTL           time.Duration
	RetryCount    int
	RetryInterval time.Duration
}

// WithLock 获取锁后执行fn并释放锁，未获取到时按间隔重试
func WithLock(ctx context.Context, l Lock, lockName string, opts Options, fn func() error) error {
	attempts := opts.RetryCount
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		acquired, err := l.AcquireLock(ctx, lockName, opts.TTL)
		if err != nil {
			return fmt.Errorf("获取锁 %s 失败: %w", lockName, err)
		}
		if acquired {
			defer l.ReleaseLock(context.Background(), lockName)
			return fn()
		}

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.RetryInterval):
		}
	}

	return fmt.Errorf("%w: %s", ErrNotAcquired, lockName)
}

// New 按配置的驱动创建锁实现
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Lock, error) {
	switch cfg.Lock.Driver {
	case config.LockEtcd:
		return NewEtcdLock(cfg.ETCD)
	case config.LockRedis:
		return NewRedLock(ctx, cfg.Redis, logger)
	case config.LockLocal, "":
		return NewLocalLock(), nil
	default:
		return nil, fmt.Errorf("未知的锁驱动: %s", cfg.Lock.Driver)
	}
}
